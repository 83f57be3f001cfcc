package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	logger, err := NewLogger(LoggingConfig{Level: "debug", Encoding: "json", ServiceName: "AI Agent Platform", Version: "1.2.3", File: path})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	logger.Debug("written to file")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "written to file") ||
		!strings.Contains(line, `"service":"AI Agent Platform"`) ||
		!strings.Contains(line, `"version":"1.2.3"`) {
		t.Fatalf("unexpected log output %q", line)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "chatty"})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatalf("expected debug to be disabled for an unknown level")
	}
}
