package trace

import (
	"context"
	"testing"

	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

func TestExporterURL(t *testing.T) {
	cases := map[string]string{
		"https://api.smith.langchain.com":                   "https://api.smith.langchain.com/otel/v1/traces",
		"https://api.smith.langchain.com/":                  "https://api.smith.langchain.com/otel/v1/traces",
		"http://collector:4318/v1/traces":                   "http://collector:4318/v1/traces",
		"https://eu.api.smith.langchain.com/otel/v1/traces": "https://eu.api.smith.langchain.com/otel/v1/traces",
	}
	for in, want := range cases {
		if got := ExporterURL(in); got != want {
			t.Fatalf("ExporterURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), utils.LangChainConfig{TracingV2: false, Endpoint: "https://example.com"}, "svc", "1.0.0", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}
