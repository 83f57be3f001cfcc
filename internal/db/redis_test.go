package db

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+server.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewRedisClient returned error: %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	server.CheckGet(t, "k", "v")

	if _, err := NewRedisClient(context.Background(), "not a url"); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}
