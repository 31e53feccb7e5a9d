package main

import (
	"strings"
	"testing"
	"time"

	"gw-auth-service/internal/config"
	"gw-auth-service/internal/logger"
)

func TestRunReturnsMongoError(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-value")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.MongoDB.URI = "mongodb://127.0.0.1:1"
	cfg.MongoDB.Timeout = 200 * time.Millisecond

	err = run(cfg, logger.Discard())
	if err == nil {
		t.Fatal("Expected run to fail without MongoDB")
	}
	if !strings.Contains(err.Error(), "failed to connect to MongoDB") {
		t.Fatalf("Unexpected error: %v", err)
	}
}
