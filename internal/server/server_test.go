package server

import (
	"context"
	"testing"
	"time"

	"github.com/onchainos/steward/config"
)

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.JWTSecret = "test-secret"
	cfg.Server.SchedulerEnabled = true
	cfg.LLM.Providers = map[string]config.LLMProvider{
		"primary": {Type: "openai", APIKey: "test"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, "") }()

	// Give the listener a moment to come up before signalling shutdown.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
