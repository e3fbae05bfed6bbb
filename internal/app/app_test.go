package app

import (
	"context"
	"errors"
	"testing"

	"voice-order-service/internal/auth"
	"voice-order-service/internal/config"
)

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg := config.Load()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Database.Driver = "memory"
	cfg.STT.Provider = "mock"
	cfg.LLM.Provider = "none"
	cfg.Kafka.Enabled = false
	cfg.Recordings.Enabled = false
	cfg.Twilio.AccountSID = ""
	return cfg
}

func TestNew_Lifecycle(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Replier != nil {
		t.Error("expected no replier for provider none")
	}
	if a.Numbers != nil {
		t.Error("expected number listing disabled without credentials")
	}
	if a.Transcriber.Name() != "mock" {
		t.Errorf("transcriber = %s", a.Transcriber.Name())
	}
	if err := a.Ready(context.Background()); err == nil {
		t.Error("expected not ready before Start")
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Ready(context.Background()); err != nil {
		t.Errorf("Ready() error = %v", err)
	}

	a.Shutdown()
	if err := a.Ready(context.Background()); err == nil {
		t.Error("expected not ready after Shutdown")
	}
	a.Shutdown()
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Configuration)
		target error
	}{
		{"missing jwt secret", func(c *config.Configuration) { c.Auth.JWTSecret = "" }, auth.ErrMissingSecret},
		{"unknown db driver", func(c *config.Configuration) { c.Database.Driver = "sqlite" }, nil},
		{"unknown stt provider", func(c *config.Configuration) { c.STT.Provider = "vosk" }, nil},
		{"openai stt without key", func(c *config.Configuration) { c.STT.Provider = "openai"; c.STT.OpenAIAPIKey = "" }, nil},
		{"unknown llm provider", func(c *config.Configuration) { c.LLM.Provider = "llama" }, nil},
		{"gemini without key", func(c *config.Configuration) { c.LLM.Provider = "gemini"; c.LLM.GeminiAPIKey = "" }, nil},
		{"recordings without endpoint", func(c *config.Configuration) { c.Recordings.Enabled = true; c.Recordings.Endpoint = "" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := New(context.Background(), cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestNewReplier_WrapsProvider(t *testing.T) {
	cfg := testConfig(t).LLM
	cfg.Provider = "openai"
	cfg.OpenAIAPIKey = "sk-test"

	r, err := NewReplier(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Name() != "openai" {
		t.Errorf("unexpected replier %v", r)
	}
}
