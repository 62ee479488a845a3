package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.MaxRunCycles != 5 {
		t.Errorf("expected default run cycle ceiling 5, got %d", cfg.MaxRunCycles)
	}
	if cfg.RunPollInterval != time.Second {
		t.Errorf("expected default poll interval 1s, got %s", cfg.RunPollInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_RUN_CYCLES", "8")
	t.Setenv("RUN_POLL_INTERVAL", "250ms")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Port)
	}
	if cfg.MaxRunCycles != 8 {
		t.Errorf("expected cycle ceiling override, got %d", cfg.MaxRunCycles)
	}
	if cfg.RunPollInterval != 250*time.Millisecond {
		t.Errorf("expected poll interval override, got %s", cfg.RunPollInterval)
	}
	if !cfg.RedisTLS {
		t.Error("expected redis TLS enabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestGetEnvAsIntIgnoresGarbage(t *testing.T) {
	t.Setenv("MAX_RUN_CYCLES", "not-a-number")
	if got := Load().MaxRunCycles; got != 5 {
		t.Errorf("expected fallback to default, got %d", got)
	}
}
