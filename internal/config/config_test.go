package config

import (
	"testing"
	"time"
)

func TestLoadUsesDefaults(t *testing.T) {
	t.Setenv("CAMERA_HTTP_ADDR", "")
	t.Setenv("CAMERA_COUNTDOWN_SECONDS", "")
	t.Setenv("CAMERA_READ_TIMEOUT_SEC", "")
	t.Setenv("CAMERA_LIVENESS_TIMEOUT_MIN", "")
	t.Setenv("CAMERA_SWEEP_INTERVAL_MIN", "")
	t.Setenv("CAMERA_ALLOWED_ORIGINS", "")

	cfg := Load()
	if cfg.HTTPAddr != defaultHTTPAddr {
		t.Fatalf("expected default addr %q, got %q", defaultHTTPAddr, cfg.HTTPAddr)
	}
	if cfg.CountdownSeconds != defaultCountdownSeconds {
		t.Fatalf("expected default countdown, got %d", cfg.CountdownSeconds)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Fatalf("expected 5s read timeout, got %v", cfg.ReadTimeout)
	}
	if cfg.LivenessTimeout != 30*time.Minute {
		t.Fatalf("expected 30m liveness timeout, got %v", cfg.LivenessTimeout)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Fatalf("expected 5m sweep interval, got %v", cfg.SweepInterval)
	}
	if len(cfg.AllowedOrigins) != len(defaultAllowedOrigins) {
		t.Fatalf("expected default origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadSupportsOverrides(t *testing.T) {
	t.Setenv("CAMERA_HTTP_ADDR", ":9090")
	t.Setenv("CAMERA_COUNTDOWN_SECONDS", "10")
	t.Setenv("CAMERA_READ_TIMEOUT_SEC", "2")
	t.Setenv("CAMERA_ALLOWED_ORIGINS", "https://app.example.com, https://staging.example.com")

	cfg := Load()
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected custom addr, got %q", cfg.HTTPAddr)
	}
	if cfg.CountdownSeconds != 10 {
		t.Fatalf("expected countdown 10, got %d", cfg.CountdownSeconds)
	}
	if cfg.ReadTimeout != 2*time.Second {
		t.Fatalf("expected 2s read timeout, got %v", cfg.ReadTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://staging.example.com" {
		t.Fatalf("expected trimmed origin list, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsNonPositiveInts(t *testing.T) {
	t.Setenv("CAMERA_COUNTDOWN_SECONDS", "-3")
	t.Setenv("CAMERA_READ_TIMEOUT_SEC", "zero")

	cfg := Load()
	if cfg.CountdownSeconds != defaultCountdownSeconds {
		t.Fatalf("expected default countdown for negative input, got %d", cfg.CountdownSeconds)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Fatalf("expected default read timeout for garbage input, got %v", cfg.ReadTimeout)
	}
}
