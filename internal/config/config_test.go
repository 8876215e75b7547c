package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MARKETPLACE_URL", "https://marketplace.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MarketplaceURL != "https://marketplace.example" {
		t.Errorf("MarketplaceURL = %q", cfg.MarketplaceURL)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Errorf("log defaults = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.RequestsPerMinute != 60 {
		t.Errorf("RequestsPerMinute = %d, want 60", cfg.RequestsPerMinute)
	}
	if cfg.PollInitialWait != 2*time.Second {
		t.Errorf("PollInitialWait = %v", cfg.PollInitialWait)
	}
}

func TestLoadRequiresURL(t *testing.T) {
	t.Setenv("MARKETPLACE_URL", "")
	t.Setenv("MIRROR_CONFIG_FILE", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error without MARKETPLACE_URL")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MARKETPLACE_URL", "https://marketplace.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MARKETPLACE_REQUESTS_PER_MINUTE", "120")
	t.Setenv("MARKETPLACE_REQUEST_TIMEOUT", "5s")
	t.Setenv("POLL_MAX_ATTEMPTS", "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.RequestsPerMinute != 120 {
		t.Errorf("RequestsPerMinute = %d", cfg.RequestsPerMinute)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.PollMaxAttempts != 2 {
		t.Errorf("PollMaxAttempts = %d", cfg.PollMaxAttempts)
	}
}

func TestLoadBadEnvValuesFallBack(t *testing.T) {
	t.Setenv("MARKETPLACE_URL", "https://marketplace.example")
	t.Setenv("MARKETPLACE_REQUESTS_PER_MINUTE", "not-a-number")
	t.Setenv("MARKETPLACE_REQUEST_TIMEOUT", "soon")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequestsPerMinute != 60 {
		t.Errorf("RequestsPerMinute = %d, want default 60", cfg.RequestsPerMinute)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want default 30s", cfg.RequestTimeout)
	}
}

func TestLoadYAMLFileThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirror.yaml")
	data := []byte("marketplace_url: https://file.example\nlog_level: warn\nmetrics_addr: \":9090\"\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("MARKETPLACE_URL", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MarketplaceURL != "https://file.example" {
		t.Errorf("MarketplaceURL = %q, want file value", cfg.MarketplaceURL)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	// Environment beats the file.
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want env value", cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
