// Package config loads configuration from environment variables, with an
// optional YAML file providing base values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all client configuration.
type Config struct {
	// Marketplace endpoint
	MarketplaceURL    string        `yaml:"marketplace_url"`
	AuthToken         string        `yaml:"auth_token"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`

	// Processing-job polling
	PollMaxAttempts int           `yaml:"poll_max_attempts"`
	PollInitialWait time.Duration `yaml:"poll_initial_wait"`
	PollMaxWait     time.Duration `yaml:"poll_max_wait"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics (empty = disabled)
	MetricsAddr string `yaml:"metrics_addr"`

	// Inventory database (optional; empty disables ancestry queries)
	DatabaseURL string `yaml:"database_url"`
}

// Load reads configuration. A YAML file named by MIRROR_CONFIG_FILE (or
// the path argument when non-empty) supplies base values; environment
// variables override it; defaults fill the rest.
func Load(path string) (*Config, error) {
	cfg := &Config{
		RequestTimeout:    30 * time.Second,
		RequestsPerMinute: 60,
		PollMaxAttempts:   6,
		PollInitialWait:   2 * time.Second,
		PollMaxWait:       30 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
	}

	if path == "" {
		path = os.Getenv("MIRROR_CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.MarketplaceURL = envOr("MARKETPLACE_URL", cfg.MarketplaceURL)
	cfg.AuthToken = envOr("MARKETPLACE_AUTH_TOKEN", cfg.AuthToken)
	cfg.RequestTimeout = envDuration("MARKETPLACE_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.RequestsPerMinute = envInt("MARKETPLACE_REQUESTS_PER_MINUTE", cfg.RequestsPerMinute)
	cfg.PollMaxAttempts = envInt("POLL_MAX_ATTEMPTS", cfg.PollMaxAttempts)
	cfg.PollInitialWait = envDuration("POLL_INITIAL_WAIT", cfg.PollInitialWait)
	cfg.PollMaxWait = envDuration("POLL_MAX_WAIT", cfg.PollMaxWait)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOr("LOG_FORMAT", cfg.LogFormat)
	cfg.MetricsAddr = envOr("METRICS_ADDR", cfg.MetricsAddr)
	cfg.DatabaseURL = envOr("DATABASE_URL", cfg.DatabaseURL)

	if cfg.MarketplaceURL == "" {
		return nil, fmt.Errorf("MARKETPLACE_URL is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
