package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the engine configuration. The transaction file itself comes
// from argv, not the environment.
type Config struct {
	LogLevel         string
	MetricsAddr      string
	Diagnostics      bool
	ExportSigningKey string
	EventBufferSize  int
}

// Load reads configuration from a .env file (when present) and the
// environment.
func Load() (*Config, error) {
	// Best effort: running without a .env file is the normal case.
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:         getEnvDefault("LOG_LEVEL", "info"),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		Diagnostics:      os.Getenv("DIAGNOSTICS") == "true",
		ExportSigningKey: os.Getenv("EXPORT_SIGNING_KEY"),
		EventBufferSize:  1024,
	}

	if raw := os.Getenv("EVENT_BUFFER_SIZE"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid EVENT_BUFFER_SIZE %q: %w", raw, err)
		}
		cfg.EventBufferSize = size
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q: must be debug, info, warn or error", c.LogLevel)
	}

	if c.EventBufferSize <= 0 {
		return errors.New("EVENT_BUFFER_SIZE must be positive")
	}
	return nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
