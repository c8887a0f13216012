// Package config loads wizard settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/meteoci/station-export/internal/domain"
)

// Config holds all wizard settings, populated from environment
// variables (with optional .env file support).
type Config struct {
	APIBaseURL         string
	APITimeout         time.Duration
	StationType        domain.StationType // optional catalog scope, empty for all
	DefaultGranularity domain.Granularity
	OutputDir          string
	CacheSize          int    // availability result cache entries
	OpsAddr            string // health/metrics listen address, empty disables
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
}

// Load reads configuration from the environment, applying defaults
// where unset. A .env file in the working directory is honored when
// present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	timeout, err := parseDuration("API_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	granularity, err := domain.ParseGranularity(envOrDefault("DEFAULT_GRANULARITY", "H"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_GRANULARITY: %w", err)
	}

	cacheSize, err := parseInt("CACHE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIBaseURL:         envOrDefault("API_BASE_URL", "http://localhost:5000"),
		APITimeout:         timeout,
		StationType:        domain.StationType(os.Getenv("STATION_TYPE")),
		DefaultGranularity: granularity,
		OutputDir:          envOrDefault("OUTPUT_DIR", "."),
		CacheSize:          cacheSize,
		OpsAddr:            os.Getenv("OPS_ADDR"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		LogFormat:          envOrDefault("LOG_FORMAT", "text"),
		ShutdownTimeout:    shutdownTimeout,
	}

	if cfg.APIBaseURL == "" {
		return nil, errors.New("API_BASE_URL is required")
	}
	if st := cfg.StationType; st != "" && st != domain.StationUrban && st != domain.StationRural {
		return nil, fmt.Errorf("invalid STATION_TYPE %q", st)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
