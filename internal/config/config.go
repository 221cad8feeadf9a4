// Package config handles configuration loading and management
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Backend names selectable via VT_ITEST_BACKEND or --backend.
const (
	BackendBigQuery   = "bigquery"
	BackendClickHouse = "clickhouse"
)

// Defaults for the pipeline under test.
const (
	DefaultImage        = "gcr.io/gcp-variant-transforms/gcp-variant-transforms"
	DefaultPipelinePath = "/opt/gcp_variant_transforms/bin/vcf_to_bq"
	DefaultPipelineName = "vt-integration-test"
)

// Config holds the application configuration
type Config struct {
	Backend string

	// Remote job defaults
	Zones  []string
	Scopes []string

	// Polling and query tuning
	InitialPollDelay time.Duration
	PollInterval     time.Duration
	QueryTimeout     time.Duration

	// ClickHouse backend settings (used when Backend == clickhouse)
	ClickhouseHost       string
	ClickhouseNativePort int
	ClickhouseUsername   string
	ClickhousePassword   string
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// It's okay if the file doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Backend:            getEnv("VT_ITEST_BACKEND", BackendBigQuery),
		Zones:              []string{getEnv("VT_ITEST_ZONE", "us-west1-b")},
		Scopes:             []string{"https://www.googleapis.com/auth/bigquery"},
		ClickhouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickhouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickhousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
	}

	if err := ValidateBackend(cfg.Backend); err != nil {
		return nil, fmt.Errorf("VT_ITEST_BACKEND: %w", err)
	}

	initialDelay, err := getEnvDuration("VT_ITEST_INITIAL_POLL_DELAY", 60*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.InitialPollDelay = initialDelay

	pollInterval, err := getEnvDuration("VT_ITEST_POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.PollInterval = pollInterval

	queryTimeout, err := getEnvDuration("VT_ITEST_QUERY_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.QueryTimeout = queryTimeout

	nativePort, err := strconv.Atoi(getEnv("CLICKHOUSE_NATIVE_PORT", "9000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLICKHOUSE_NATIVE_PORT: %w", err)
	}
	cfg.ClickhouseNativePort = nativePort

	return cfg, nil
}

// ValidateBackend checks a backend name supplied by a flag or the environment.
func ValidateBackend(name string) error {
	if name != BackendBigQuery && name != BackendClickHouse {
		return fmt.Errorf("invalid backend %q (must be %s or %s)", //nolint:err113 // Dynamic error with context
			name, BackendBigQuery, BackendClickHouse)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return d, nil
}
