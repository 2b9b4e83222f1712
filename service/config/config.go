package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	// DefaultTokenDecimals is the precision used for token transfers that do
	// not carry their own.
	DefaultTokenDecimals = 6

	// MaxTokenDecimals bounds TOKEN_DECIMALS.
	MaxTokenDecimals = 18

	defaultMaxRequestBodyBytes = 1 << 20
)

// Config holds all application configuration loaded from environment variables.
// All fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr          string
	LogLevel            string
	MaxRequestBodyBytes int64

	// Database configuration. Empty disables the transaction journal.
	DatabaseURL string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// Codec configuration
	TokenDecimals uint8
}

// JournalEnabled reports whether a database is configured.
func (c *Config) JournalEnabled() bool {
	return c.DatabaseURL != ""
}

// EventsEnabled reports whether a NATS server is configured.
func (c *Config) EventsEnabled() bool {
	return c.NATSURL != ""
}

// Load reads configuration from environment variables and validates all fields.
// Returns an error listing every invalid setting.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	maxBody, err := parseInt("MAX_REQUEST_BODY_BYTES", defaultMaxRequestBodyBytes)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MaxRequestBodyBytes = int64(maxBody)
	}

	// Optional backends
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Codec configuration
	decimals, err := parseInt("TOKEN_DECIMALS", DefaultTokenDecimals)
	if err != nil {
		errs = append(errs, err)
	} else if decimals < 0 || decimals > MaxTokenDecimals {
		errs = append(errs, fmt.Errorf("TOKEN_DECIMALS must be between 0 and %d, got %d", MaxTokenDecimals, decimals))
	} else {
		cfg.TokenDecimals = uint8(decimals)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, fmt.Errorf("ServerAddr is required"))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LogLevel must be one of debug, info, warn, error, got %q", c.LogLevel))
	}

	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("MaxRequestBodyBytes must be positive"))
	}

	if c.TokenDecimals > MaxTokenDecimals {
		errs = append(errs, fmt.Errorf("TokenDecimals cannot exceed %d", MaxTokenDecimals))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
