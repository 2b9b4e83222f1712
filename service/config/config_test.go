package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(1<<20), cfg.MaxRequestBodyBytes)
	assert.Equal(t, uint8(DefaultTokenDecimals), cfg.TokenDecimals)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.NATSURL)
	assert.False(t, cfg.JournalEnabled())
	assert.False(t, cfg.EventsEnabled())
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("TOKEN_DECIMALS", "9")
	os.Setenv("MAX_REQUEST_BODY_BYTES", "4096")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, uint8(9), cfg.TokenDecimals)
	assert.Equal(t, int64(4096), cfg.MaxRequestBodyBytes)
	assert.True(t, cfg.JournalEnabled())
	assert.True(t, cfg.EventsEnabled())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "decimals not a number",
			env:     map[string]string{"TOKEN_DECIMALS": "six"},
			wantErr: "invalid integer",
		},
		{
			name:    "decimals too large",
			env:     map[string]string{"TOKEN_DECIMALS": "19"},
			wantErr: "between 0 and 18",
		},
		{
			name:    "negative decimals",
			env:     map[string]string{"TOKEN_DECIMALS": "-1"},
			wantErr: "between 0 and 18",
		},
		{
			name:    "body limit not a number",
			env:     map[string]string{"MAX_REQUEST_BODY_BYTES": "1MB"},
			wantErr: "MAX_REQUEST_BODY_BYTES",
		},
		{
			name:    "zero body limit",
			env:     map[string]string{"MAX_REQUEST_BODY_BYTES": "0"},
			wantErr: "MaxRequestBodyBytes must be positive",
		},
		{
			name:    "unknown log level",
			env:     map[string]string{"LOG_LEVEL": "verbose"},
			wantErr: "LogLevel must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			defer cleanupEnv()

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ReportsAllErrors(t *testing.T) {
	os.Setenv("TOKEN_DECIMALS", "x")
	os.Setenv("MAX_REQUEST_BODY_BYTES", "y")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_DECIMALS")
	assert.Contains(t, err.Error(), "MAX_REQUEST_BODY_BYTES")
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		ServerAddr:          ":8080",
		LogLevel:            "warn",
		MaxRequestBodyBytes: 1024,
		TokenDecimals:       6,
	}

	assert.NoError(t, cfg.Validate())
}

func TestValidate_Invalid(t *testing.T) {
	cfg := &Config{
		LogLevel:      "info",
		TokenDecimals: 30,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ServerAddr is required")
	assert.Contains(t, err.Error(), "MaxRequestBodyBytes must be positive")
	assert.Contains(t, err.Error(), "TokenDecimals cannot exceed 18")
}

func TestMustLoad_Panics(t *testing.T) {
	os.Setenv("TOKEN_DECIMALS", "255")
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	os.Unsetenv("SERVER_ADDR")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("NATS_URL")
	os.Unsetenv("TOKEN_DECIMALS")
	os.Unsetenv("MAX_REQUEST_BODY_BYTES")
}
