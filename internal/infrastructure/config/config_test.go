package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetAll() {
	for _, key := range []string{EnvMemoryLimit, EnvMaxCallStack, EnvWatchdogInterval, EnvConsole, EnvLogLevel, EnvLogDev} {
		os.Unsetenv(key)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, int64(128<<20), cfg.Worker.MemoryLimitBytes)
	assert.Equal(t, 10000, cfg.Worker.MaxCallStackSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Worker.WatchdogInterval)
	assert.True(t, cfg.Worker.EnableConsole)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadMatchesDefault(t *testing.T) {
	unsetAll()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	unsetAll()
	envVars := map[string]string{
		EnvMemoryLimit:      "1048576",
		EnvMaxCallStack:     "500",
		EnvWatchdogInterval: "50ms",
		EnvConsole:          "false",
		EnvLogLevel:         "debug",
		EnvLogDev:           "true",
	}

	for key, value := range envVars {
		require.NoError(t, os.Setenv(key, value))
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1048576), cfg.Worker.MemoryLimitBytes)
	assert.Equal(t, 500, cfg.Worker.MaxCallStackSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Worker.WatchdogInterval)
	assert.False(t, cfg.Worker.EnableConsole)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non numeric limit", key: EnvMemoryLimit, value: "lots"},
		{name: "zero limit", key: EnvMemoryLimit, value: "0"},
		{name: "bad duration", key: EnvWatchdogInterval, value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetAll()
			require.NoError(t, os.Setenv(tt.key, tt.value))
			defer os.Unsetenv(tt.key)

			cfg, err := Load()
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestEnvironRoundTrip(t *testing.T) {
	unsetAll()
	want := Default()
	want.Worker.MemoryLimitBytes = 64 << 20
	want.Worker.MaxCallStackSize = 2048
	want.Logging.Level = "warn"

	for _, kv := range want.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		require.True(t, ok)
		require.NoError(t, os.Setenv(key, value))
		defer os.Unsetenv(key)
	}

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
