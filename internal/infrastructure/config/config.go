package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Environment variable names understood by a worker process.
const (
	EnvMemoryLimit      = "USERCODE_MEMORY_LIMIT_BYTES"
	EnvMaxCallStack     = "USERCODE_MAX_CALL_STACK"
	EnvWatchdogInterval = "USERCODE_WATCHDOG_INTERVAL"
	EnvConsole          = "USERCODE_CONSOLE"
	EnvLogLevel         = "USERCODE_LOG_LEVEL"
	EnvLogDev           = "USERCODE_LOG_DEV"
)

// Config holds worker process configuration.
type Config struct {
	Worker  WorkerConfig
	Logging LogConfig
}

// WorkerConfig holds the resource limits of one execution unit.
type WorkerConfig struct {
	MemoryLimitBytes int64         `envconfig:"USERCODE_MEMORY_LIMIT_BYTES" default:"134217728"`
	MaxCallStackSize int           `envconfig:"USERCODE_MAX_CALL_STACK" default:"10000"`
	WatchdogInterval time.Duration `envconfig:"USERCODE_WATCHDOG_INTERVAL" default:"10ms"`
	EnableConsole    bool          `envconfig:"USERCODE_CONSOLE" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"USERCODE_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"USERCODE_LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Worker.MemoryLimitBytes <= 0 {
		return nil, fmt.Errorf("failed to load config: %s must be positive", EnvMemoryLimit)
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			MemoryLimitBytes: 128 << 20,
			MaxCallStackSize: 10000,
			WatchdogInterval: 10 * time.Millisecond,
			EnableConsole:    true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Environ renders the configuration as KEY=value pairs for a child process.
func (c *Config) Environ() []string {
	return []string{
		EnvMemoryLimit + "=" + strconv.FormatInt(c.Worker.MemoryLimitBytes, 10),
		EnvMaxCallStack + "=" + strconv.Itoa(c.Worker.MaxCallStackSize),
		EnvWatchdogInterval + "=" + c.Worker.WatchdogInterval.String(),
		EnvConsole + "=" + strconv.FormatBool(c.Worker.EnableConsole),
		EnvLogLevel + "=" + c.Logging.Level,
		EnvLogDev + "=" + strconv.FormatBool(c.Logging.Development),
	}
}
