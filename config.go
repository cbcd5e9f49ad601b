package evoke

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config groups the engine's tunables. Zero values fall back to defaults at
// Validate time.
type Config struct {
	// Workers sizes the async dispatch worker pool.
	Workers int `env:"EVOKE_WORKERS" envDefault:"8"`

	// QueueCapacity bounds the async job queue; 0 means unbounded.
	QueueCapacity int `env:"EVOKE_QUEUE_CAPACITY" envDefault:"256"`

	// MetricsEnabled gates the built-in Prometheus middleware registration
	// performed by applications that wire MetricsMiddleware conditionally.
	MetricsEnabled bool `env:"EVOKE_METRICS_ENABLED" envDefault:"false"`

	// LogLevel sets the level for the built-in logging middleware:
	// debug, info, warn, or error.
	LogLevel string `env:"EVOKE_LOG_LEVEL" envDefault:"info"`
}

// DefaultConfig returns the configuration used when no option overrides it.
func DefaultConfig() Config {
	return Config{
		Workers:       8,
		QueueCapacity: 256,
		LogLevel:      "info",
	}
}

// ConfigFromEnv loads configuration from EVOKE_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration and normalizes zero values to defaults.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, errors.New("workers cannot be negative"))
	}
	if c.QueueCapacity < 0 {
		errs = append(errs, errors.New("queue capacity cannot be negative"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if c.Workers == 0 {
		c.Workers = DefaultConfig().Workers
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultConfig().LogLevel
	}
	return nil
}

// SlogLevel maps LogLevel onto slog's levels.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
