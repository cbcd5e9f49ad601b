package evoke

import (
	"log/slog"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if cfg.Workers != 8 || cfg.QueueCapacity != 256 {
			t.Errorf("defaults = %+v", cfg)
		}
	})

	t.Run("rejects negative workers", func(t *testing.T) {
		cfg := Config{Workers: -1}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for negative workers")
		}
	})

	t.Run("rejects negative queue capacity", func(t *testing.T) {
		cfg := Config{QueueCapacity: -1}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for negative queue capacity")
		}
	})

	t.Run("rejects unknown log level", func(t *testing.T) {
		cfg := Config{LogLevel: "verbose"}
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for unknown log level")
		}
	})

	t.Run("normalizes zero values", func(t *testing.T) {
		cfg := Config{}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if cfg.Workers != 8 {
			t.Errorf("workers = %d, want 8", cfg.Workers)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("log level = %q, want info", cfg.LogLevel)
		}
	})

	t.Run("loads from environment", func(t *testing.T) {
		t.Setenv("EVOKE_WORKERS", "4")
		t.Setenv("EVOKE_QUEUE_CAPACITY", "32")
		t.Setenv("EVOKE_LOG_LEVEL", "debug")

		cfg, err := ConfigFromEnv()
		if err != nil {
			t.Fatalf("ConfigFromEnv: %v", err)
		}
		if cfg.Workers != 4 || cfg.QueueCapacity != 32 || cfg.LogLevel != "debug" {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("rejects invalid environment values", func(t *testing.T) {
		t.Setenv("EVOKE_WORKERS", "-2")

		if _, err := ConfigFromEnv(); err == nil {
			t.Error("expected error for negative workers from env")
		}
	})
}

func TestConfigSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for level, want := range tests {
		cfg := Config{LogLevel: level}
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}
