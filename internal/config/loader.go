package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if RKS_CONFIG is set
//  3. env (prefix RKS_)
//
// When RKS_DOTENV names a file, it is loaded into the environment first.
// Variables already set in the process win over the file.
func Load(_ context.Context) (*Config, error) {
	base := New()

	if path := os.Getenv("RKS_DOTENV"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("%w: dotenv %s: %w", ErrLoadConfig, path, err)
		}
	}

	k := koanf.New(".")

	if path := os.Getenv("RKS_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// RKS_QUEUE_SIZE -> queue_size; underscores are kept to match the tags.
	envProvider := env.Provider("RKS_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "rks_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot fix up.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.BestCount < 1:
		return fmt.Errorf("%w: best_count must be at least 1", ErrInvalidConfig)
	case c.PhiCount < 0:
		return fmt.Errorf("%w: phi_count must not be negative", ErrInvalidConfig)
	case c.MaxBestCount < c.BestCount:
		return fmt.Errorf("%w: max_best_count must be at least best_count", ErrInvalidConfig)
	case c.QueueSize < 1 || c.WorkerCount < 1 || c.LockTableSize < 1:
		return fmt.Errorf("%w: queue_size, worker_count and lock_table_size must be positive", ErrInvalidConfig)
	}
	switch c.HistoryBackend {
	case BackendFile:
		if c.HistoryDir == "" {
			return fmt.Errorf("%w: history_dir must not be empty", ErrInvalidConfig)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown history_backend %q", ErrInvalidConfig, c.HistoryBackend)
	}
	return nil
}
