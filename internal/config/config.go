// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Loading functions accept context.Context as the first parameter.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"runtime"
)

// History backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// HistoryBackend selects the history store: file, sqlite or memory.
	HistoryBackend string `koanf:"history_backend"`
	// HistoryDir is the root directory of the file backend.
	HistoryDir string `koanf:"history_dir"`
	// SQLitePath is the database file of the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// CatalogPath points at the difficulty catalog TSV.
	CatalogPath string `koanf:"catalog_path"`
	// CatalogReloadCron schedules catalog reloads. Empty disables reloading.
	CatalogReloadCron string `koanf:"catalog_reload_cron"`

	// SavesDir holds one <identity>.json save per player.
	SavesDir string `koanf:"saves_dir"`

	// BestCount is B, the best-set size and the overall divisor.
	BestCount int `koanf:"best_count"`
	// PhiCount is the default perfect-set size.
	PhiCount int `koanf:"phi_count"`
	// MaxBestCount caps GET /best?best and ?phi.
	MaxBestCount int `koanf:"max_best_count"`

	// FetchTimeoutMS bounds one save fetch.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`
	// FetchRatePerSec and FetchBurst throttle save fetches across identities.
	FetchRatePerSec float64 `koanf:"fetch_rate_per_sec"`
	FetchBurst      int     `koanf:"fetch_burst"`

	// QueueSize bounds the async refresh queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of refresh workers.
	WorkerCount int `koanf:"worker_count"`
	// LockTableSize sets the number of per-identity lock slots.
	LockTableSize int `koanf:"lock_table_size"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		HistoryBackend:    BackendFile,
		HistoryDir:        "data/history",
		SQLitePath:        "data/history.db",
		CatalogPath:       "data/difficulty.tsv",
		CatalogReloadCron: "1 0,17 * * *",
		SavesDir:          "data/saves",
		BestCount:         30,
		PhiCount:          3,
		MaxBestCount:      200,
		FetchTimeoutMS:    10_000,
		FetchRatePerSec:   5,
		FetchBurst:        5,
		QueueSize:         1024,
		WorkerCount:       runtime.NumCPU(),
		LockTableSize:     256,
	}
}
