package catalog

import (
	"context"
	"sync"

	"github.com/okian/rks/internal/domain/model"
	"github.com/okian/rks/pkg/logger"
	"github.com/okian/rks/pkg/metrics"
)

// Reloadable serves a catalog file and swaps in a fresh copy on Reload. A
// failed reload keeps the previous table.
type Reloadable struct {
	path   string
	logger logger.Logger

	mu    sync.RWMutex
	table *Table
}

// Option applies a configuration option to a Reloadable.
type Option func(*Reloadable)

// WithLogger sets the logger used to report reloads.
func WithLogger(l logger.Logger) Option {
	return func(r *Reloadable) {
		if l != nil {
			r.logger = l
		}
	}
}

// Open loads path and returns a Reloadable serving it.
func Open(ctx context.Context, path string, opts ...Option) (*Reloadable, error) {
	r := &Reloadable{path: path}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("catalog")
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Level implements Catalog.
func (r *Reloadable) Level(songID string, tier model.Tier) (float64, bool) {
	r.mu.RLock()
	t := r.table
	r.mu.RUnlock()
	return t.Level(songID, tier)
}

// Len returns the number of songs currently loaded.
func (r *Reloadable) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Len()
}

// Reload re-reads the catalog file.
func (r *Reloadable) Reload(ctx context.Context) error {
	t, err := LoadFile(r.path)
	if err != nil {
		metrics.RecordCatalogReload("error")
		r.logger.Error(ctx, "catalog reload failed", logger.String("path", r.path), logger.Error(err))
		return err
	}

	r.mu.Lock()
	r.table = t
	r.mu.Unlock()

	metrics.RecordCatalogReload("ok")
	metrics.UpdateCatalogEntries(t.Len())
	r.logger.Info(ctx, "catalog loaded", logger.String("path", r.path), logger.Int("songs", t.Len()))
	return nil
}
