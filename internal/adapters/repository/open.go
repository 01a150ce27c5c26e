package repository

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open builds a Store for the named backend. location is the directory for
// the file backend and the database path for SQLite; memory ignores it.
func Open(ctx context.Context, backend, location string, opts ...Option) (*Store, error) {
	switch backend {
	case BackendFile:
		return NewFile(location, opts...)
	case BackendSQLite:
		return NewSQLite(ctx, location, opts...)
	case BackendMemory:
		return NewMemory(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
