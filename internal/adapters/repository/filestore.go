package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/rks/internal/domain/model"
)

// File names inside an identity's directory.
const (
	TimelineFile = "summaryHistory.json"
	WindowFile   = "rks.json"
)

// FileBackend keeps one directory per identity holding a timeline file and a
// window file. Every write rewrites the whole file via a synced temp file and
// a rename, so a crash leaves either the old or the new content.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// NewFile returns a Store persisting to JSON files under dir.
func NewFile(dir string, opts ...Option) (*Store, error) {
	b, err := NewFileBackend(dir)
	if err != nil {
		return nil, err
	}
	return New(b, opts...), nil
}

func (b *FileBackend) path(identity, name string) string {
	return filepath.Join(b.dir, identity, name)
}

func (b *FileBackend) ReadWindow(_ context.Context, identity string) (Lookup[model.Window], error) {
	data, err := os.ReadFile(b.path(identity, WindowFile))
	if errors.Is(err, fs.ErrNotExist) {
		return absent[model.Window](), nil
	}
	if err != nil {
		return Lookup[model.Window]{}, err
	}
	w, err := decodeWindow(data)
	if err != nil {
		return corrupt[model.Window](err), nil
	}
	return found(w), nil
}

func (b *FileBackend) WriteWindow(_ context.Context, identity string, w model.Window) error {
	data, err := encodeWindow(w)
	if err != nil {
		return err
	}
	return writeFileAtomic(b.path(identity, WindowFile), data)
}

func (b *FileBackend) ReadTimeline(_ context.Context, identity string) (Lookup[[]model.Snapshot], error) {
	data, err := os.ReadFile(b.path(identity, TimelineFile))
	if errors.Is(err, fs.ErrNotExist) {
		return absent[[]model.Snapshot](), nil
	}
	if err != nil {
		return Lookup[[]model.Snapshot]{}, err
	}
	tl, err := decodeTimeline(data)
	if err != nil {
		return corrupt[[]model.Snapshot](err), nil
	}
	return found(tl), nil
}

// PutSnapshot reads the whole timeline, merges snap and rewrites it. A corrupt
// timeline is moved aside before a fresh one is started.
func (b *FileBackend) PutSnapshot(ctx context.Context, identity string, snap model.Snapshot) error {
	l, err := b.ReadTimeline(ctx, identity)
	if err != nil {
		return err
	}
	path := b.path(identity, TimelineFile)
	if l.Status == Corrupt {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().UnixNano())
		if err := os.Rename(path, aside); err != nil {
			return fmt.Errorf("move corrupt timeline: %w", err)
		}
	}
	data, err := encodeTimeline(upsertSnapshot(l.Value, snap))
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func (b *FileBackend) Close() error { return nil }

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	// Some filesystems refuse to fsync a directory; the rename already happened.
	_ = d.Sync()
	return nil
}
