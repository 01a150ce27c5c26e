package repository

import (
	"context"
	"sync"

	"github.com/okian/rks/internal/domain/model"
)

// MemoryBackend keeps history in process memory. State is lost on exit.
type MemoryBackend struct {
	mu        sync.RWMutex
	windows   map[string]model.Window
	timelines map[string][]model.Snapshot
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		windows:   make(map[string]model.Window),
		timelines: make(map[string][]model.Snapshot),
	}
}

// NewMemory returns a Store backed by process memory.
func NewMemory(opts ...Option) *Store {
	return New(NewMemoryBackend(), opts...)
}

func (b *MemoryBackend) ReadWindow(_ context.Context, identity string) (Lookup[model.Window], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.windows[identity]
	if !ok {
		return absent[model.Window](), nil
	}
	return found(append(model.Window(nil), w...)), nil
}

func (b *MemoryBackend) WriteWindow(_ context.Context, identity string, w model.Window) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windows[identity] = append(model.Window(nil), w...)
	return nil
}

func (b *MemoryBackend) ReadTimeline(_ context.Context, identity string) (Lookup[[]model.Snapshot], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tl, ok := b.timelines[identity]
	if !ok {
		return absent[[]model.Snapshot](), nil
	}
	return found(append([]model.Snapshot(nil), tl...)), nil
}

func (b *MemoryBackend) PutSnapshot(_ context.Context, identity string, snap model.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timelines[identity] = upsertSnapshot(b.timelines[identity], snap)
	return nil
}

// Record applies both writes under one lock.
func (b *MemoryBackend) Record(_ context.Context, identity string, snap model.Snapshot, w model.Window) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timelines[identity] = upsertSnapshot(b.timelines[identity], snap)
	b.windows[identity] = append(model.Window(nil), w...)
	return nil
}

func (b *MemoryBackend) Close() error { return nil }
