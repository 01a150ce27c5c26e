// Package keylock serializes work per key using a fixed table of mutexes.
//
// Keys are hashed onto the table, so two keys may share a mutex. That only
// ever serializes unrelated keys, it never lets one key run concurrently with
// itself.
package keylock

import (
	"hash/maphash"
	"sync"
	"sync/atomic"

	"github.com/okian/rks/pkg/metrics"
)

// DefaultSize is the table size used when none is configured.
const DefaultSize = 256

// Set is a bounded table of per-key mutexes.
type Set struct {
	seed  maphash.Seed
	slots []sync.Mutex
	held  atomic.Int64
}

// New returns a Set with size slots; size <= 0 uses DefaultSize.
func New(size int) *Set {
	if size <= 0 {
		size = DefaultSize
	}
	return &Set{
		seed:  maphash.MakeSeed(),
		slots: make([]sync.Mutex, size),
	}
}

func (s *Set) slot(key string) *sync.Mutex {
	return &s.slots[maphash.String(s.seed, key)%uint64(len(s.slots))]
}

// Lock blocks until key is free and returns the matching unlock function.
func (s *Set) Lock(key string) (unlock func()) {
	m := s.slot(key)
	m.Lock()
	metrics.UpdateIdentityLocks(int(s.held.Add(1)))

	var once sync.Once
	return func() {
		once.Do(func() {
			metrics.UpdateIdentityLocks(int(s.held.Add(-1)))
			m.Unlock()
		})
	}
}

// Do runs fn while holding key's lock.
func (s *Set) Do(key string, fn func() error) error {
	unlock := s.Lock(key)
	defer unlock()
	return fn()
}

// Held returns the number of locks currently held.
func (s *Set) Held() int {
	return int(s.held.Load())
}

// Size returns the number of slots.
func (s *Set) Size() int {
	return len(s.slots)
}
