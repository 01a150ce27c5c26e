// Package dedupe tracks identities with a refresh already pending so that
// repeated "update now" requests collapse into one job.
package dedupe

import (
	"container/list"
	"context"
	"sync"

	"github.com/okian/rks/pkg/metrics"
)

// Tracker records identities with an outstanding refresh.
type Tracker interface {
	// Claim atomically marks identity as pending. It returns false when a
	// refresh for identity is already pending.
	Claim(ctx context.Context, identity string) bool

	// Release clears the pending mark once the refresh finished, or when it
	// could not be queued at all.
	Release(ctx context.Context, identity string)

	Pending() int
}

// inMemoryTracker keeps claims in a map plus an insertion-ordered list.
// Bounded mode (maxSize > 0) forgets the oldest claim when full, so a claim
// leaked by a crashed job cannot block an identity forever.
type inMemoryTracker struct {
	mu      sync.Mutex
	claims  map[string]*list.Element
	order   *list.List // front is the oldest claim
	maxSize int
}

// NewInMemoryTracker creates a tracker with configuration options.
func NewInMemoryTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.claims = make(map[string]*list.Element)
	t.order = list.New()
	return t
}

func (t *inMemoryTracker) Claim(_ context.Context, identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.claims[identity]; ok {
		return false
	}
	if t.maxSize > 0 && len(t.claims) >= t.maxSize {
		oldest := t.order.Front()
		t.order.Remove(oldest)
		delete(t.claims, oldest.Value.(string))
	}
	t.claims[identity] = t.order.PushBack(identity)
	metrics.UpdatePendingRefreshes(len(t.claims))
	return true
}

func (t *inMemoryTracker) Release(_ context.Context, identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.claims[identity]; ok {
		t.order.Remove(el)
		delete(t.claims, identity)
		metrics.UpdatePendingRefreshes(len(t.claims))
	}
}

func (t *inMemoryTracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.claims)
}
