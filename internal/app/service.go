// Package service answers rating queries for the HTTP API and the CLI. It
// combines the save provider, the selector and the history store, and runs
// asynchronous refreshes on a worker pool.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rks/internal/adapters/mq/queue"
	"github.com/okian/rks/internal/adapters/mq/worker"
	"github.com/okian/rks/internal/adapters/repository"
	"github.com/okian/rks/internal/adapters/savedata"
	"github.com/okian/rks/internal/domain/catalog"
	"github.com/okian/rks/internal/domain/dedupe"
	"github.com/okian/rks/internal/domain/keylock"
	"github.com/okian/rks/internal/domain/model"
	"github.com/okian/rks/internal/domain/rating"
	"github.com/okian/rks/internal/domain/selector"
	"github.com/okian/rks/internal/domain/types"
	"github.com/okian/rks/pkg/logger"
	"github.com/okian/rks/pkg/metrics"
)

// Defaults for Service.
const (
	DefaultBestCount    = 30
	DefaultPhiCount     = 3
	DefaultMaxBestCount = 200
)

// Advisory messages returned alongside degraded results.
const (
	AdvisoryStale     = "save fetch failed, showing the last recorded rating"
	AdvisoryNoHistory = "save fetch failed and no rating was recorded yet"
	AdvisoryUnsaved   = "rating computed but could not be recorded"
)

// Service implements the rating gateway.
type Service struct {
	mu sync.RWMutex

	history  repository.HistoryStore
	provider savedata.Provider
	catalog  catalog.Catalog

	locks   *keylock.Set
	pending dedupe.Tracker
	queue   queue.Queue
	pool    *worker.Pool

	// Configuration
	bestCount    int
	phiCount     int
	maxBestCount int
	workerCount  int
	queueSize    int
	lockSlots    int
	jobTimeout   time.Duration
	now          func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithBestCount sets B, the fixed best-set size and overall divisor.
func WithBestCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.bestCount = n
		}
	}
}

// WithPhiCount sets the default perfect-set size for Best.
func WithPhiCount(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.phiCount = n
		}
	}
}

// WithMaxBestCount caps the best count a caller may request.
func WithMaxBestCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBestCount = n
		}
	}
}

// WithWorkerCount sets the number of refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the refresh queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLockSlots sets the size of the per-identity lock table.
func WithLockSlots(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.lockSlots = n
		}
	}
}

// WithJobTimeout bounds a single asynchronous refresh.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithClock overrides the clock used to key snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Start must be called before EnqueueRefresh.
func New(history repository.HistoryStore, provider savedata.Provider, cat catalog.Catalog, opts ...Option) *Service {
	s := &Service{
		history:      history,
		provider:     provider,
		catalog:      cat,
		bestCount:    DefaultBestCount,
		phiCount:     DefaultPhiCount,
		maxBestCount: DefaultMaxBestCount,
		workerCount:  4,
		queueSize:    1024,
		lockSlots:    keylock.DefaultSize,
		jobTimeout:   time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("gateway")
	}
	s.locks = keylock.New(s.lockSlots)
	s.pending = dedupe.NewInMemoryTracker(dedupe.WithMaxSize(s.queueSize))
	return s
}

// Start launches the refresh workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithJobTimeout(s.jobTimeout))
	s.pool.Start(ctx)
	s.started = true

	s.logger.Info(ctx, "rating service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("best_count", s.bestCount),
	)
	return nil
}

// Stop drains the refresh queue and closes the history store.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
		}
		s.started = false
	}
	if err := s.history.Close(); err != nil {
		s.logger.Error(ctx, "closing history store failed", logger.Error(err))
	}
	s.logger.Info(ctx, "rating service stopped")
}

// CurrentRating returns the overall rating for identity, reading through the
// history: a recorded positive rating is returned as is, otherwise a fresh
// save is fetched and recorded. It never fails; when no fresh rating can be
// produced the last window value (or 0) is returned with an advisory.
func (s *Service) CurrentRating(ctx context.Context, identity string) types.RatingEntry {
	entry := types.RatingEntry{Identity: identity}
	if err := repository.ValidateIdentity(identity); err != nil {
		entry.Advisory = err.Error()
		return entry
	}

	unlock := s.locks.Lock(identity)
	defer unlock()

	snap, err := s.history.LatestSnapshot(ctx, identity)
	switch {
	case err == nil && snap.Rating > 0:
		metrics.RecordCacheHit()
		entry.RKS = snap.Rating
		entry.Cached = true
		entry.Previous, entry.Delta = s.windowState(ctx, identity)
		return entry
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		s.logger.Warn(ctx, "history read failed, refreshing", logger.Identity(identity), logger.Error(err))
	}
	metrics.RecordCacheMiss()

	out, err := s.refreshLocked(ctx, identity)
	if err == nil {
		entry.RKS = out.current
		entry.Previous = out.previous
		entry.Delta = out.window.Delta()
		return entry
	}
	if errors.Is(err, ErrPersist) {
		entry.RKS = out.current
		entry.Previous = out.previous
		entry.Advisory = AdvisoryUnsaved
		return entry
	}

	metrics.RecordFallback()
	s.logger.Warn(ctx, "serving stale rating", logger.Identity(identity), logger.Error(err))
	latest, lerr := s.history.LatestRating(ctx, identity)
	if lerr != nil {
		s.logger.Error(ctx, "window read failed", logger.Identity(identity), logger.Error(lerr))
	}
	entry.RKS = latest
	entry.Previous, entry.Delta = s.windowState(ctx, identity)
	entry.Advisory = AdvisoryStale
	if latest == 0 {
		entry.Advisory = AdvisoryNoHistory
	}
	return entry
}

// RefreshAndRecord always fetches, recomputes and records a rating, and
// returns it with the rating recorded before it.
func (s *Service) RefreshAndRecord(ctx context.Context, identity string) (current, previous float64, err error) {
	if err := repository.ValidateIdentity(identity); err != nil {
		return 0, 0, err
	}
	unlock := s.locks.Lock(identity)
	defer unlock()

	out, err := s.refreshLocked(ctx, identity)
	if err != nil {
		return out.current, out.previous, err
	}
	return out.current, out.previous, nil
}

// Best refreshes identity and returns its best and perfect boards for the
// requested sizes. b is capped by the configured maximum; negative sizes are
// rejected before anything is fetched.
func (s *Service) Best(ctx context.Context, identity string, b, p int, includeOriginal, includeUser bool) (types.BestResponse, error) {
	if b < 0 || p < 0 || b > s.maxBestCount || p > s.maxBestCount {
		return types.BestResponse{}, fmt.Errorf("%w: best=%d phi=%d (max %d)", ErrInvalidRequest, b, p, s.maxBestCount)
	}
	if err := repository.ValidateIdentity(identity); err != nil {
		return types.BestResponse{}, err
	}

	unlock := s.locks.Lock(identity)
	defer unlock()

	out, err := s.refreshLocked(ctx, identity)
	if err != nil && !errors.Is(err, ErrPersist) {
		return types.BestResponse{}, err
	}
	if err != nil {
		s.logger.Warn(ctx, "serving board without recording", logger.Identity(identity), logger.Error(err))
	}

	res, err := selector.Select(out.set.Records, s.catalog, b, p)
	if err != nil {
		return types.BestResponse{}, err
	}
	resp := types.BestResponse{Board: res.View(), RKS: out.current}
	if includeOriginal {
		resp.Original = map[string]json.RawMessage{out.set.Timestamp: out.set.Raw}
	}
	if includeUser {
		resp.UserInfo = out.set.Summary
	}
	return resp, nil
}

// History returns the recorded state of identity without fetching.
func (s *Service) History(ctx context.Context, identity string) (types.HistoryEntry, error) {
	w, err := s.history.Window(ctx, identity)
	if err != nil {
		return types.HistoryEntry{}, err
	}
	tl, err := s.history.Timeline(ctx, identity)
	if err != nil {
		return types.HistoryEntry{}, err
	}
	entry := types.HistoryEntry{
		Window:    append([]float64{}, w...),
		Delta:     w.Delta(),
		Snapshots: len(tl),
	}
	if len(tl) > 0 {
		last := tl[len(tl)-1]
		entry.Latest = &types.Snapshot{Timestamp: last.Timestamp, RKS: last.Rating, Summary: last.Summary}
	}
	return entry, nil
}

// PruneHistory drops all but the newest window value.
func (s *Service) PruneHistory(ctx context.Context, identity string) error {
	if err := repository.ValidateIdentity(identity); err != nil {
		return err
	}
	unlock := s.locks.Lock(identity)
	defer unlock()
	return s.history.PruneWindow(ctx, identity)
}

// Suggest runs the push-suggestion search for one play.
func (s *Service) Suggest(acc, level float64) (types.Suggestion, error) {
	if math.IsNaN(acc) || math.IsNaN(level) || math.IsInf(level, 0) ||
		acc < 0 || acc > model.PerfectAccuracy || level <= 0 {
		return types.Suggestion{}, fmt.Errorf("%w: acc=%v level=%v", ErrInvalidRequest, acc, level)
	}
	current := rating.Single(acc, level)
	out := types.Suggestion{Acc: acc, Level: level, RKS: rating.Round(current)}
	if target, ok := rating.Suggest(acc, current, level); ok {
		target = rating.Round(target)
		out.PushAcc = &target
	}
	return out, nil
}

// EnqueueRefresh schedules an asynchronous RefreshAndRecord. queued is false
// when a refresh for identity is already pending; that request stands for
// this one.
func (s *Service) EnqueueRefresh(ctx context.Context, identity string) (jobID string, queued bool, err error) {
	if err := repository.ValidateIdentity(identity); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return "", false, ErrNotStarted
	}

	if !s.pending.Claim(ctx, identity) {
		s.logger.Debug(ctx, "refresh already pending", logger.Identity(identity))
		return "", false, nil
	}
	job := model.RefreshJob{ID: uuid.NewString(), Identity: identity, EnqueuedAt: s.now()}
	if err := q.Enqueue(ctx, job); err != nil {
		s.pending.Release(ctx, identity)
		return "", false, err
	}
	return job.ID, true, nil
}

// ProcessRefresh implements worker.Refresher.
func (s *Service) ProcessRefresh(ctx context.Context, job model.RefreshJob) error {
	defer s.pending.Release(ctx, job.Identity)
	current, previous, err := s.RefreshAndRecord(ctx, job.Identity)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "rating refreshed",
		logger.String("job_id", job.ID),
		logger.Identity(job.Identity),
		logger.Float64("rks", current),
		logger.Float64("previous", previous))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":          s.started,
		"bestCount":        s.bestCount,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"pendingRefresh":   s.pending.Pending(),
		"lockedIdentities": s.locks.Held(),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len()
		metrics.UpdateQueueSize(s.queue.Len())
	}
	if c, ok := s.catalog.(interface{ Len() int }); ok {
		stats["catalogSongs"] = c.Len()
	}
	return stats
}

type refreshOutcome struct {
	current  float64
	previous float64
	window   model.Window
	set      model.SaveSet
}

// refreshLocked fetches, selects and records. The caller holds identity's
// lock. On ErrPersist the outcome still carries the computed rating.
func (s *Service) refreshLocked(ctx context.Context, identity string) (refreshOutcome, error) {
	var out refreshOutcome

	set, err := s.provider.Fetch(ctx, identity)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrRemoteFetch, err)
	}
	out.set = set

	start := time.Now()
	res, err := selector.Select(set.Records, s.catalog, s.bestCount, 0)
	metrics.RecordSelectionLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		return out, err
	}
	metrics.RecordUnratable(res.Unratable)
	out.current = res.Overall(s.bestCount)

	// Capture the displaced value before pushing the new one.
	out.previous, err = s.history.PreviousRating(ctx, identity)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	snap := model.Snapshot{
		Timestamp: model.Timestamp(s.now()),
		Rating:    out.current,
		Summary:   set.Summary,
	}
	// The snapshot and its window entry land together or not at all; a
	// snapshot alone would turn every later read into a cache hit.
	out.window, err = s.history.Record(ctx, identity, snap)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	metrics.RecordRefresh(out.current)
	s.logger.Debug(ctx, "rating recorded",
		logger.Identity(identity),
		logger.Float64("rks", out.current),
		logger.Int("rated", res.Rated),
		logger.Int("unratable", res.Unratable))
	return out, nil
}

// windowState reads the value before the newest one and the delta, logging
// and defaulting on read failure.
func (s *Service) windowState(ctx context.Context, identity string) (previous, delta float64) {
	w, err := s.history.Window(ctx, identity)
	if err != nil {
		s.logger.Warn(ctx, "window read failed", logger.Identity(identity), logger.Error(err))
		return 0, 0
	}
	if len(w) > 1 {
		previous = w[1]
	}
	return previous, w.Delta()
}

// DefaultCounts returns the configured best and perfect set sizes.
func (s *Service) DefaultCounts() (best, phi int) {
	return s.bestCount, s.phiCount
}
