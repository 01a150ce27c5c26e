// Package repository persists per-identity rating history: an append-only
// snapshot timeline and a bounded rolling window of overall ratings.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/okian/rks/internal/domain/model"
	"github.com/okian/rks/pkg/logger"
	"github.com/okian/rks/pkg/metrics"
)

// HistoryStore provides read/write access to rating history.
//
// Calls for different identities never interfere. Callers must serialize
// read-modify-write sequences for the same identity themselves.
type HistoryStore interface {
	// AppendSnapshot adds snap to the timeline, replacing any snapshot with
	// the same timestamp key.
	AppendSnapshot(ctx context.Context, identity string, snap model.Snapshot) error
	// LatestSnapshot returns the snapshot with the greatest timestamp key.
	// Returns ErrNotFound if there is none.
	LatestSnapshot(ctx context.Context, identity string) (model.Snapshot, error)
	// Timeline returns every snapshot ordered by timestamp key.
	Timeline(ctx context.Context, identity string) ([]model.Snapshot, error)

	// PushRating prepends v to the window, evicting beyond model.WindowSize,
	// and returns the new window.
	PushRating(ctx context.Context, identity string, v float64) (model.Window, error)
	// LatestRating returns window[0], or 0 for an empty window.
	LatestRating(ctx context.Context, identity string) (float64, error)
	// PreviousRating returns the value a push would displace, so capture it
	// before calling PushRating.
	PreviousRating(ctx context.Context, identity string) (float64, error)
	// RatingDelta returns window[0]-window[1], or 0 with fewer than two values.
	RatingDelta(ctx context.Context, identity string) (float64, error)
	// Window returns the whole rolling window, newest first.
	Window(ctx context.Context, identity string) (model.Window, error)
	// PruneWindow keeps only the newest window value.
	PruneWindow(ctx context.Context, identity string) error

	// Record appends snap and pushes its rating onto the window as one
	// unit: either both are persisted or neither is. Returns the new window.
	Record(ctx context.Context, identity string, snap model.Snapshot) (model.Window, error)

	Close() error
}

// Backend is the raw persistence behind a Store. Read methods report missing
// or undecodable state through Lookup; the error return is for I/O failures.
type Backend interface {
	ReadWindow(ctx context.Context, identity string) (Lookup[model.Window], error)
	WriteWindow(ctx context.Context, identity string, w model.Window) error
	// ReadTimeline returns snapshots ordered by timestamp key.
	ReadTimeline(ctx context.Context, identity string) (Lookup[[]model.Snapshot], error)
	PutSnapshot(ctx context.Context, identity string, snap model.Snapshot) error
	Close() error
}

// Recorder is implemented by backends that can persist a snapshot and the
// window it produces in a single atomic write.
type Recorder interface {
	Record(ctx context.Context, identity string, snap model.Snapshot, w model.Window) error
}

// Store implements HistoryStore over a Backend. Absent state reads as the
// empty default; corrupt state is logged and also reads as the default.
type Store struct {
	backend Backend
	logger  logger.Logger
}

var _ HistoryStore = (*Store)(nil)

// New wraps backend in a Store.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("history")
	}
	return s
}

// Backend returns the underlying backend, for callers that need the raw
// Lookup status.
func (s *Store) Backend() Backend { return s.backend }

func (s *Store) AppendSnapshot(ctx context.Context, identity string, snap model.Snapshot) error {
	if err := ValidateIdentity(identity); err != nil {
		return err
	}
	if snap.Timestamp == "" {
		return fmt.Errorf("append snapshot: empty timestamp")
	}
	if err := s.backend.PutSnapshot(ctx, identity, snap); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	metrics.RecordHistoryWrite("snapshot")
	return nil
}

func (s *Store) LatestSnapshot(ctx context.Context, identity string) (model.Snapshot, error) {
	tl, err := s.Timeline(ctx, identity)
	if err != nil {
		return model.Snapshot{}, err
	}
	if len(tl) == 0 {
		return model.Snapshot{}, ErrNotFound
	}
	return tl[len(tl)-1], nil
}

func (s *Store) Timeline(ctx context.Context, identity string) ([]model.Snapshot, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	start := time.Now()
	l, err := s.backend.ReadTimeline(ctx, identity)
	metrics.RecordHistoryReadLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		return nil, fmt.Errorf("read timeline: %w", err)
	}
	s.noteCorrupt(ctx, identity, "timeline", l.Status, l.Cause)
	return l.Value, nil
}

func (s *Store) Window(ctx context.Context, identity string) (model.Window, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	start := time.Now()
	l, err := s.backend.ReadWindow(ctx, identity)
	metrics.RecordHistoryReadLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		return nil, fmt.Errorf("read window: %w", err)
	}
	s.noteCorrupt(ctx, identity, "window", l.Status, l.Cause)
	return l.Value, nil
}

func (s *Store) PushRating(ctx context.Context, identity string, v float64) (model.Window, error) {
	w, err := s.Window(ctx, identity)
	if err != nil {
		return nil, err
	}
	w = w.Push(v)
	if err := s.backend.WriteWindow(ctx, identity, w); err != nil {
		return nil, fmt.Errorf("push rating: %w", err)
	}
	metrics.RecordHistoryWrite("window")
	return w, nil
}

func (s *Store) LatestRating(ctx context.Context, identity string) (float64, error) {
	w, err := s.Window(ctx, identity)
	if err != nil {
		return 0, err
	}
	return w.Latest(), nil
}

func (s *Store) PreviousRating(ctx context.Context, identity string) (float64, error) {
	return s.LatestRating(ctx, identity)
}

func (s *Store) RatingDelta(ctx context.Context, identity string) (float64, error) {
	w, err := s.Window(ctx, identity)
	if err != nil {
		return 0, err
	}
	return w.Delta(), nil
}

func (s *Store) PruneWindow(ctx context.Context, identity string) error {
	w, err := s.Window(ctx, identity)
	if err != nil {
		return err
	}
	if err := s.backend.WriteWindow(ctx, identity, w.Truncate()); err != nil {
		return fmt.Errorf("prune window: %w", err)
	}
	metrics.RecordHistoryWrite("prune")
	return nil
}

func (s *Store) Record(ctx context.Context, identity string, snap model.Snapshot) (model.Window, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if snap.Timestamp == "" {
		return nil, fmt.Errorf("record rating: empty timestamp")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("record rating: %w", err)
	}
	// Once the first write starts the pair is finished even if the caller
	// goes away.
	ctx = context.WithoutCancel(ctx)

	old, err := s.Window(ctx, identity)
	if err != nil {
		return nil, err
	}
	w := old.Push(snap.Rating)
	if r, ok := s.backend.(Recorder); ok {
		err = r.Record(ctx, identity, snap, w)
	} else {
		err = s.recordOrdered(ctx, identity, snap, old, w)
	}
	if err != nil {
		return nil, fmt.Errorf("record rating: %w", err)
	}
	metrics.RecordHistoryWrite("snapshot")
	metrics.RecordHistoryWrite("window")
	return w, nil
}

// recordOrdered writes the window before the snapshot and restores the old
// window when the snapshot write fails, so a snapshot is never persisted
// without its window entry.
func (s *Store) recordOrdered(ctx context.Context, identity string, snap model.Snapshot, old, w model.Window) error {
	if err := s.backend.WriteWindow(ctx, identity, w); err != nil {
		return fmt.Errorf("push rating: %w", err)
	}
	err := s.backend.PutSnapshot(ctx, identity, snap)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("append snapshot: %w", err)
	if rerr := s.backend.WriteWindow(ctx, identity, old); rerr != nil {
		s.logger.Error(ctx, "window rollback failed",
			logger.Identity(identity),
			logger.Error(rerr))
		return errors.Join(err, fmt.Errorf("restore window: %w", rerr))
	}
	return err
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) noteCorrupt(ctx context.Context, identity, what string, st Status, cause error) {
	if st != Corrupt {
		return
	}
	metrics.RecordHistoryCorrupt()
	s.logger.Warn(ctx, "corrupt history state, using empty default",
		logger.Identity(identity),
		logger.String("state", what),
		logger.Error(cause))
}

// ValidateIdentity rejects identities that cannot name a single storage key.
func ValidateIdentity(identity string) error {
	if identity == "" || identity == "." || identity == ".." || filepath.Base(identity) != identity {
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}
	return nil
}

// decodeWindow accepts a JSON array or the legacy bare number. A bare zero
// is the legacy "no history" marker and decodes as an empty window.
func decodeWindow(data []byte) (model.Window, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty window", ErrCorruptState)
	}
	if data[0] == '[' {
		var w model.Window
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
		}
		if len(w) > model.WindowSize {
			w = w[:model.WindowSize]
		}
		return w, nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	if v == 0 {
		return model.Window{}, nil
	}
	return model.Window{v}, nil
}

func encodeWindow(w model.Window) ([]byte, error) {
	if w == nil {
		w = model.Window{}
	}
	return json.MarshalIndent(w, "", "    ")
}

// decodeTimeline reads {timestamp: {rks, summary}} into key order.
func decodeTimeline(data []byte) ([]model.Snapshot, error) {
	var raw map[string]model.Snapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	out := make([]model.Snapshot, 0, len(raw))
	for ts, snap := range raw {
		snap.Timestamp = ts
		out = append(out, snap)
	}
	sortSnapshots(out)
	return out, nil
}

func encodeTimeline(tl []model.Snapshot) ([]byte, error) {
	raw := make(map[string]model.Snapshot, len(tl))
	for _, snap := range tl {
		raw[snap.Timestamp] = snap
	}
	return json.MarshalIndent(raw, "", "    ")
}

func sortSnapshots(tl []model.Snapshot) {
	sort.Slice(tl, func(i, j int) bool { return tl[i].Timestamp < tl[j].Timestamp })
}

// upsertSnapshot replaces the snapshot with snap's key or inserts it in order.
func upsertSnapshot(tl []model.Snapshot, snap model.Snapshot) []model.Snapshot {
	i := sort.Search(len(tl), func(i int) bool { return tl[i].Timestamp >= snap.Timestamp })
	if i < len(tl) && tl[i].Timestamp == snap.Timestamp {
		tl[i] = snap
		return tl
	}
	tl = append(tl, model.Snapshot{})
	copy(tl[i+1:], tl[i:])
	tl[i] = snap
	return tl
}
