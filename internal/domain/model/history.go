package model

import (
	"encoding/json"
	"time"
)

// WindowSize bounds the rolling rating window.
const WindowSize = 5

// TimestampLayout keys snapshots; fixed width so lexical order is chronological.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp renders t as a snapshot key.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Snapshot is one fetch-and-recompute event in an identity's timeline.
type Snapshot struct {
	Timestamp string          `json:"-"`
	Rating    float64         `json:"rks"`
	Summary   json.RawMessage `json:"summary,omitempty"`
}

// Window holds the most recent overall ratings, newest first.
type Window []float64

// Push returns a new window with v prepended, keeping at most WindowSize values.
func (w Window) Push(v float64) Window {
	n := len(w) + 1
	if n > WindowSize {
		n = WindowSize
	}
	out := make(Window, n)
	out[0] = v
	copy(out[1:], w)
	return out
}

// Latest is the newest value, or 0 for an empty window.
func (w Window) Latest() float64 {
	if len(w) == 0 {
		return 0
	}
	return w[0]
}

// Delta is w[0]-w[1], or 0 with fewer than two values.
func (w Window) Delta() float64 {
	if len(w) < 2 {
		return 0
	}
	return w[0] - w[1]
}

// Truncate keeps only the newest value.
func (w Window) Truncate() Window {
	if len(w) <= 1 {
		return append(Window(nil), w...)
	}
	return Window{w[0]}
}
