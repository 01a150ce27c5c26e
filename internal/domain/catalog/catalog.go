// Package catalog provides the level constants used to rate plays.
//
// The catalog source is a tab-separated table: a song id followed by up to
// four level constants in EZ, HD, IN, AT order. Missing or empty columns mean
// the tier has no constant and cannot be rated.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/okian/rks/internal/domain/model"
)

// Catalog looks up level constants.
type Catalog interface {
	// Level returns the constant for a song's tier, or false when the tier
	// cannot be rated.
	Level(songID string, tier model.Tier) (float64, bool)
}

type levels struct {
	value [len(model.Tiers)]float64
	has   [len(model.Tiers)]bool
}

// Table is an immutable in-memory catalog.
type Table struct {
	songs map[string]levels
}

// Level implements Catalog.
func (t *Table) Level(songID string, tier model.Tier) (float64, bool) {
	if t == nil {
		return 0, false
	}
	i := tier.Index()
	if i < 0 {
		return 0, false
	}
	l, ok := t.songs[songID]
	if !ok || !l.has[i] {
		return 0, false
	}
	return l.value[i], true
}

// Len returns the number of songs in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.songs)
}

// Set adds or replaces one constant. Intended for building tables in code.
func (t *Table) Set(songID string, tier model.Tier, level float64) {
	i := tier.Index()
	if i < 0 {
		return
	}
	if t.songs == nil {
		t.songs = make(map[string]levels)
	}
	l := t.songs[songID]
	l.value[i] = level
	l.has[i] = true
	t.songs[songID] = l
}

// New returns an empty table.
func New() *Table {
	return &Table{songs: make(map[string]levels)}
}

// Parse reads a catalog table. Blank lines are skipped; a later row for the
// same song replaces an earlier one.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	t := New()
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		line, _ := cr.FieldPos(0)

		songID := strings.TrimSpace(rec[0])
		if songID == "" {
			continue
		}
		var l levels
		for i := 0; i < len(model.Tiers) && i+1 < len(rec); i++ {
			raw := strings.TrimSpace(rec[i+1])
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d, %s %s: %w", ErrMalformed, line, songID, model.Tiers[i], err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: line %d, %s %s: level %q is not finite", ErrMalformed, line, songID, model.Tiers[i], raw)
			}
			l.value[i] = v
			l.has[i] = true
		}
		t.songs[songID] = l
	}
}

// LoadFile parses the catalog at path.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}
