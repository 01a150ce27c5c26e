// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"strings"
)

// Tier is a chart difficulty tier.
type Tier string

// Difficulty tiers in catalog column order.
const (
	TierEZ Tier = "EZ"
	TierHD Tier = "HD"
	TierIN Tier = "IN"
	TierAT Tier = "AT"
)

// Tiers lists every tier in catalog column order.
var Tiers = [...]Tier{TierEZ, TierHD, TierIN, TierAT}

// ParseTier accepts a tier name case-insensitively.
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Tiers {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// Index returns the tier's catalog column (0-based), or -1 for unknown tiers.
func (t Tier) Index() int {
	for i, known := range Tiers {
		if t == known {
			return i
		}
	}
	return -1
}

// PerfectAccuracy is the accuracy of a flawless play.
const PerfectAccuracy = 100.0

// MaxScore is the score of an all-perfect play.
const MaxScore = 1_000_000

// ScoreRecord is one chart result from a player's save.
type ScoreRecord struct {
	SongID    string
	Tier      Tier
	Accuracy  float64 // percent, [0,100]
	Score     int     // [0, 1_000_000]
	FullCombo bool
}

// Perfect reports whether the play hit every note perfectly.
func (r ScoreRecord) Perfect() bool { return r.Accuracy == PerfectAccuracy }

// RatedRecord is a ScoreRecord with its level constant and single rating.
type RatedRecord struct {
	ScoreRecord
	Level  float64
	Rating float64
}

// SaveSet is the most recent raw score set of one player.
type SaveSet struct {
	// Timestamp is the key the provider stored the save under.
	Timestamp string
	// Records are in the provider's enumeration order (song, then tier).
	Records []ScoreRecord
	// Summary is the provider's opaque player summary.
	Summary json.RawMessage
	// Raw is the save's song map exactly as the provider returned it.
	Raw json.RawMessage
}
