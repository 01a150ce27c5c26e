// Package types contains the JSON shapes shared by the API and the CLI.
package types

import "encoding/json"

// RecordView is one rated play as presented to clients.
type RecordView struct {
	ID         string   `json:"id"`
	Level      string   `json:"level"` // e.g. "IN Lv.15.5"
	Score      int      `json:"score"`
	Acc        float64  `json:"acc"`
	RKS        float64  `json:"rks"`
	FC         bool     `json:"fc"`
	Difficulty string   `json:"difficulty"`
	BaseLevel  float64  `json:"base_level"`
	Grade      string   `json:"grade"`
	PushAcc    *float64 `json:"push_acc,omitempty"`
}

// Board is the selector output keyed by 1-based rank labels.
type Board struct {
	Best map[string]RecordView `json:"_best"`
	Phi  map[string]RecordView `json:"_phi"`
}

// RatingEntry reports an identity's overall rating.
type RatingEntry struct {
	Identity string  `json:"identity"`
	RKS      float64 `json:"rks"`
	Previous float64 `json:"previous"`
	Delta    float64 `json:"delta"`
	Cached   bool    `json:"cached"`
	Advisory string  `json:"advisory,omitempty"`
}

// HistoryEntry reports the persisted state of an identity.
type HistoryEntry struct {
	Window    []float64 `json:"window"`
	Delta     float64   `json:"delta"`
	Latest    *Snapshot `json:"latest,omitempty"`
	Snapshots int       `json:"snapshots"`
}

// Snapshot is a persisted rating event.
type Snapshot struct {
	Timestamp string          `json:"timestamp"`
	RKS       float64         `json:"rks"`
	Summary   json.RawMessage `json:"summary,omitempty"`
}

// BestResponse is the board for one identity plus the recorded rating and,
// on request, the source save and player summary.
type BestResponse struct {
	Board
	RKS      float64                    `json:"rks"`
	Original map[string]json.RawMessage `json:"original,omitempty"`
	UserInfo json.RawMessage            `json:"userinfo,omitempty"`
}

// Suggestion answers the push-suggestion search for one play.
type Suggestion struct {
	Acc     float64  `json:"acc"`
	Level   float64  `json:"level"`
	RKS     float64  `json:"rks"`
	PushAcc *float64 `json:"push_acc"`
}
