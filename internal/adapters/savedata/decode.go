package savedata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/okian/rks/internal/domain/model"
)

// Decode reads a raw save of the form
//
//	{timestamp: {songId: {tier: {"acc": n, "score": n, "fc": bool|0|1}}}}
//
// Only the first timestamp is used. Songs and tiers are returned in document
// order, which is the tie-break order for selection. Unknown tiers and
// entries that are not objects are skipped.
func Decode(r io.Reader) (model.SaveSet, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return model.SaveSet{}, err
	}
	if !dec.More() {
		return model.SaveSet{}, ErrNoSave
	}
	ts, err := nextKey(dec)
	if err != nil {
		return model.SaveSet{}, err
	}
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return model.SaveSet{}, fmt.Errorf("%w: %w", ErrMalformedSave, err)
	}
	records, err := decodeSongs(raw)
	if err != nil {
		return model.SaveSet{}, err
	}
	return model.SaveSet{Timestamp: ts, Records: records, Raw: raw}, nil
}

func decodeSongs(raw json.RawMessage) ([]model.ScoreRecord, error) {
	if !isObject(raw) {
		return nil, fmt.Errorf("%w: song map is not an object", ErrMalformedSave)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var out []model.ScoreRecord
	for dec.More() {
		songID, err := nextKey(dec)
		if err != nil {
			return nil, err
		}
		var tiers json.RawMessage
		if err := dec.Decode(&tiers); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedSave, songID, err)
		}
		if !isObject(tiers) {
			continue
		}
		recs, err := decodeTiers(songID, tiers)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

type rawScore struct {
	Acc   json.RawMessage `json:"acc"`
	Score json.RawMessage `json:"score"`
	FC    json.RawMessage `json:"fc"`
}

func decodeTiers(songID string, raw json.RawMessage) ([]model.ScoreRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var out []model.ScoreRecord
	for dec.More() {
		name, err := nextKey(dec)
		if err != nil {
			return nil, err
		}
		var entry json.RawMessage
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrMalformedSave, songID, name, err)
		}
		tier := model.Tier(name)
		if tier.Index() < 0 || !isObject(entry) {
			continue
		}
		var rs rawScore
		if err := json.Unmarshal(entry, &rs); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrMalformedSave, songID, name, err)
		}
		acc, _ := number(rs.Acc)
		score, _ := number(rs.Score)
		out = append(out, model.ScoreRecord{
			SongID:    songID,
			Tier:      tier,
			Accuracy:  clamp(acc, 0, model.PerfectAccuracy),
			Score:     int(clamp(score, 0, model.MaxScore)),
			FullCombo: truthy(rs.FC),
		})
	}
	return out, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedSave, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformedSave, want, tok)
	}
	return nil
}

func nextKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedSave, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected key, got %v", ErrMalformedSave, tok)
	}
	return key, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// number reads a JSON number or numeric string. Anything else, including
// "NaN" and "Inf", is 0.
func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

// truthy accepts true, non-zero numbers and "true"/"1".
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	if f, ok := number(raw); ok {
		return f != 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.EqualFold(s, "true")
	}
	return false
}

// clamp maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v), v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
