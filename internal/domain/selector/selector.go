// Package selector picks a player's best and all-perfect plays from a raw
// score set.
package selector

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/rks/internal/domain/catalog"
	"github.com/okian/rks/internal/domain/model"
	"github.com/okian/rks/internal/domain/rating"
	"github.com/okian/rks/internal/domain/types"
)

// Result holds the selected plays, ranked, with ratings rounded to
// rating.Precision decimals.
type Result struct {
	Best    []model.RatedRecord
	Perfect []model.RatedRecord

	// Rated is the number of plays that had a level constant.
	Rated int
	// Unratable is the number of plays skipped for lack of one.
	Unratable int
}

// Select rates every record that has a level constant, orders them by rating
// descending and returns the first best of them plus the first perfect
// all-perfect plays in that same order.
//
// Ties keep the order of records, so callers must pass records in the
// provider's enumeration order. Ratings are rounded only after sorting;
// rounding first could merge distinct ratings and move the selection boundary.
func Select(records []model.ScoreRecord, cat catalog.Catalog, best, perfect int) (Result, error) {
	if best < 0 || perfect < 0 {
		return Result{}, ErrInvalidRequest
	}
	if cat == nil {
		return Result{}, ErrNoCatalog
	}

	rated := make([]model.RatedRecord, 0, len(records))
	var res Result
	for _, rec := range records {
		level, ok := cat.Level(rec.SongID, rec.Tier)
		if !ok || math.IsNaN(level) || math.IsInf(level, 0) {
			res.Unratable++
			continue
		}
		rated = append(rated, model.RatedRecord{
			ScoreRecord: rec,
			Level:       level,
			Rating:      rating.Single(rec.Accuracy, level),
		})
	}
	res.Rated = len(rated)

	sort.SliceStable(rated, func(i, j int) bool {
		return rated[i].Rating > rated[j].Rating
	})
	for i := range rated {
		rated[i].Rating = rating.Round(rated[i].Rating)
	}

	res.Best = rated[:min(best, len(rated))]
	for _, r := range rated {
		if len(res.Perfect) == perfect {
			break
		}
		if r.Perfect() {
			res.Perfect = append(res.Perfect, r)
		}
	}
	return res, nil
}

// Overall is the aggregate rating of the best plays over a fixed divisor.
func (r Result) Overall(bestCount int) float64 {
	return rating.Overall(r.Best, bestCount)
}

// View renders the result in the client shape, labelling ranks from "1".
func (r Result) View() types.Board {
	return types.Board{
		Best: viewOf(r.Best),
		Phi:  viewOf(r.Perfect),
	}
}

func viewOf(recs []model.RatedRecord) map[string]types.RecordView {
	out := make(map[string]types.RecordView, len(recs))
	for i, rec := range recs {
		out[strconv.Itoa(i+1)] = RecordView(rec)
	}
	return out
}

// RecordView renders one rated play, including the accuracy that would push
// its rating up by rating.SuggestGain when one exists.
func RecordView(rec model.RatedRecord) types.RecordView {
	v := types.RecordView{
		ID:         rec.SongID,
		Level:      LevelLabel(rec.Tier, rec.Level),
		Score:      rec.Score,
		Acc:        rec.Accuracy,
		RKS:        rec.Rating,
		FC:         rec.FullCombo,
		Difficulty: string(rec.Tier),
		BaseLevel:  rec.Level,
		Grade:      rating.Grade(rec.Score, rec.FullCombo),
	}
	current := rating.Single(rec.Accuracy, rec.Level)
	if acc, ok := rating.Suggest(rec.Accuracy, current, rec.Level); ok {
		acc = rating.Round(acc)
		v.PushAcc = &acc
	}
	return v
}

// LevelLabel formats "IN Lv.15.0"; whole constants keep one decimal.
func LevelLabel(tier model.Tier, level float64) string {
	s := strconv.FormatFloat(level, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return string(tier) + " Lv." + s
}
