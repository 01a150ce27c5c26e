// Package rating holds the single-performance rating formula and the helpers
// derived from it.
package rating

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/okian/rks/internal/domain/model"
)

// Formula constants.
const (
	// MinAccuracy is the lowest accuracy that earns any rating.
	MinAccuracy = 70.0
	accOffset   = 55.0
	accSpan     = 45.0

	// Precision is the number of decimals ratings are published with.
	Precision = 4

	// SuggestStep is the accuracy increment of the push-suggestion search.
	SuggestStep = 0.01
	// SuggestGain is the rating increase the push-suggestion search looks for.
	SuggestGain = 0.01
)

// Single returns the rating of one play at accuracy (percent) on a chart with
// the given level constant. Inputs are assumed validated.
//
// At accuracy 70 the curve evaluates to level/9 and at 100 it returns level
// exactly.
func Single(accuracy, level float64) float64 {
	switch {
	case math.IsNaN(accuracy), accuracy < MinAccuracy:
		return 0
	case accuracy == model.PerfectAccuracy:
		return level
	}
	f := (accuracy - accOffset) / accSpan
	return f * f * level
}

// Round rounds r half away from zero to Precision decimals.
func Round(r float64) float64 {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return r
	}
	return decimal.NewFromFloat(r).Round(Precision).InexactFloat64()
}

// Overall is the aggregate rating: the sum of the best ratings divided by the
// requested best count, not by len(best). A player with fewer ratable plays
// than bestCount is scaled down accordingly.
func Overall(best []model.RatedRecord, bestCount int) float64 {
	if bestCount <= 0 {
		return 0
	}
	var sum float64
	for _, r := range best {
		sum += r.Rating
	}
	return sum / float64(bestCount)
}

// Suggest searches for the lowest accuracy, in SuggestStep increments above the
// current one, whose rating reaches current+SuggestGain. ok is false when the
// play is already perfect, when the target exceeds the level constant, or when
// no accuracy up to 100 reaches it. Non-finite input is never ok.
func Suggest(accuracy, current, level float64) (target float64, ok bool) {
	if math.IsInf(accuracy, 0) || math.IsInf(level, 0) {
		return 0, false
	}
	// Negated comparisons so NaN input also returns.
	if !(accuracy < model.PerfectAccuracy) {
		return 0, false
	}
	goal := current + SuggestGain
	if !(goal <= level) {
		return 0, false
	}
	// Multiply instead of accumulating to keep the grid free of drift.
	for k := 1; ; k++ {
		acc := accuracy + float64(k)*SuggestStep
		if acc > model.PerfectAccuracy+1e-9 {
			return 0, false
		}
		if acc > model.PerfectAccuracy {
			acc = model.PerfectAccuracy
		}
		if Single(acc, level) >= goal {
			return acc, true
		}
	}
}

// Grade letters.
const (
	GradeAP = "AP"
	GradeFC = "FC"
	GradeV  = "V"
	GradeS  = "S"
	GradeA  = "A"
	GradeB  = "B"
	GradeC  = "C"
	GradeF  = "F"
)

// Grade returns the letter shown for a play's score.
func Grade(score int, fullCombo bool) string {
	switch {
	case score == model.MaxScore:
		return GradeAP
	case fullCombo:
		return GradeFC
	case score >= 960_000:
		return GradeV
	case score >= 920_000:
		return GradeS
	case score >= 880_000:
		return GradeA
	case score >= 820_000:
		return GradeB
	case score >= 700_000:
		return GradeC
	default:
		return GradeF
	}
}
