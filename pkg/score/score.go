// Package score aggregates per-question scores into an interview result.
package score

import (
	"github.com/shopspring/decimal"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

// MaxScore is the top of the per-question scale.
const MaxScore = 10

var (
	hundred = decimal.NewFromInt(100)
	maxDec  = decimal.NewFromInt(MaxScore)
)

// FinalScore returns the arithmetic mean of the record scores. The sum is exact;
// rounding is left to whoever displays the result. It returns
// model.ErrNoAnswers when records is empty.
func FinalScore(records []model.QARecord) (float64, error) {
	if len(records) == 0 {
		return 0, model.ErrNoAnswers
	}
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(decimal.NewFromFloat(r.Score))
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(records))))
	f, _ := mean.Float64()
	return f, nil
}

// Percentage converts a score on the 0-10 scale to a percentage.
func Percentage(score float64) float64 {
	f, _ := decimal.NewFromFloat(score).Div(maxDec).Mul(hundred).Float64()
	return f
}

// Clamp limits a score to [0, MaxScore].
func Clamp(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > MaxScore:
		return MaxScore
	default:
		return s
	}
}
