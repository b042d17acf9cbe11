package engine

import (
	"math"
	"strconv"
	"strings"

	"physics-race-service/internal/domain"
)

// MaxAttempts is how many answers a participant may submit per question.
const MaxAttempts = 5

// ParseAnswer turns raw input into a finite number. A decimal comma is accepted.
func ParseAnswer(raw string) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, domain.ErrInvalidInput
	}
	trimmed = strings.ReplaceAll(trimmed, ",", ".")
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, domain.ErrInvalidInput
	}
	return v, nil
}

// Evaluate reports whether submitted lies in the tolerance band around the
// correct answer. The band is TolerancePct percent of |CorrectAnswer|, so a
// correct answer of zero only accepts an exact match.
func Evaluate(q domain.Question, submitted float64) bool {
	if submitted == q.CorrectAnswer {
		return true
	}
	// compare scaled by 100 to keep the percentage out of a lossy division
	return math.Abs(submitted-q.CorrectAnswer)*100 <= q.TolerancePct*math.Abs(q.CorrectAnswer)
}

// PointsForAttempt maps attempts 1..5 to 5..1 points and anything else to 0.
func PointsForAttempt(attempt int) int {
	if attempt < 1 {
		return 0
	}
	return max(0, 6-attempt)
}
