package interview

import (
	"math"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// FinalScore is the mean answer score rounded to one decimal.
func FinalScore(answers []domain.QuestionAnswer) (float64, error) {
	if len(answers) == 0 {
		return 0, ErrNoAnswers
	}
	var sum float64
	for _, a := range answers {
		sum += a.Score
	}
	return RoundScore(sum / float64(len(answers))), nil
}

// RoundScore rounds to one decimal, halves away from zero.
func RoundScore(v float64) float64 {
	return math.Round(v*10) / 10
}

// ClampScore bounds a provider score to [0, 10].
func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}
