package ai

import (
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/search"
)

const (
	heuristicFeedback = "Answer recorded. AI evaluation unavailable - using fallback scoring."
	fallbackSummary   = "Interview completed. Unable to generate detailed summary."
)

var fallbackQuestions = []domain.Question{
	{ID: "q-fallback-1", Text: "What is the difference between let, const, and var in JavaScript?", Difficulty: domain.DifficultyEasy},
	{ID: "q-fallback-2", Text: "Explain what React hooks are and name three commonly used hooks.", Difficulty: domain.DifficultyEasy},
	{ID: "q-fallback-3", Text: "How does async/await work in JavaScript? Provide an example.", Difficulty: domain.DifficultyMedium},
	{ID: "q-fallback-4", Text: "What is middleware in Express.js and how would you use it?", Difficulty: domain.DifficultyMedium},
	{ID: "q-fallback-5", Text: "Explain the concept of Virtual DOM in React and how it improves performance.", Difficulty: domain.DifficultyHard},
	{ID: "q-fallback-6", Text: "Design a simple REST API for a blog application. What endpoints would you create and why?", Difficulty: domain.DifficultyHard},
}

// FallbackQuestions returns the fixed question set used when generation
// fails.
func FallbackQuestions() []domain.Question {
	out := make([]domain.Question, len(fallbackQuestions))
	for i, q := range fallbackQuestions {
		q.TimeLimit = q.Difficulty.TimeLimit()
		out[i] = q
	}
	return out
}

// HeuristicEvaluation scores an answer by its length.
func HeuristicEvaluation(answer string) domain.Evaluation {
	words := len(strings.Fields(answer))
	var score float64
	switch {
	case words == 0:
		score = 0
	case words < 5:
		score = 3
	case words < 20:
		score = 5
	case words < 50:
		score = 7
	default:
		score = 8
	}
	return domain.Evaluation{Score: score, Feedback: heuristicFeedback}
}

// profileQuery pulls the passage that reads most like a professional summary.
const profileQuery = "senior junior lead engineer developer software backend frontend full stack " +
	"years experience skilled specializing building designing summary profile"

const maxFallbackProfileRunes = 300

// FallbackProfile returns the résumé passage closest to a professional
// summary, or "" when nothing matches.
func FallbackProfile(resumeText string) string {
	top := search.NewIndex(resumeText).TopK(profileQuery, 1)
	if len(top) == 0 {
		return ""
	}
	s := top[0].Snippet
	if utf8.RuneCountInString(s) > maxFallbackProfileRunes {
		s = string([]rune(s)[:maxFallbackProfileRunes-1]) + "…"
	}
	return s
}
