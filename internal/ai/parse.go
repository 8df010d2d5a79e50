package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/interview"
)

var (
	arrayRE  = regexp.MustCompile(`(?s)\[.*\]`)
	objectRE = regexp.MustCompile(`(?s)\{.*\}`)

	errNoJSON = errors.New("no JSON in model output")
)

// cleanJSONBlock removes markdown code fences around JSON.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

type rawQuestion struct {
	Question   string `json:"question"`
	Difficulty string `json:"difficulty"`
}

// parseQuestions extracts the question array from model output and
// normalizes it into a valid set.
func parseQuestions(text string, now time.Time) ([]domain.Question, error) {
	m := arrayRE.FindString(cleanJSONBlock(text))
	if m == "" {
		return nil, errNoJSON
	}
	var raw []rawQuestion
	if err := json.Unmarshal([]byte(m), &raw); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	qs := make([]domain.Question, 0, len(raw))
	for i, r := range raw {
		d, ok := domain.ParseDifficulty(r.Difficulty)
		if !ok {
			return nil, fmt.Errorf("question %d: unknown difficulty %q", i+1, r.Difficulty)
		}
		qs = append(qs, domain.Question{
			ID:         fmt.Sprintf("q-%d-%d", now.UnixMilli(), i),
			Text:       strings.TrimSpace(r.Question),
			Difficulty: d,
		})
	}
	return NormalizeQuestions(qs)
}

// NormalizeQuestions checks a question set has QuestionCount non-empty
// questions with two of each difficulty, orders it Easy, Medium, Hard
// (stable within a difficulty) and derives each time limit.
func NormalizeQuestions(qs []domain.Question) ([]domain.Question, error) {
	if len(qs) != QuestionCount {
		return nil, fmt.Errorf("expected %d questions, got %d", QuestionCount, len(qs))
	}
	counts := map[domain.Difficulty]int{}
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		if strings.TrimSpace(q.Text) == "" {
			return nil, fmt.Errorf("question %d is empty", i+1)
		}
		if q.Difficulty.TimeLimit() == 0 {
			return nil, fmt.Errorf("question %d: unknown difficulty %q", i+1, q.Difficulty)
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q-%d", i+1)
		}
		q.TimeLimit = q.Difficulty.TimeLimit()
		counts[q.Difficulty]++
		out[i] = q
	}
	for _, d := range []domain.Difficulty{domain.DifficultyEasy, domain.DifficultyMedium, domain.DifficultyHard} {
		if counts[d] != 2 {
			return nil, fmt.Errorf("expected 2 %s questions, got %d", d, counts[d])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Difficulty.Order() < out[j].Difficulty.Order() })
	return out, nil
}

// parseEvaluation reads {"score", "feedback"} from model output. Output
// without any JSON object is treated as a neutral acknowledgement.
func parseEvaluation(text string) (domain.Evaluation, error) {
	m := objectRE.FindString(cleanJSONBlock(text))
	if m == "" {
		return domain.Evaluation{Score: 5, Feedback: "Answer received."}, nil
	}
	var raw struct {
		Score    *float64 `json:"score"`
		Feedback string   `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(m), &raw); err != nil {
		return domain.Evaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}
	if raw.Score == nil {
		return domain.Evaluation{}, errors.New("evaluation has no score")
	}
	e := domain.Evaluation{Score: interview.ClampScore(*raw.Score), Feedback: strings.TrimSpace(raw.Feedback)}
	if e.Feedback == "" {
		e.Feedback = "Answer received."
	}
	return e, nil
}
