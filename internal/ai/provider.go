// Package ai is the boundary to the external text-generation service that
// writes interview questions, scores answers, and summarizes interviews.
//
// Provider is the raw contract and may fail. Resilient wraps a Provider and
// never fails: every operation has a deterministic fallback.
package ai

import (
	"context"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// QuestionCount is the size of an interview question set.
const QuestionCount = 6

// Provider generates interview content from an external model.
type Provider interface {
	// GenerateQuestions returns exactly QuestionCount questions, two of each
	// difficulty, ordered Easy, Medium, Hard.
	GenerateQuestions(ctx context.Context, resumeText string) ([]domain.Question, error)
	// EvaluateAnswer scores an answer between 0 and 10 with one line of feedback.
	EvaluateAnswer(ctx context.Context, question, answer string, difficulty domain.Difficulty) (domain.Evaluation, error)
	// GenerateSummary writes a short closing summary of the interview.
	GenerateSummary(ctx context.Context, name string, answers []domain.QuestionAnswer) (string, error)
	// GenerateProfileDescription condenses a résumé into a short profile.
	GenerateProfileDescription(ctx context.Context, resumeText string) (string, error)
}

// errDisabled is returned by Disabled for every call.
var errDisabled = domain.NewError(domain.ErrProvider, "provider_disabled", "text generation is not configured")

// Disabled is the Provider used when no API key is configured. Every call
// fails, so Resilient serves fallbacks.
type Disabled struct{}

func (Disabled) GenerateQuestions(context.Context, string) ([]domain.Question, error) {
	return nil, errDisabled
}

func (Disabled) EvaluateAnswer(context.Context, string, string, domain.Difficulty) (domain.Evaluation, error) {
	return domain.Evaluation{}, errDisabled
}

func (Disabled) GenerateSummary(context.Context, string, []domain.QuestionAnswer) (string, error) {
	return "", errDisabled
}

func (Disabled) GenerateProfileDescription(context.Context, string) (string, error) {
	return "", errDisabled
}
