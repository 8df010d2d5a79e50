package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// TextGenerator sends one prompt to a model and returns its text. When
// jsonOutput is set the model is asked for JSON.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, jsonOutput bool) (string, error)
}

// GeminiGenerator is a TextGenerator backed by Google Gemini.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiGenerator creates a Gemini client for model.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, temperature: 0.4}, nil
}

// Generate implements TextGenerator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, jsonOutput bool) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	if jsonOutput {
		model.ResponseMIMEType = "application/json"
	}
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return extractText(resp)
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", errors.New("no content in response")
	}
	var parts []string
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}

// ModelProvider implements Provider on top of any TextGenerator.
type ModelProvider struct {
	Gen TextGenerator
	Now func() time.Time
}

// NewModelProvider returns a Provider that prompts gen.
func NewModelProvider(gen TextGenerator) *ModelProvider {
	return &ModelProvider{Gen: gen, Now: time.Now}
}

func (p *ModelProvider) GenerateQuestions(ctx context.Context, resumeText string) ([]domain.Question, error) {
	out, err := p.Gen.Generate(ctx, questionsPrompt(resumeText), true)
	if err != nil {
		return nil, domain.Provider("generate questions", err)
	}
	qs, err := parseQuestions(out, p.Now())
	if err != nil {
		return nil, domain.Provider("generate questions", err)
	}
	return qs, nil
}

func (p *ModelProvider) EvaluateAnswer(ctx context.Context, question, answer string, difficulty domain.Difficulty) (domain.Evaluation, error) {
	out, err := p.Gen.Generate(ctx, evaluatePrompt(question, answer, difficulty), true)
	if err != nil {
		return domain.Evaluation{}, domain.Provider("evaluate answer", err)
	}
	e, err := parseEvaluation(out)
	if err != nil {
		return domain.Evaluation{}, domain.Provider("evaluate answer", err)
	}
	return e, nil
}

func (p *ModelProvider) GenerateSummary(ctx context.Context, name string, answers []domain.QuestionAnswer) (string, error) {
	return p.text(ctx, "generate summary", summaryPrompt(name, answers))
}

func (p *ModelProvider) GenerateProfileDescription(ctx context.Context, resumeText string) (string, error) {
	return p.text(ctx, "generate profile", profilePrompt(resumeText))
}

func (p *ModelProvider) text(ctx context.Context, op, prompt string) (string, error) {
	out, err := p.Gen.Generate(ctx, prompt, false)
	if err != nil {
		return "", domain.Provider(op, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", domain.Provider(op, errors.New("empty response"))
	}
	return out, nil
}
