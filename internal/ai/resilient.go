package ai

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/observability"
)

// Question set sources.
const (
	SourceProvider = "provider"
	SourceFallback = "fallback"
)

var fallbacksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ai_fallbacks_total",
		Help: "Provider calls answered by a fallback, by operation.",
	},
	[]string{"op"},
)

func init() {
	prometheus.MustRegister(fallbacksTotal)
}

// Resilient wraps a Provider so that no call ever fails. Each call gets its
// own Timeout when one is set.
type Resilient struct {
	Provider Provider
	Logger   zerolog.Logger
	Timeout  time.Duration
}

// NewResilient returns a Resilient around p. A nil p behaves like Disabled.
func NewResilient(p Provider, log zerolog.Logger, timeout time.Duration) *Resilient {
	if p == nil {
		p = Disabled{}
	}
	return &Resilient{Provider: p, Logger: log, Timeout: timeout}
}

func (r *Resilient) call(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := otel.Tracer("ai").Start(ctx, op)
	var cancel context.CancelFunc = func() {}
	if r.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
	}
	return ctx, func(err error) {
		defer span.End()
		defer cancel()
		if err == nil {
			return
		}
		observability.Fail(span, err)
		span.SetAttributes(attribute.Bool("ai.fallback", true))
		fallbacksTotal.WithLabelValues(op).Inc()
		r.Logger.Warn().Err(err).Str("op", op).Msg("ai_fallback")
	}
}

// GenerateQuestions returns a valid question set and where it came from.
func (r *Resilient) GenerateQuestions(ctx context.Context, resumeText string) ([]domain.Question, string) {
	ctx, done := r.call(ctx, "GenerateQuestions")
	qs, err := r.Provider.GenerateQuestions(ctx, resumeText)
	if err == nil {
		qs, err = NormalizeQuestions(qs)
	}
	done(err)
	if err != nil {
		return FallbackQuestions(), SourceFallback
	}
	return qs, SourceProvider
}

// EvaluateAnswer scores an answer, falling back to HeuristicEvaluation.
func (r *Resilient) EvaluateAnswer(ctx context.Context, question, answer string, difficulty domain.Difficulty) domain.Evaluation {
	ctx, done := r.call(ctx, "EvaluateAnswer")
	e, err := r.Provider.EvaluateAnswer(ctx, question, answer, difficulty)
	done(err)
	if err != nil {
		return HeuristicEvaluation(answer)
	}
	return e
}

// GenerateSummary writes the closing summary, falling back to a fixed text.
func (r *Resilient) GenerateSummary(ctx context.Context, name string, answers []domain.QuestionAnswer) string {
	ctx, done := r.call(ctx, "GenerateSummary")
	s, err := r.Provider.GenerateSummary(ctx, name, answers)
	done(err)
	if err != nil || s == "" {
		return fallbackSummary
	}
	return s
}

// GenerateProfileDescription returns a short profile, falling back to
// FallbackProfile.
func (r *Resilient) GenerateProfileDescription(ctx context.Context, resumeText string) string {
	ctx, done := r.call(ctx, "GenerateProfileDescription")
	s, err := r.Provider.GenerateProfileDescription(ctx, resumeText)
	done(err)
	if err != nil || strings.TrimSpace(s) == "" {
		return FallbackProfile(resumeText)
	}
	return s
}
