package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// ---- fakes ----

type fakeRecorder struct {
	mu          sync.Mutex
	starts      []domain.ChatMessage
	answers     []AnswerRecord
	completions []float64
	summaries   []string
	attempts    []string // summary of every RecordCompletion call
	failAnswer  int      // number of RecordAnswer calls to fail
	failFinish  int
	answerErr   error
}

func (f *fakeRecorder) RecordStart(_ context.Context, _ string, m domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, m)
	return nil
}

func (f *fakeRecorder) RecordAnswer(_ context.Context, _ string, rec AnswerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answerErr != nil {
		return f.answerErr
	}
	if f.failAnswer > 0 {
		f.failAnswer--
		return errors.New("database is locked")
	}
	f.answers = append(f.answers, rec)
	return nil
}

func (f *fakeRecorder) RecordCompletion(_ context.Context, _ string, score float64, summary string, _ domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, summary)
	if f.failFinish > 0 {
		f.failFinish--
		return errors.New("database is locked")
	}
	f.completions = append(f.completions, score)
	f.summaries = append(f.summaries, summary)
	return nil
}

func (f *fakeRecorder) answerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.answers)
}

func (f *fakeRecorder) completionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completions)
}

type fakeAssessor struct{ score float64 }

func (a fakeAssessor) EvaluateAnswer(_ context.Context, _, answer string, _ domain.Difficulty) domain.Evaluation {
	if answer == NoAnswerPlaceholder {
		return domain.Evaluation{Score: 0, Feedback: "No answer."}
	}
	return domain.Evaluation{Score: a.score, Feedback: "Fine."}
}

func (a fakeAssessor) GenerateSummary(_ context.Context, _ string, _ []domain.QuestionAnswer) string {
	return "A solid candidate."
}

// countingAssessor returns a different summary on every call.
type countingAssessor struct {
	fakeAssessor
	mu        sync.Mutex
	summaries int
}

func (a *countingAssessor) GenerateSummary(_ context.Context, _ string, _ []domain.QuestionAnswer) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaries++
	return fmt.Sprintf("summary #%d", a.summaries)
}

func (a *countingAssessor) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summaries
}

type harness struct {
	ctrl  *Controller
	rec   *fakeRecorder
	ticks chan time.Time
}

func start(t *testing.T, status domain.Status, answered []domain.QuestionAnswer, rec *fakeRecorder) *harness {
	t.Helper()
	if rec == nil {
		rec = &fakeRecorder{}
	}
	ticks := make(chan time.Time)
	ctrl, err := Start(context.Background(), Config{
		CandidateID: "c1",
		Name:        "Ann",
		Status:      status,
		Questions:   sixQuestions(),
		Answers:     answered,
		Recorder:    rec,
		Assessor:    fakeAssessor{score: 8},
		Logger:      zerolog.Nop(),
		NewTicker: func(time.Duration) (<-chan time.Time, func()) {
			return ticks, func() {}
		},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(ctrl.Close)
	return &harness{ctrl: ctrl, rec: rec, ticks: ticks}
}

func (h *harness) tick(n int) {
	for i := 0; i < n; i++ {
		select {
		case h.ticks <- time.Now():
		case <-h.ctrl.Done():
			return
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func snapshot(t *testing.T, c *Controller) State {
	t.Helper()
	s, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return s
}

// ---- tests ----

func TestController_FreshStartAnnouncesFirstQuestion(t *testing.T) {
	h := start(t, domain.StatusPending, nil, nil)

	if len(h.rec.starts) != 1 || !strings.HasPrefix(h.rec.starts[0].Content, "Question 1/6 (Easy)") {
		t.Fatalf("expected first announcement, got %+v", h.rec.starts)
	}
	s := snapshot(t, h.ctrl)
	if s.Stage != StageInterview || s.Index != 0 || s.Remaining != 20 || !s.InputEnabled {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestController_ResumeDoesNotReannounce(t *testing.T) {
	answered := []domain.QuestionAnswer{{QuestionID: "q-1", Score: 6}, {QuestionID: "q-2", Score: 7}}
	h := start(t, domain.StatusInProgress, answered, nil)

	if len(h.rec.starts) != 0 {
		t.Fatalf("resume must not record a start")
	}
	s := snapshot(t, h.ctrl)
	if s.Index != 2 || s.Question == nil || s.Question.ID != "q-3" || s.Remaining != 60 {
		t.Fatalf("expected resume at index 2 with a full countdown, got %+v", s)
	}
}

func TestController_HappyPathCompletes(t *testing.T) {
	h := start(t, domain.StatusPending, nil, nil)
	ctx := context.Background()

	var out Outcome
	for i := 0; i < 6; i++ {
		var err error
		out, err = h.ctrl.Submit(ctx, "answer text")
		if err != nil {
			t.Fatalf("Submit #%d: %v", i+1, err)
		}
		if out.Evaluation.Score != 8 {
			t.Fatalf("unexpected evaluation: %+v", out.Evaluation)
		}
	}
	if !out.Completed || out.FinalScore != 8 || out.Summary != "A solid candidate." {
		t.Fatalf("last submission should complete the interview: %+v", out)
	}

	if h.rec.answerCount() != 6 || h.rec.completionCount() != 1 {
		t.Fatalf("answers=%d completions=%d", h.rec.answerCount(), h.rec.completionCount())
	}
	for i, rec := range h.rec.answers {
		if rec.Position != i || rec.User.Type != domain.MessageUser || rec.Feedback.Type != domain.MessageSystem {
			t.Fatalf("record %d malformed: %+v", i, rec)
		}
		if i < 5 && (rec.Next == nil || !strings.HasPrefix(rec.Next.Content, "Question ")) {
			t.Fatalf("record %d should announce the next question", i)
		}
		if i == 5 && rec.Next != nil {
			t.Fatalf("last record must not announce anything")
		}
	}

	select {
	case <-h.ctrl.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("controller should stop after completion")
	}
	if _, err := h.ctrl.Submit(ctx, "again"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed after completion, got %v", err)
	}
}

func TestController_AutoSubmitExactlyOnce(t *testing.T) {
	h := start(t, domain.StatusPending, nil, nil)

	h.tick(20)
	waitFor(t, "auto-submit", func() bool { return snapshot(t, h.ctrl).Index == 1 })

	// Further ticks belong to the next question's countdown.
	h.tick(5)
	s := snapshot(t, h.ctrl)
	if s.Index != 1 || s.Remaining != 15 {
		t.Fatalf("unexpected state after auto-submit: %+v", s)
	}
	if h.rec.answerCount() != 1 {
		t.Fatalf("expected exactly one answer, got %d", h.rec.answerCount())
	}
	a := h.rec.answers[0].Answer
	if a.TimeSpent != 20 || a.Answer != NoAnswerPlaceholder || a.QuestionID != "q-1" {
		t.Fatalf("unexpected auto answer: %+v", a)
	}
}

func TestController_AutoSubmitCarriesDraft(t *testing.T) {
	h := start(t, domain.StatusPending, nil, nil)
	if err := h.ctrl.UpdateDraft(context.Background(), "half an answer"); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	h.tick(20)
	waitFor(t, "auto-submit", func() bool { return h.rec.answerCount() == 1 })
	if got := h.rec.answers[0].Answer.Answer; got != "half an answer" {
		t.Fatalf("expected draft to be submitted, got %q", got)
	}
}

func TestController_ManualSubmitValidation(t *testing.T) {
	h := start(t, domain.StatusPending, nil, nil)
	if _, err := h.ctrl.Submit(context.Background(), ""); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("expected ErrEmptyAnswer, got %v", err)
	}
	if _, err := h.ctrl.Submit(context.Background(), "   "); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("expected ErrEmptyAnswer for blank text, got %v", err)
	}
}

func TestController_PersistenceFailureKeepsDraft(t *testing.T) {
	rec := &fakeRecorder{failAnswer: 1}
	h := start(t, domain.StatusPending, nil, rec)
	ctx := context.Background()

	_, err := h.ctrl.Submit(ctx, "my answer")
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	s := snapshot(t, h.ctrl)
	if s.Index != 0 || s.Draft != "my answer" || !s.InputEnabled || s.LastError == "" {
		t.Fatalf("failed submit must not advance: %+v", s)
	}

	out, err := h.ctrl.Submit(ctx, "")
	if err != nil || out.QuestionID != "q-1" {
		t.Fatalf("retry with kept draft: out=%+v err=%v", out, err)
	}
	if s := snapshot(t, h.ctrl); s.Index != 1 || s.Draft != "" {
		t.Fatalf("successful retry should advance: %+v", s)
	}
}

func TestController_FailedAutoSubmitRetriesOnTick(t *testing.T) {
	rec := &fakeRecorder{failAnswer: 1}
	h := start(t, domain.StatusPending, nil, rec)

	h.tick(20)
	waitFor(t, "failed auto-submit to settle", func() bool {
		s := snapshot(t, h.ctrl)
		return !s.Pending && s.LastError != ""
	})
	if h.rec.answerCount() != 0 {
		t.Fatalf("nothing should be stored yet")
	}
	h.tick(1)
	waitFor(t, "retried auto-submit", func() bool { return snapshot(t, h.ctrl).Index == 1 })
	if got := h.rec.answers[0].Answer.TimeSpent; got != 20 {
		t.Fatalf("retried auto-submit should still spend the full limit, got %d", got)
	}
}

func TestController_ConflictClosesSession(t *testing.T) {
	rec := &fakeRecorder{answerErr: ErrInterviewCompleted}
	h := start(t, domain.StatusInProgress, nil, rec)
	_, err := h.ctrl.Submit(context.Background(), "answer")
	if !errors.Is(err, ErrInterviewCompleted) {
		t.Fatalf("expected ErrInterviewCompleted, got %v", err)
	}
	select {
	case <-h.ctrl.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("stale controller should stop")
	}
}

func TestController_FinishesInterruptedCompletion(t *testing.T) {
	answered := make([]domain.QuestionAnswer, 6)
	for i := range answered {
		answered[i] = domain.QuestionAnswer{QuestionID: "q", Score: float64(i)}
	}
	rec := &fakeRecorder{failFinish: 1}
	h := start(t, domain.StatusInProgress, answered, rec)

	waitFor(t, "first completion attempt", func() bool {
		s := snapshot(t, h.ctrl)
		return !s.Pending && s.LastError != ""
	})
	h.tick(1)
	waitFor(t, "completion retry", func() bool { return rec.completionCount() == 1 })
	if got := rec.completions[0]; got != 2.5 { // mean of 0..5
		t.Fatalf("expected final score 2.5, got %v", got)
	}
}

func TestController_CompletionRetryReusesSummary(t *testing.T) {
	answered := make([]domain.QuestionAnswer, 6)
	for i := range answered {
		answered[i] = domain.QuestionAnswer{QuestionID: "q", Score: 7}
	}
	rec := &fakeRecorder{failFinish: 1 << 30}
	ai := &countingAssessor{}
	ticks := make(chan time.Time)
	ctrl, err := Start(context.Background(), Config{
		CandidateID: "c1",
		Name:        "Ann",
		Status:      domain.StatusInProgress,
		Questions:   sixQuestions(),
		Answers:     answered,
		Recorder:    rec,
		Assessor:    ai,
		Logger:      zerolog.Nop(),
		NewTicker: func(time.Duration) (<-chan time.Time, func()) {
			return ticks, func() {}
		},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(ctrl.Close)
	h := &harness{ctrl: ctrl, rec: rec, ticks: ticks}
	settled := func() bool {
		s := snapshot(t, ctrl)
		return !s.Pending && s.LastError != ""
	}

	waitFor(t, "first completion attempt", settled)
	for i := 0; i < 10; i++ {
		h.tick(1)
		waitFor(t, "completion attempt to settle", settled)
	}

	if n := ai.calls(); n != 1 {
		t.Fatalf("GenerateSummary called %d times, want 1", n)
	}
	rec.mu.Lock()
	attempts := append([]string(nil), rec.attempts...)
	rec.mu.Unlock()
	// Attempts at start and after 1, 3 and 7 ticks.
	if len(attempts) != 4 {
		t.Fatalf("completion attempts = %d, want 4 with backoff", len(attempts))
	}
	for i, s := range attempts {
		if s != "summary #1" {
			t.Fatalf("attempt %d stored summary %q", i, s)
		}
	}
}

func TestStart_RejectsCompletedCandidate(t *testing.T) {
	_, err := Start(context.Background(), Config{
		CandidateID: "c1",
		Status:      domain.StatusCompleted,
		Questions:   sixQuestions(),
		Recorder:    &fakeRecorder{},
		Assessor:    fakeAssessor{},
		Logger:      zerolog.Nop(),
	})
	if !errors.Is(err, ErrInterviewCompleted) {
		t.Fatalf("expected ErrInterviewCompleted, got %v", err)
	}
}
