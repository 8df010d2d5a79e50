package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/interview"
	"github.com/tbourn/go-interview-backend/internal/lease"
	"github.com/tbourn/go-interview-backend/internal/resume"
)

// ---- fakes ----

type fakeAssistant struct {
	generated atomic.Int32
	profiles  atomic.Int32
	scores    map[string]float64
}

func (a *fakeAssistant) GenerateQuestions(_ context.Context, _ string) ([]domain.Question, string) {
	a.generated.Add(1)
	ds := []domain.Difficulty{
		domain.DifficultyEasy, domain.DifficultyEasy,
		domain.DifficultyMedium, domain.DifficultyMedium,
		domain.DifficultyHard, domain.DifficultyHard,
	}
	out := make([]domain.Question, len(ds))
	for i, d := range ds {
		n := string(rune('1' + i))
		out[i] = domain.Question{ID: "q-" + n, Text: "question " + n, Difficulty: d, TimeLimit: d.TimeLimit()}
	}
	return out, "provider"
}

func (a *fakeAssistant) GenerateProfileDescription(_ context.Context, _ string) string {
	a.profiles.Add(1)
	return "Backend engineer."
}

func (a *fakeAssistant) EvaluateAnswer(_ context.Context, _, answer string, _ domain.Difficulty) domain.Evaluation {
	if s, ok := a.scores[answer]; ok {
		return domain.Evaluation{Score: s, Feedback: "Good."}
	}
	return domain.Evaluation{Score: 5, Feedback: "Answer received."}
}

func (a *fakeAssistant) GenerateSummary(_ context.Context, name string, _ []domain.QuestionAnswer) string {
	return name + " did well."
}

// manualTickers hands out one test-driven tick channel per session start.
type manualTickers struct {
	mu  sync.Mutex
	chs []chan time.Time
}

func (m *manualTickers) new(time.Duration) (<-chan time.Time, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time)
	m.chs = append(m.chs, ch)
	return ch, func() {}
}

func (m *manualTickers) last() chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chs[len(m.chs)-1]
}

const fullResume = "Ada Lovelace\nada@example.com\n555-123-4567\nGo developer, distributed systems."

type sessionFixture struct {
	db      *gorm.DB
	svc     *SessionService
	ai      *fakeAssistant
	tickers *manualTickers
	room    *domain.Room
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	db := newServiceDB(t)
	room := seedServiceRoom(t, db, "INT-SESSN1", true)
	ai := &fakeAssistant{scores: map[string]float64{}}
	tk := &manualTickers{}
	cands, _ := newCandidates(db)
	svc := NewSessionService(db, cands, ai, lease.NewMemoryLocker(), "proc-a", zerolog.Nop())
	svc.NewTicker = tk.new
	svc.IOTimeout = 5 * time.Second
	t.Cleanup(svc.Close)
	return &sessionFixture{db: db, svc: svc, ai: ai, tickers: tk, room: room}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ---- tests ----

func TestSessionService_SubmitResumeChecksRoomFirst(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	closed := seedServiceRoom(t, f.db, "INT-SHUT01", false)
	file := &domain.ResumeFile{Name: "cv.docx", Type: resume.MimeDOCX, Data: "AAAA"}

	if _, _, err := f.svc.SubmitResume(ctx, who("u1", ""), "INT-NOPE00", ResumeInput{Text: fullResume}); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("unknown room: want ErrRoomNotFound, got %v", err)
	}
	if _, _, err := f.svc.SubmitResume(ctx, who("u1", ""), closed.Code, ResumeInput{Text: fullResume}); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("closed room: want ErrRoomClosed, got %v", err)
	}
	if _, _, err := f.svc.SubmitResume(ctx, who("u1", ""), closed.Code, ResumeInput{File: file}); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("closed room with a file: want ErrRoomClosed, got %v", err)
	}
	if n := f.ai.profiles.Load(); n != 0 {
		t.Fatalf("profile provider called %d times for rejected rooms", n)
	}
}

func TestSessionService_ResumeEmailDoesNotShareAttempts(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	ada := who("u-ada", "")
	eve := who("u-eve", "ada@example.com")

	mine, _, err := f.svc.SubmitResume(ctx, ada, f.room.Code, ResumeInput{Text: fullResume})
	if err != nil {
		t.Fatalf("SubmitResume(ada): %v", err)
	}
	theirs, _, err := f.svc.SubmitResume(ctx, eve, f.room.Code, ResumeInput{Text: "Eve Example\neve@example.com\n555-987-6543\nSRE."})
	if err != nil {
		t.Fatalf("SubmitResume(eve): %v", err)
	}
	if theirs.ID == mine.ID || theirs.UserID != "u-eve" || theirs.ResumeText == mine.ResumeText {
		t.Fatalf("eve received ada's attempt: %+v", theirs)
	}
	if _, err := f.svc.Open(ctx, eve, theirs.ID); err != nil {
		t.Fatalf("Open(eve): %v", err)
	}
}

func TestSessionService_FullInterview(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	ada := who("u-ada", "")
	answers := []string{"a1", "a2", "a3", "a4", "a5", "a6"}
	for i, s := range []float64{6, 7, 8, 9, 8, 7} {
		f.ai.scores[answers[i]] = s
	}

	c, intake, err := f.svc.SubmitResume(ctx, ada, f.room.Code, ResumeInput{Text: fullResume})
	if err != nil {
		t.Fatalf("SubmitResume: %v", err)
	}
	if intake.Stage != interview.StageInterview || c.Name != "Ada" || c.Email != "ada@example.com" || c.ProfileDescription != "Backend engineer." {
		t.Fatalf("unexpected intake %+v candidate %+v", intake, c)
	}

	v, err := f.svc.Open(ctx, ada, c.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v.Index != 0 || v.Total != 6 || v.Question == nil || v.Question.ID != "q-1" || v.Remaining != 20 || !v.Live {
		t.Fatalf("unexpected first view %+v", v)
	}

	var out interview.Outcome
	for i, a := range answers {
		if out, err = f.svc.Submit(ctx, ada, c.ID, a); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if !out.Completed || out.FinalScore != 7.5 || out.Summary != "Ada did well." {
		t.Fatalf("unexpected final outcome %+v", out)
	}

	stored, err := f.svc.Candidates.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != domain.StatusCompleted || stored.FinalScore != 7.5 || len(stored.QuestionsAnswers) != 6 {
		t.Fatalf("unexpected stored record: status=%s score=%v answers=%d", stored.Status, stored.FinalScore, len(stored.QuestionsAnswers))
	}
	if n := len(stored.ChatHistory); n != 19 {
		t.Fatalf("expected 19 transcript entries, got %d", n)
	}
	if last := stored.ChatHistory[len(stored.ChatHistory)-1]; last.Type != domain.MessageSystem {
		t.Fatalf("last entry should be the completion message, got %+v", last)
	}

	// A finished attempt opens read-only and blocks retakes.
	v, err = f.svc.Open(ctx, ada, c.ID)
	if err != nil || v.Stage != interview.StageCompleted || v.Live || v.FinalScore != 7.5 {
		t.Fatalf("completed view = %+v, %v", v, err)
	}
	if _, err := f.svc.Submit(ctx, ada, c.ID, "again"); !errors.Is(err, ErrCandidateCompleted) {
		t.Fatalf("submit after completion: want ErrCandidateCompleted, got %v", err)
	}
	if _, _, err := f.svc.SubmitResume(ctx, ada, f.room.Code, ResumeInput{Text: fullResume}); !errors.Is(err, ErrAttemptCompleted) {
		t.Fatalf("retake: want ErrAttemptCompleted, got %v", err)
	}
}

func TestSessionService_CollectMissingContact(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	ada := who("u-ada", "")

	c, intake, err := f.svc.SubmitResume(ctx, ada, f.room.Code, ResumeInput{Text: "Ada\nada@example.com\nno phone listed"})
	if err != nil {
		t.Fatalf("SubmitResume: %v", err)
	}
	if intake.Stage != interview.StageCollectInfo || len(intake.Missing) != 1 || intake.Missing[0] != interview.FieldPhone {
		t.Fatalf("unexpected intake %+v", intake)
	}
	if _, err := f.svc.Open(ctx, ada, c.ID); !errors.Is(err, ErrContactIncomplete) {
		t.Fatalf("open before contact: want ErrContactIncomplete, got %v", err)
	}
	v, _ := f.svc.Snapshot(ctx, ada, c.ID)
	if v.Stage != interview.StageCollectInfo || len(v.MissingFields) != 1 {
		t.Fatalf("unexpected collect-info view %+v", v)
	}

	if _, _, err := f.svc.SubmitMissingFields(ctx, who("u-eve", ""), c.ID, interview.ContactForm{Phone: interview.Set("555-987-6543")}); !errors.Is(err, ErrNotCandidate) {
		t.Fatalf("foreign caller: want ErrNotCandidate, got %v", err)
	}
	_, intake, err = f.svc.SubmitMissingFields(ctx, ada, c.ID, interview.ContactForm{Phone: interview.Set("555-987-6543")})
	if err != nil || intake.Stage != interview.StageInterview {
		t.Fatalf("SubmitMissingFields = %+v, %v", intake, err)
	}
	if _, err := f.svc.Open(ctx, ada, c.ID); err != nil {
		t.Fatalf("Open after contact: %v", err)
	}
}

func TestSessionService_SubmitResumeRules(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, _, err := f.svc.SubmitResume(ctx, who("u1", ""), f.room.Code, ResumeInput{Text: "   "}); !errors.Is(err, ErrResumeRequired) {
		t.Fatalf("blank resume: want ErrResumeRequired, got %v", err)
	}
	pdf := &domain.ResumeFile{Name: "cv.pdf", Type: resume.MimePDF, Data: "JVBERi0="}
	if _, _, err := f.svc.SubmitResume(ctx, who("u1", ""), f.room.Code, ResumeInput{File: pdf}); !errors.Is(err, resume.ErrUnsupported) {
		t.Fatalf("pdf without text: want ErrUnsupported, got %v", err)
	}

	// An unfinished attempt is returned as is.
	first, _, err := f.svc.SubmitResume(ctx, who("u1", ""), f.room.Code, ResumeInput{Text: fullResume})
	if err != nil {
		t.Fatalf("SubmitResume: %v", err)
	}
	again, intake, err := f.svc.SubmitResume(ctx, who("u1", ""), f.room.Code, ResumeInput{Text: "Someone Else"})
	if err != nil || again.ID != first.ID || again.Name != "Ada" || intake.Stage != interview.StageInterview {
		t.Fatalf("resubmit = %+v, %+v, %v", again, intake, err)
	}
}

func TestSessionService_ResumesAtStoredIndex(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	ada := who("u-ada", "")

	c, _, _ := f.svc.SubmitResume(ctx, ada, f.room.Code, ResumeInput{Text: fullResume})
	if _, err := f.svc.Open(ctx, ada, c.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, a := range []string{"first", "second"} {
		if _, err := f.svc.Submit(ctx, ada, c.ID, a); err != nil {
			t.Fatalf("Submit %q: %v", a, err)
		}
	}
	if _, err := f.svc.UpdateDraft(ctx, ada, c.ID, "half-typed"); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	// Interruption: the session goes away, the record stays.
	f.svc.Close()
	waitFor(t, "session teardown", func() bool { return f.svc.Active() == 0 })

	v, err := f.svc.Open(ctx, ada, c.ID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v.Index != 2 || v.Question == nil || v.Question.ID != "q-3" || v.Remaining != 60 || v.Draft != "" {
		t.Fatalf("unexpected resumed view %+v", v)
	}
	if n := f.ai.generated.Load(); n != 1 {
		t.Fatalf("questions should be generated once per candidate, got %d", n)
	}
	stored, _ := f.svc.Candidates.Get(ctx, c.ID)
	if stored.Status != domain.StatusInProgress || len(stored.QuestionsAnswers) != 2 {
		t.Fatalf("unexpected stored record: status=%s answers=%d", stored.Status, len(stored.QuestionsAnswers))
	}
}

func TestSessionService_AutoSubmitOnExpiry(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	ada := who("u-ada", "")

	c, _, _ := f.svc.SubmitResume(ctx, ada, f.room.Code, ResumeInput{Text: fullResume})
	if _, err := f.svc.Open(ctx, ada, c.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.svc.UpdateDraft(ctx, ada, c.ID, "partial thought"); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	ticks := f.tickers.last()
	for i := 0; i < 20; i++ {
		ticks <- time.Now()
	}

	waitFor(t, "auto-submitted answer", func() bool {
		got, err := f.svc.Candidates.Get(ctx, c.ID)
		return err == nil && len(got.QuestionsAnswers) == 1
	})
	got, _ := f.svc.Candidates.Get(ctx, c.ID)
	qa := got.QuestionsAnswers[0]
	if qa.Answer != "partial thought" || qa.TimeSpent != 20 || qa.QuestionID != "q-1" {
		t.Fatalf("unexpected auto-submitted answer %+v", qa)
	}
	v, err := f.svc.Snapshot(ctx, ada, c.ID)
	if err != nil || v.Index != 1 || v.Remaining != 20 || !v.InputEnabled {
		t.Fatalf("view after auto-submit = %+v, %v", v, err)
	}
}

func TestSessionService_LockedByAnotherProcess(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	ada := who("u-ada", "")

	c, _, _ := f.svc.SubmitResume(ctx, ada, f.room.Code, ResumeInput{Text: fullResume})
	if _, err := f.svc.Open(ctx, ada, c.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}

	other := NewSessionService(f.svc.DB, f.svc.Candidates, f.ai, f.svc.Locker, "proc-b", zerolog.Nop())
	other.NewTicker = f.tickers.new
	t.Cleanup(other.Close)
	if _, err := other.Open(ctx, ada, c.ID); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("second process: want ErrSessionLocked, got %v", err)
	}

	// Same process: tabs share one session.
	if _, err := f.svc.Open(ctx, ada, c.ID); err != nil || f.svc.Active() != 1 {
		t.Fatalf("second tab: active=%d err=%v", f.svc.Active(), err)
	}

	f.svc.Close()
	waitFor(t, "lease release", func() bool { return f.svc.Active() == 0 })
	if _, err := other.Open(ctx, ada, c.ID); err != nil {
		t.Fatalf("open after release: %v", err)
	}
}

func TestSessionService_Ownership(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	c, _, _ := f.svc.SubmitResume(ctx, who("u-ada", ""), f.room.Code, ResumeInput{Text: fullResume})

	if _, err := f.svc.Open(ctx, who("u-eve", ""), c.ID); !errors.Is(err, ErrNotCandidate) {
		t.Fatalf("foreign open: want ErrNotCandidate, got %v", err)
	}
	if _, err := f.svc.Submit(ctx, domain.Identity{}, c.ID, "x"); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("anonymous submit: want ErrMissingIdentity, got %v", err)
	}
	if _, err := f.svc.Open(ctx, who("u-ada", ""), "missing"); !errors.Is(err, ErrCandidateNotFound) {
		t.Fatalf("unknown candidate: want ErrCandidateNotFound, got %v", err)
	}
}

func TestSessionService_SnapshotAndSweep(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	ada := who("u-ada", "")
	c, _, _ := f.svc.SubmitResume(ctx, ada, f.room.Code, ResumeInput{Text: fullResume})

	v, err := f.svc.Snapshot(ctx, ada, c.ID)
	if err != nil || v.Live || v.Stage != interview.StageInterview || v.Question != nil {
		t.Fatalf("snapshot before open = %+v, %v", v, err)
	}
	if _, err := f.svc.Open(ctx, ada, c.ID); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if v, _ = f.svc.Snapshot(ctx, ada, c.ID); !v.Live || v.Total != 6 {
		t.Fatalf("live snapshot = %+v", v)
	}

	if n := f.svc.SweepIdle(time.Now()); n != 0 {
		t.Fatalf("fresh session should not be swept, got %d", n)
	}
	if n := f.svc.SweepIdle(time.Now().Add(time.Hour)); n != 1 {
		t.Fatalf("idle session should be swept, got %d", n)
	}
	waitFor(t, "idle teardown", func() bool { return f.svc.Active() == 0 })

	v, err = f.svc.Snapshot(ctx, ada, c.ID)
	if err != nil || v.Live || v.Question == nil || v.Question.ID != "q-1" || v.Total != 6 {
		t.Fatalf("snapshot after sweep = %+v, %v", v, err)
	}
}
