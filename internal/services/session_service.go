// Package services – SessionService
//
// This file implements SessionService, which runs live interviews. It owns
// the stage transitions before the question loop (résumé intake and missing
// contact collection) and keeps one interview.Controller per open candidate.
//
// A controller is rebuilt from the stored candidate on every open: the
// answer count is the resume index and the question list comes from the
// durable per-candidate cache, never from a fresh generation. Callers in
// this process share the controller of a candidate; another process holding
// the candidate's lease makes the open fail with ErrSessionLocked.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/interview"
	"github.com/tbourn/go-interview-backend/internal/lease"
	"github.com/tbourn/go-interview-backend/internal/observability"
	"github.com/tbourn/go-interview-backend/internal/repo"
	"github.com/tbourn/go-interview-backend/internal/resume"
)

// Assistant produces interview content. Implementations never fail.
type Assistant interface {
	interview.Assessor
	GenerateQuestions(ctx context.Context, resumeText string) ([]domain.Question, string)
	GenerateProfileDescription(ctx context.Context, resumeText string) string
}

// ResumeInput is an uploaded résumé: extracted text, the original file, or
// both. Text wins when both are given.
type ResumeInput struct {
	Text string
	File *domain.ResumeFile
}

// View is what a candidate's client needs to render the session.
type View struct {
	CandidateID   string
	Status        domain.Status
	Stage         interview.Stage
	MissingFields []interview.ContactField
	Index         int
	Total         int
	Question      *domain.Question
	Remaining     int
	Draft         string
	InputEnabled  bool
	Pending       bool
	Live          bool
	FinalScore    float64
	Summary       string
	LastError     string
}

type liveSession struct {
	ctrl     *interview.Controller
	mu       sync.Mutex
	lastSeen time.Time
	stop     chan struct{}
}

func (l *liveSession) touch(now time.Time) {
	l.mu.Lock()
	l.lastSeen = now
	l.mu.Unlock()
}

func (l *liveSession) seen() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeen
}

// SessionService runs interview sessions.
type SessionService struct {
	DB         *gorm.DB
	Candidates *CandidateService
	Assistant  Assistant
	Locker     lease.Locker
	Logger     zerolog.Logger

	// Owner identifies this process in leases.
	Owner    string
	LeaseTTL time.Duration
	// IdleTimeout closes sessions nobody has touched for that long.
	IdleTimeout time.Duration
	// IOTimeout bounds each scoring and write round trip.
	IOTimeout time.Duration

	NewTicker interview.TickerFunc
	Now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveSession
	opening  singleflight.Group
}

// NewSessionService wires a SessionService with defaults.
func NewSessionService(db *gorm.DB, candidates *CandidateService, assistant Assistant, locker lease.Locker, owner string, log zerolog.Logger) *SessionService {
	if locker == nil {
		locker = lease.NewMemoryLocker()
	}
	return &SessionService{
		DB:          db,
		Candidates:  candidates,
		Assistant:   assistant,
		Locker:      locker,
		Logger:      log,
		Owner:       owner,
		LeaseTTL:    30 * time.Second,
		IdleTimeout: 30 * time.Minute,
		IOTimeout:   30 * time.Second,
		Now:         time.Now,
		sessions:    map[string]*liveSession{},
	}
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func sessionTracer() trace.Tracer { return otel.Tracer("services/SessionService") }

// SubmitResume creates the attempt of ident in the room from a résumé and
// reports the next stage: collect-info when a contact field could not be
// read, interview otherwise. An unfinished attempt is returned unchanged; a
// completed one is rejected. The room is checked before the résumé is read
// or sent to the assistant.
func (s *SessionService) SubmitResume(ctx context.Context, ident domain.Identity, code string, in ResumeInput) (*domain.Candidate, interview.Intake, error) {
	ctx, span := sessionTracer().Start(ctx, "SubmitResume",
		trace.WithAttributes(
			attribute.String("room.code", NormalizeRoomCode(code)),
			attribute.String("user.id", ident.UserID),
		),
	)
	defer span.End()

	existing, err := s.Candidates.FindAttempt(ctx, code, ident)
	if err != nil {
		return nil, interview.Intake{}, err
	}
	if existing != nil {
		c, err := s.Candidates.Get(ctx, existing.ID)
		if err != nil {
			return nil, interview.Intake{}, err
		}
		return c, interview.EvaluateIntake(interview.ContactOf(c)), nil
	}
	room, err := s.Candidates.Rooms.GetByCode(ctx, code)
	if err != nil {
		return nil, interview.Intake{}, err
	}
	if !room.IsActive {
		return nil, interview.Intake{}, ErrRoomClosed
	}

	text := in.Text
	if strings.TrimSpace(text) == "" && in.File != nil {
		if err := domain.Validate(in.File); err != nil {
			return nil, interview.Intake{}, err
		}
		if text, err = resume.Text(in.File); err != nil {
			return nil, interview.Intake{}, err
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, interview.Intake{}, ErrResumeRequired
	}

	contact := resume.ExtractContact(text)
	profile := s.Assistant.GenerateProfileDescription(ctx, text)
	c, err := s.Candidates.Create(ctx, ident, NewCandidate{
		RoomCode:           code,
		Name:               contact.Name,
		Email:              contact.Email,
		Phone:              contact.Phone,
		ResumeText:         text,
		ResumeFile:         in.File,
		ProfileDescription: profile,
	})
	if err != nil {
		return nil, interview.Intake{}, err
	}
	intake := interview.EvaluateIntake(interview.ContactOf(c))
	span.SetAttributes(
		attribute.String("candidate.id", c.ID),
		attribute.String("stage", string(intake.Stage)),
	)
	return c, intake, nil
}

// SubmitMissingFields completes the contact details of ident's attempt.
func (s *SessionService) SubmitMissingFields(ctx context.Context, ident domain.Identity, id string, form interview.ContactForm) (*domain.Candidate, interview.Intake, error) {
	ctx, span := sessionTracer().Start(ctx, "SubmitMissingFields",
		trace.WithAttributes(attribute.String("candidate.id", id)),
	)
	defer span.End()

	if _, err := s.owned(ctx, ident, id); err != nil {
		return nil, interview.Intake{}, err
	}
	return s.Candidates.CompleteContact(ctx, id, form)
}

// Open starts or resumes the question loop of ident's attempt and returns
// the live view. Opening a completed attempt returns its final view.
func (s *SessionService) Open(ctx context.Context, ident domain.Identity, id string) (View, error) {
	ctx, span := sessionTracer().Start(ctx, "Open", trace.WithAttributes(attribute.String("candidate.id", id)))
	defer span.End()

	c, err := s.owned(ctx, ident, id)
	if err != nil {
		return View{}, err
	}
	if c.Status == domain.StatusCompleted {
		return s.storedView(ctx, c), nil
	}
	sess, err := s.live(ctx, c)
	if err != nil {
		return View{}, err
	}
	return s.liveView(ctx, c, sess)
}

// UpdateDraft replaces the draft answer of the current question, opening
// the session if needed.
func (s *SessionService) UpdateDraft(ctx context.Context, ident domain.Identity, id, text string) (View, error) {
	c, err := s.owned(ctx, ident, id)
	if err != nil {
		return View{}, err
	}
	if c.Status == domain.StatusCompleted {
		return View{}, ErrCandidateCompleted
	}
	sess, err := s.live(ctx, c)
	if err != nil {
		return View{}, err
	}
	if err := sess.ctrl.UpdateDraft(ctx, text); err != nil {
		return View{}, err
	}
	return s.liveView(ctx, c, sess)
}

// Submit submits the answer to the current question (text, or the draft
// when text is empty) and waits until it is scored and stored.
func (s *SessionService) Submit(ctx context.Context, ident domain.Identity, id, text string) (interview.Outcome, error) {
	ctx, span := sessionTracer().Start(ctx, "Submit", trace.WithAttributes(attribute.String("candidate.id", id)))
	defer span.End()

	c, err := s.owned(ctx, ident, id)
	if err != nil {
		return interview.Outcome{}, err
	}
	if c.Status == domain.StatusCompleted {
		return interview.Outcome{}, ErrCandidateCompleted
	}
	sess, err := s.live(ctx, c)
	if err != nil {
		return interview.Outcome{}, err
	}
	out, err := sess.ctrl.Submit(ctx, text)
	if err != nil {
		observability.Fail(span, err)
		return interview.Outcome{}, err
	}
	span.SetAttributes(
		attribute.String("question.id", out.QuestionID),
		attribute.Bool("completed", out.Completed),
	)
	return out, nil
}

// Snapshot returns the session view without opening a session: a live
// session reports its countdown; otherwise the view is derived from the
// stored record.
func (s *SessionService) Snapshot(ctx context.Context, ident domain.Identity, id string) (View, error) {
	c, err := s.owned(ctx, ident, id)
	if err != nil {
		return View{}, err
	}
	if sess := s.lookup(id); sess != nil {
		v, err := s.liveView(ctx, c, sess)
		if !errors.Is(err, interview.ErrSessionClosed) {
			return v, err
		}
		if c, err = s.Candidates.Get(ctx, id); err != nil {
			return View{}, err
		}
	}
	return s.storedView(ctx, c), nil
}

// SweepIdle closes sessions untouched for IdleTimeout and returns how many
// were closed. Closed sessions stay resumable from storage.
func (s *SessionService) SweepIdle(now time.Time) int {
	if s.IdleTimeout <= 0 {
		return 0
	}
	var idle []*liveSession
	s.mu.Lock()
	for _, sess := range s.sessions {
		if now.Sub(sess.seen()) >= s.IdleTimeout {
			idle = append(idle, sess)
		}
	}
	s.mu.Unlock()
	for _, sess := range idle {
		sess.ctrl.Close()
	}
	return len(idle)
}

// Active returns the number of live sessions.
func (s *SessionService) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops every live session.
func (s *SessionService) Close() {
	s.mu.Lock()
	all := make([]*liveSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()
	for _, sess := range all {
		sess.ctrl.Close()
	}
}

// owned loads candidate id and checks it belongs to ident.
func (s *SessionService) owned(ctx context.Context, ident domain.Identity, id string) (*domain.Candidate, error) {
	if ident.Anonymous() {
		return nil, ErrMissingIdentity
	}
	c, err := s.Candidates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != ident.UserID {
		return nil, ErrNotCandidate
	}
	return c, nil
}

func (s *SessionService) lookup(id string) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		return nil
	}
	sess := s.sessions[id]
	if sess != nil {
		sess.touch(s.now())
	}
	return sess
}

// live returns the running session of c, starting one if needed.
func (s *SessionService) live(ctx context.Context, c *domain.Candidate) (*liveSession, error) {
	if sess := s.lookup(c.ID); sess != nil {
		select {
		case <-sess.ctrl.Done():
		default:
			return sess, nil
		}
	}
	v, err, _ := s.opening.Do(c.ID, func() (any, error) {
		if sess := s.lookup(c.ID); sess != nil {
			select {
			case <-sess.ctrl.Done():
			default:
				return sess, nil
			}
		}
		return s.start(ctx, c.ID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*liveSession), nil
}

// start acquires the lease and builds a controller from storage.
func (s *SessionService) start(ctx context.Context, id string) (*liveSession, error) {
	ok, err := s.Locker.Acquire(ctx, id, s.Owner, s.LeaseTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionLocked
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Locker.Release(rctx, id, s.Owner); err != nil {
			s.Logger.Warn().Err(err).Str("candidate_id", id).Msg("lease_release_failed")
		}
	}

	// Reload under the lease: another process may have written since.
	c, err := s.Candidates.Get(ctx, id)
	if err != nil {
		release()
		return nil, err
	}
	if c.Status == domain.StatusCompleted {
		release()
		return nil, ErrCandidateCompleted
	}
	if missing := interview.ContactOf(c).Missing(); len(missing) > 0 {
		release()
		return nil, ErrContactIncomplete
	}
	questions, err := s.questions(ctx, c)
	if err != nil {
		release()
		return nil, err
	}

	ctrl, err := interview.Start(ctx, interview.Config{
		CandidateID: c.ID,
		Name:        c.Name,
		Status:      c.Status,
		Questions:   questions,
		Answers:     c.QuestionsAnswers,
		Recorder:    s.Candidates,
		Assessor:    s.Assistant,
		Logger:      s.Logger,
		IOTimeout:   s.IOTimeout,
		NewTicker:   s.NewTicker,
		Now:         s.Now,
	})
	if err != nil {
		release()
		return nil, err
	}

	sess := &liveSession{ctrl: ctrl, lastSeen: s.now(), stop: make(chan struct{})}
	s.mu.Lock()
	if s.sessions == nil {
		s.sessions = map[string]*liveSession{}
	}
	s.sessions[id] = sess
	s.mu.Unlock()
	activeSessions.Inc()
	s.Logger.Info().Str("candidate_id", id).Int("resume_index", len(c.QuestionsAnswers)).Msg("session_opened")

	go s.renew(id, sess)
	go func() {
		<-ctrl.Done()
		close(sess.stop)
		s.mu.Lock()
		current := s.sessions[id] == sess
		if current {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		activeSessions.Dec()
		// A replacement session in this process holds the same lease.
		if current {
			release()
		}
		s.Logger.Info().Str("candidate_id", id).Msg("session_closed")
	}()
	return sess, nil
}

// renew keeps the lease alive while the session runs. Losing the lease
// closes the session.
func (s *SessionService) renew(id string, sess *liveSession) {
	every := s.LeaseTTL / 3
	if every <= 0 {
		every = time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-sess.stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			ok, err := s.Locker.Renew(ctx, id, s.Owner, s.LeaseTTL)
			cancel()
			if err != nil {
				s.Logger.Warn().Err(err).Str("candidate_id", id).Msg("lease_renew_failed")
				continue
			}
			if !ok {
				s.Logger.Warn().Str("candidate_id", id).Msg("lease_lost")
				go sess.ctrl.Close()
				return
			}
		}
	}
}

// questions returns the cached question list of c, generating and caching
// it on first use. Concurrent first uses agree on the first stored list.
func (s *SessionService) questions(ctx context.Context, c *domain.Candidate) ([]domain.Question, error) {
	set, err := repo.GetQuestionSet(ctx, s.DB, c.ID)
	if err == nil {
		return set.Questions, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	qs, source := s.Assistant.GenerateQuestions(ctx, c.ResumeText)
	set, err = repo.CreateQuestionSet(ctx, s.DB, c.ID, source, qs)
	if errors.Is(err, repo.ErrDuplicate) {
		set, err = repo.GetQuestionSet(ctx, s.DB, c.ID)
	}
	if err != nil {
		return nil, err
	}
	s.Logger.Info().Str("candidate_id", c.ID).Str("source", set.Source).Msg("questions_cached")
	return set.Questions, nil
}

func (s *SessionService) liveView(ctx context.Context, c *domain.Candidate, sess *liveSession) (View, error) {
	st, err := sess.ctrl.Snapshot(ctx)
	if err != nil {
		return View{}, err
	}
	v := View{
		CandidateID:  c.ID,
		Status:       domain.StatusInProgress,
		Stage:        st.Stage,
		Index:        st.Index,
		Total:        st.Total,
		Question:     st.Question,
		Remaining:    st.Remaining,
		Draft:        st.Draft,
		InputEnabled: st.InputEnabled,
		Pending:      st.Pending,
		Live:         st.Stage != interview.StageCompleted,
		FinalScore:   st.FinalScore,
		Summary:      st.Summary,
		LastError:    st.LastError,
	}
	if st.Stage == interview.StageCompleted {
		v.Status = domain.StatusCompleted
	}
	return v, nil
}

func (s *SessionService) storedView(ctx context.Context, c *domain.Candidate) View {
	v := View{
		CandidateID: c.ID,
		Status:      c.Status,
		Stage:       interview.StageOf(c),
		Index:       len(c.QuestionsAnswers),
		FinalScore:  c.FinalScore,
		Summary:     c.Summary,
	}
	switch v.Stage {
	case interview.StageCollectInfo:
		v.MissingFields = interview.ContactOf(c).Missing()
	case interview.StageInterview:
		if set, err := repo.GetQuestionSet(ctx, s.DB, c.ID); err == nil {
			v.Total = len(set.Questions)
			if v.Index < v.Total {
				q := set.Questions[v.Index]
				v.Question = &q
				v.Remaining = q.TimeLimit
			}
		}
	case interview.StageCompleted:
		v.Total = len(c.QuestionsAnswers)
	}
	return v
}
