package interview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// Assessor scores answers and writes the closing summary. Implementations
// never fail: provider errors are absorbed into fallback results.
type Assessor interface {
	EvaluateAnswer(ctx context.Context, question, answer string, difficulty domain.Difficulty) domain.Evaluation
	GenerateSummary(ctx context.Context, name string, answers []domain.QuestionAnswer) string
}

// AnswerRecord is everything one submission writes, in transcript order:
// the user's answer, the scored entry, the feedback, and the announcement
// of the next question if there is one.
type AnswerRecord struct {
	Position int
	Answer   domain.QuestionAnswer
	User     domain.ChatMessage
	Feedback domain.ChatMessage
	Next     *domain.ChatMessage
}

// Recorder persists session progress. Each call is atomic.
type Recorder interface {
	RecordStart(ctx context.Context, candidateID string, announce domain.ChatMessage) error
	RecordAnswer(ctx context.Context, candidateID string, rec AnswerRecord) error
	RecordCompletion(ctx context.Context, candidateID string, finalScore float64, summary string, msg domain.ChatMessage) error
}

// TickerFunc starts a ticker and returns its channel and a stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// RealTicker wraps time.NewTicker.
func RealTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Config wires a Controller.
type Config struct {
	CandidateID string
	Name        string
	Status      domain.Status
	Questions   []domain.Question
	Answers     []domain.QuestionAnswer

	Recorder Recorder
	Assessor Assessor
	Logger   zerolog.Logger

	// IOTimeout bounds each scoring+write round trip. Zero means 30s.
	IOTimeout time.Duration
	// NewTicker defaults to RealTicker.
	NewTicker TickerFunc
	// Now defaults to time.Now.
	Now func() time.Time
}

// State is a point-in-time view of a running session.
type State struct {
	Stage        Stage
	Index        int
	Total        int
	Question     *domain.Question
	Remaining    int
	Draft        string
	InputEnabled bool
	Pending      bool
	FinalScore   float64
	Summary      string
	LastError    string
}

// Outcome is the result of a manual submission.
type Outcome struct {
	QuestionID string
	Evaluation domain.Evaluation
	Completed  bool
	FinalScore float64
	Summary    string
}

type reply struct {
	out Outcome
	err error
}

// completion is the closing write. It is built once per session so retries
// store the same score, summary and message.
type completion struct {
	score   float64
	summary string
	msg     domain.ChatMessage
}

// maxCompletionBackoff caps the ticks between completion write attempts.
const maxCompletionBackoff = 60

// Controller drives one candidate's question loop. All state lives on a
// single goroutine; timer ticks, user actions and I/O results are events on
// that goroutine, so persistence for a candidate is strictly sequential and
// an auto-submit can never race a manual one.
type Controller struct {
	cfg     Config
	machine *Machine
	log     zerolog.Logger

	events chan func()
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	ticks    <-chan time.Time
	stopTick func()

	// finishing is true while the completion write is in flight; unfinished
	// is true when every answer is stored but completion has not landed.
	finishing  bool
	unfinished bool
	waiter     chan<- reply
	lastOut    Outcome

	// pending is the completion whose write failed; backoff and retryIn
	// count ticks until the next attempt.
	pending *completion
	backoff int
	retryIn int

	finalScore float64
	summary    string
	lastErr    error
	terminated bool
}

// Start restores the session from the stored answers and starts its loop.
// A fresh attempt (pending, no answers) records the first announcement
// before the countdown begins.
func Start(ctx context.Context, cfg Config) (*Controller, error) {
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 30 * time.Second
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = RealTicker
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Status == domain.StatusCompleted {
		return nil, ErrInterviewCompleted
	}
	m, err := NewMachine(cfg.Questions, cfg.Answers)
	if err != nil {
		return nil, err
	}

	if cfg.Status == domain.StatusPending && len(cfg.Answers) == 0 {
		q, _ := m.Current()
		msg := NewMessage(domain.MessageBot, AnnounceText(0, m.Total(), q), cfg.Now())
		if err := cfg.Recorder.RecordStart(ctx, cfg.CandidateID, msg); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, err
			}
			return nil, domain.Persistence(err)
		}
	}

	c := &Controller{
		cfg:        cfg,
		machine:    m,
		log:        cfg.Logger.With().Str("candidate_id", cfg.CandidateID).Logger(),
		events:     make(chan func()),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		unfinished: m.Done(),
	}
	c.ticks, c.stopTick = cfg.NewTicker(time.Second)
	go c.run()
	if c.unfinished {
		// Every answer is stored but the completion write never landed.
		_ = c.post(c.finish)
	}
	return c, nil
}

func (c *Controller) run() {
	defer close(c.done)
	defer c.stopTick()
	for {
		select {
		case <-c.quit:
			return
		case fn := <-c.events:
			fn()
		case <-c.ticks:
			c.onTick()
		}
		if c.terminated {
			return
		}
	}
}

// post queues fn on the loop. It fails once the loop has exited.
func (c *Controller) post(fn func()) error {
	select {
	case c.events <- fn:
		return nil
	case <-c.done:
		return ErrSessionClosed
	}
}

func (c *Controller) call(ctx context.Context, fn func()) error {
	select {
	case c.events <- fn:
		return nil
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the loop exits, after completion or Close.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Close stops the loop. The candidate stays resumable from storage.
func (c *Controller) Close() {
	c.once.Do(func() { close(c.quit) })
	<-c.done
}

// Snapshot returns the current state.
func (c *Controller) Snapshot(ctx context.Context) (State, error) {
	ch := make(chan State, 1)
	if err := c.call(ctx, func() { ch <- c.state() }); err != nil {
		return State{}, err
	}
	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// UpdateDraft replaces the draft answer of the current question.
func (c *Controller) UpdateDraft(ctx context.Context, text string) error {
	ch := make(chan error, 1)
	if err := c.call(ctx, func() { ch <- c.machine.SetDraft(text) }); err != nil {
		return err
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit submits text (or the current draft when text is empty) for the
// current question and waits until it is scored and stored. On a failed
// write the draft is kept and a persistence error is returned.
func (c *Controller) Submit(ctx context.Context, text string) (Outcome, error) {
	ch := make(chan reply, 1)
	err := c.call(ctx, func() {
		if text != "" {
			if err := c.machine.SetDraft(text); err != nil {
				ch <- reply{err: err}
				return
			}
		}
		sub, err := c.machine.Begin(ModeManual)
		if err != nil {
			ch <- reply{err: err}
			return
		}
		c.dispatch(sub, ch)
	})
	if err != nil {
		return Outcome{}, err
	}
	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-c.done:
		select {
		case r := <-ch:
			return r.out, r.err
		default:
			return Outcome{}, ErrSessionClosed
		}
	}
}

func (c *Controller) state() State {
	s := State{
		Stage:        StageInterview,
		Index:        c.machine.Index(),
		Total:        c.machine.Total(),
		Remaining:    c.machine.Remaining(),
		Draft:        c.machine.Draft(),
		InputEnabled: c.machine.InputEnabled(),
		Pending:      c.machine.Pending() || c.finishing,
		FinalScore:   c.finalScore,
		Summary:      c.summary,
	}
	if q, ok := c.machine.Current(); ok {
		s.Question = &q
	}
	if c.machine.Completed() {
		s.Stage = StageCompleted
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func (c *Controller) onTick() {
	if c.unfinished {
		if c.finishing {
			return
		}
		if c.retryIn > 1 {
			c.retryIn--
			return
		}
		c.retryIn = 0
		c.finish()
		return
	}
	if !c.machine.Tick() {
		return
	}
	sub, err := c.machine.Begin(ModeAuto)
	if err != nil {
		return
	}
	c.log.Info().Int("question_index", sub.Index).Msg("countdown expired, auto-submitting")
	c.dispatch(sub, nil)
}

// dispatch scores and stores sub off the loop, then applies the result on
// the loop.
func (c *Controller) dispatch(sub Submission, waiter chan<- reply) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.IOTimeout)
		defer cancel()

		eval := c.cfg.Assessor.EvaluateAnswer(ctx, sub.Question.Text, sub.Answer, sub.Question.Difficulty)
		eval.Score = ClampScore(eval.Score)
		now := c.cfg.Now()
		rec := AnswerRecord{
			Position: sub.Index,
			Answer:   AnswerOf(sub, eval),
			User:     NewMessage(domain.MessageUser, sub.Answer, now),
			Feedback: NewMessage(domain.MessageSystem, FeedbackText(eval), now),
		}
		if sub.Next != nil {
			next := NewMessage(domain.MessageBot, AnnounceText(sub.Index+1, sub.Total, *sub.Next), now)
			rec.Next = &next
		}
		err := c.cfg.Recorder.RecordAnswer(ctx, c.cfg.CandidateID, rec)
		if c.post(func() { c.applyAnswer(sub, eval, err, waiter) }) != nil && waiter != nil {
			waiter <- reply{err: ErrSessionClosed}
		}
	}()
}

func (c *Controller) applyAnswer(sub Submission, eval domain.Evaluation, err error, waiter chan<- reply) {
	if err != nil {
		c.machine.Abort()
		if errors.Is(err, domain.ErrConflict) {
			// Another writer advanced or completed this attempt; this
			// controller's view is stale.
			c.log.Warn().Err(err).Int("question_index", sub.Index).Msg("answer rejected by store, closing session")
			c.terminated = true
			respond(waiter, reply{err: err})
			return
		}
		c.lastErr = err
		c.log.Error().Err(err).Int("question_index", sub.Index).Str("mode", string(sub.Mode)).Msg("answer not stored")
		submitFailures.Inc()
		respond(waiter, reply{err: domain.Persistence(err)})
		return
	}

	c.lastErr = nil
	c.machine.Commit(sub, eval)
	answersSubmitted.WithLabelValues(string(sub.Mode)).Inc()
	out := Outcome{QuestionID: sub.Question.ID, Evaluation: eval}
	if !c.machine.Done() {
		respond(waiter, reply{out: out})
		return
	}
	c.unfinished = true
	c.waiter = waiter
	c.lastOut = out
	c.finish()
}

// finish stores the completion off the loop. The summary is requested only
// on the first attempt; retries reuse it.
func (c *Controller) finish() {
	next := c.pending
	var answers []domain.QuestionAnswer
	var score float64
	if next == nil {
		answers = c.machine.Answers()
		var err error
		if score, err = FinalScore(answers); err != nil {
			c.lastErr = err
			return
		}
	}
	c.finishing = true
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.IOTimeout)
		defer cancel()

		done := next
		if done == nil {
			summary := c.cfg.Assessor.GenerateSummary(ctx, c.cfg.Name, answers)
			done = &completion{
				score:   score,
				summary: summary,
				msg:     NewMessage(domain.MessageSystem, CompletionText(score, summary), c.cfg.Now()),
			}
		}
		err := c.cfg.Recorder.RecordCompletion(ctx, c.cfg.CandidateID, done.score, done.summary, done.msg)
		_ = c.post(func() { c.applyFinish(done, err) })
	}()
}

func (c *Controller) applyFinish(done *completion, err error) {
	c.finishing = false
	if err != nil && !errors.Is(err, ErrInterviewCompleted) {
		c.pending = done
		c.backoff = min(max(c.backoff*2, 1), maxCompletionBackoff)
		c.retryIn = c.backoff
		c.lastErr = err
		c.log.Error().Err(err).Int("retry_in_ticks", c.retryIn).Msg("completion not stored, will retry")
		completionFailures.Inc()
		out := c.lastOut
		c.lastOut = Outcome{}
		respond(c.waiter, reply{out: out})
		c.waiter = nil
		return
	}
	c.pending = nil
	c.unfinished = false
	c.lastErr = nil
	c.finalScore = done.score
	c.summary = done.summary
	c.machine.Complete()
	interviewsCompleted.Inc()
	c.log.Info().Float64("final_score", done.score).Msg("interview completed")

	out := c.lastOut
	out.Completed = true
	out.FinalScore = done.score
	out.Summary = done.summary
	respond(c.waiter, reply{out: out})
	c.waiter = nil
	c.terminated = true
}

func respond(ch chan<- reply, r reply) {
	if ch != nil {
		ch <- r
	}
}
