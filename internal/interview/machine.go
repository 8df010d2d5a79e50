package interview

import (
	"errors"
	"strings"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// Mode tells how a submission was triggered.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

var errNotExpired = errors.New("countdown has not expired")

// Submission is an answer taken from the machine and awaiting scoring and
// persistence. Next is the question that will be announced once it is
// committed, or nil for the last question.
type Submission struct {
	Index     int
	Total     int
	Question  domain.Question
	Next      *domain.Question
	Answer    string
	TimeSpent int
	Mode      Mode
}

// Machine is the in-memory cursor of the question loop. It is not safe for
// concurrent use; the Controller owns it from a single goroutine.
//
// Persisted answers are the source of truth: a Machine is always rebuilt
// from the stored answers, and its index equals the number of answers.
type Machine struct {
	questions []domain.Question
	answers   []domain.QuestionAnswer
	index     int
	draft     string
	remaining int
	pending   bool
	expired   bool
	completed bool
}

// NewMachine builds a machine positioned at the first unanswered question.
// A fresh question starts its full countdown.
func NewMachine(questions []domain.Question, answered []domain.QuestionAnswer) (*Machine, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if len(answered) > len(questions) {
		return nil, ErrTooManyAnswers
	}
	m := &Machine{
		questions: append([]domain.Question(nil), questions...),
		answers:   append([]domain.QuestionAnswer(nil), answered...),
		index:     len(answered),
	}
	m.enter()
	return m, nil
}

func (m *Machine) enter() {
	m.draft = ""
	m.expired = false
	m.remaining = 0
	if q, ok := m.Current(); ok {
		m.remaining = q.TimeLimit
	}
}

// Index is the zero-based position of the current question.
func (m *Machine) Index() int { return m.index }

// Total is the number of questions.
func (m *Machine) Total() int { return len(m.questions) }

// Current returns the question being answered.
func (m *Machine) Current() (domain.Question, bool) {
	if m.index >= len(m.questions) {
		return domain.Question{}, false
	}
	return m.questions[m.index], true
}

func (m *Machine) Remaining() int { return m.remaining }
func (m *Machine) Draft() string  { return m.draft }
func (m *Machine) Pending() bool  { return m.pending }
func (m *Machine) Expired() bool  { return m.expired }

// Done reports that every question has an answer.
func (m *Machine) Done() bool { return m.index >= len(m.questions) }

// Completed reports that the interview was finalized.
func (m *Machine) Completed() bool { return m.completed }

// InputEnabled reports whether the candidate may edit or submit.
func (m *Machine) InputEnabled() bool {
	return !m.completed && !m.Done() && !m.pending && !m.expired
}

// Answers returns a copy of the recorded answers.
func (m *Machine) Answers() []domain.QuestionAnswer {
	return append([]domain.QuestionAnswer(nil), m.answers...)
}

// SetDraft replaces the answer draft of the current question.
func (m *Machine) SetDraft(text string) error {
	if err := m.acceptingInput(); err != nil {
		return err
	}
	m.draft = text
	return nil
}

func (m *Machine) acceptingInput() error {
	switch {
	case m.completed || m.Done():
		return ErrInterviewCompleted
	case m.pending:
		return ErrSubmissionPending
	case m.expired:
		return ErrInputClosed
	}
	return nil
}

// Tick advances the countdown by one second and reports whether an
// auto-submit is due. It fires exactly once when the countdown reaches
// zero; while that auto-submit has not been committed (for example after a
// failed write) every further tick reports it due again, so the forced
// answer is retried rather than lost.
func (m *Machine) Tick() bool {
	if m.completed || m.Done() || m.pending {
		return false
	}
	if m.expired {
		return true
	}
	if m.remaining > 0 {
		m.remaining--
	}
	if m.remaining == 0 {
		m.expired = true
		return true
	}
	return false
}

// Begin takes the current answer for submission and blocks further input
// until Commit or Abort. Manual submissions need a non-empty draft and an
// open countdown; auto submissions need an expired countdown and fall back
// to NoAnswerPlaceholder.
func (m *Machine) Begin(mode Mode) (Submission, error) {
	if m.completed || m.Done() {
		return Submission{}, ErrInterviewCompleted
	}
	if m.pending {
		return Submission{}, ErrSubmissionPending
	}
	q := m.questions[m.index]
	answer := strings.TrimSpace(m.draft)
	switch mode {
	case ModeManual:
		if m.expired {
			return Submission{}, ErrInputClosed
		}
		if answer == "" {
			return Submission{}, ErrEmptyAnswer
		}
	case ModeAuto:
		if !m.expired {
			return Submission{}, errNotExpired
		}
		if answer == "" {
			answer = NoAnswerPlaceholder
		}
	}
	spent := q.TimeLimit - m.remaining
	if spent < 0 {
		spent = 0
	}
	sub := Submission{
		Index:     m.index,
		Total:     len(m.questions),
		Question:  q,
		Answer:    answer,
		TimeSpent: spent,
		Mode:      mode,
	}
	if m.index+1 < len(m.questions) {
		next := m.questions[m.index+1]
		sub.Next = &next
	}
	m.pending = true
	return sub, nil
}

// Commit records the scored answer of the pending submission and moves to
// the next question, clearing the draft.
func (m *Machine) Commit(sub Submission, e domain.Evaluation) domain.QuestionAnswer {
	qa := AnswerOf(sub, e)
	m.answers = append(m.answers, qa)
	m.pending = false
	m.index++
	m.enter()
	return qa
}

// Abort releases a pending submission after a failed write. The draft and
// the countdown state are kept.
func (m *Machine) Abort() { m.pending = false }

// Complete marks the interview finalized.
func (m *Machine) Complete() { m.completed = true }

// AnswerOf builds the stored answer for a scored submission.
func AnswerOf(sub Submission, e domain.Evaluation) domain.QuestionAnswer {
	return domain.QuestionAnswer{
		QuestionID: sub.Question.ID,
		Question:   sub.Question.Text,
		Answer:     sub.Answer,
		Difficulty: sub.Question.Difficulty,
		TimeLimit:  sub.Question.TimeLimit,
		TimeSpent:  sub.TimeSpent,
		Score:      ClampScore(e.Score),
	}
}
