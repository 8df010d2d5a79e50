// Package interview holds the candidate session state machine: résumé
// intake, the timed question loop with auto-submit, score aggregation, and
// the per-candidate controller that drives it from timer ticks and user
// actions.
package interview

import "github.com/tbourn/go-interview-backend/internal/domain"

// Session errors. Each wraps a domain kind so the transport layer can map it.
var (
	ErrInterviewCompleted = domain.NewError(domain.ErrConflict, "interview_completed", "interview already completed")
	ErrNotInterviewing    = domain.NewError(domain.ErrConflict, "interview_not_active", "interview is not in the question stage")
	ErrSubmissionPending  = domain.NewError(domain.ErrConflict, "submission_pending", "a submission is already in progress")
	ErrInputClosed        = domain.NewError(domain.ErrConflict, "input_closed", "time is up for this question")
	ErrSessionClosed      = domain.NewError(domain.ErrConflict, "session_closed", "session is no longer active")
	ErrEmptyAnswer        = domain.NewError(domain.ErrValidation, "validation_failed", "answer is empty")
	ErrIncompleteContact  = domain.NewError(domain.ErrValidation, "validation_failed", "all missing contact fields must be provided together")
	ErrNoAnswers          = domain.NewError(domain.ErrValidation, "validation_failed", "cannot score an interview without answers")
	ErrNoQuestions        = domain.NewError(domain.ErrValidation, "validation_failed", "question list is empty")
	ErrTooManyAnswers     = domain.NewError(domain.ErrConflict, "conflict", "recorded answers exceed the question list")
)
