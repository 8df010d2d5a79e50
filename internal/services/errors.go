// Package services holds the application logic for interview rooms,
// candidate records and live interview sessions. This file centralizes the
// service-level error values so handlers can map them to HTTP results
// consistently.
//
// Every value carries a domain error kind, so callers may match either the
// specific value or its kind with errors.Is.
package services

import (
	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/interview"
)

// Room errors.
var (
	ErrRoomNotFound = domain.NewError(domain.ErrNotFound, "room_not_found", "room not found")

	ErrEmptyTitle = domain.NewError(domain.ErrValidation, "validation_failed", "title is required")

	ErrInvalidRoomCode = domain.NewError(domain.ErrValidation, "validation_failed", "room code is required")

	// ErrRoomClosed is returned when joining a deactivated room.
	ErrRoomClosed = domain.NewError(domain.ErrConflict, "room_closed", "room closed")

	// ErrNotRoomOwner is returned when someone other than the interviewer
	// manages a room.
	ErrNotRoomOwner = domain.NewError(domain.ErrForbidden, "forbidden", "only the room owner can do this")

	// ErrCodeSpace is returned when no unused room code could be drawn.
	ErrCodeSpace = domain.NewError(domain.ErrConflict, "conflict", "could not allocate a room code")
)

// Candidate and attempt errors.
var (
	ErrCandidateNotFound = domain.NewError(domain.ErrNotFound, "candidate_not_found", "candidate not found")

	ErrMissingIdentity = domain.NewError(domain.ErrValidation, "validation_failed", "user id is required")

	// ErrAttemptCompleted is returned when an identity that already finished
	// an interview in a room tries again.
	ErrAttemptCompleted = domain.NewError(domain.ErrConflict, "attempt_completed", "attempt already completed")

	// ErrAttemptExists is returned when creating a second attempt for the
	// same identity in a room.
	ErrAttemptExists = domain.NewError(domain.ErrConflict, "conflict", "an attempt already exists for this room")

	// ErrIdentityConflict is returned when the caller's account email is
	// already tied to another user's attempt in the room.
	ErrIdentityConflict = domain.NewError(domain.ErrConflict, "identity_conflict", "this email is already used by another account in this room")

	// ErrNotCandidate is returned when a caller acts on someone else's attempt.
	ErrNotCandidate = domain.NewError(domain.ErrForbidden, "forbidden", "this interview belongs to another user")

	// ErrCandidateCompleted is returned when modifying a completed record.
	ErrCandidateCompleted = interview.ErrInterviewCompleted

	ErrStatusRegression = domain.NewError(domain.ErrConflict, "conflict", "status cannot move backwards")

	ErrInvalidStatus = domain.NewError(domain.ErrValidation, "validation_failed", "unknown status")

	ErrAnswerLimit = domain.NewError(domain.ErrConflict, "conflict", "all questions are already answered")

	ErrDuplicateAnswer = domain.NewError(domain.ErrConflict, "conflict", "question already answered")

	// ErrAnswerOutOfOrder is returned when a session writes an answer for a
	// position that is no longer the next one.
	ErrAnswerOutOfOrder = domain.NewError(domain.ErrConflict, "conflict", "answer position is stale")

	ErrResumeRequired = domain.NewError(domain.ErrValidation, "validation_failed", "resume text or file is required")
)

// Session errors.
var (
	// ErrSessionLocked is returned when another process drives the session.
	ErrSessionLocked = domain.NewError(domain.ErrConflict, "session_locked", "interview is open elsewhere")

	// ErrContactIncomplete is returned when the interview is opened before
	// the missing contact fields are supplied.
	ErrContactIncomplete = domain.NewError(domain.ErrConflict, "contact_incomplete", "contact details are incomplete")

	// ErrNoSession is returned by live-only actions when no session runs.
	ErrNoSession = domain.NewError(domain.ErrConflict, "session_not_open", "interview session is not open")
)
