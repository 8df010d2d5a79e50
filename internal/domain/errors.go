package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the service layer wraps exactly one of
// these so callers can branch with errors.Is regardless of the concrete value.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrPersistence = errors.New("persistence failure")
	ErrProvider    = errors.New("provider failure")
)

// Error is a classified error carrying a stable machine-readable code for
// the transport layer and a human-readable message.
type Error struct {
	Kind  error
	Code  string
	Msg   string
	Field string
	Err   error
}

// NewError returns an Error of the given kind.
func NewError(kind error, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap returns a copy of e with cause attached. The copy still matches e
// through errors.Is.
func (e *Error) Wrap(cause error) error {
	return &Error{Kind: e.Kind, Code: e.Code, Msg: e.Msg, Field: e.Field, Err: cause}
}

// Is matches another *Error with the same kind, code and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code && t.Msg == e.Msg
}

// Invalid reports a validation failure on a single input field.
func Invalid(field, msg string) error {
	return &Error{Kind: ErrValidation, Code: "validation_failed", Msg: msg, Field: field}
}

// Persistence classifies a store write failure. The message is the one shown
// to the candidate: the draft is kept and the submit may be retried.
func Persistence(cause error) error {
	return &Error{Kind: ErrPersistence, Code: "submission_failed", Msg: "submission failed, please retry", Err: cause}
}

// Provider classifies an external text-generation failure.
func Provider(op string, cause error) error {
	return &Error{Kind: ErrProvider, Code: "provider_failed", Msg: op + " failed", Err: cause}
}

// KindOf returns the kind wrapped by err, or nil if err is unclassified.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrForbidden, ErrPersistence, ErrProvider} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
