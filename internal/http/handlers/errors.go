// Error codes and the mapping from classified service errors to HTTP
// responses. Generic codes mirror HTTP semantics; domain codes such as
// attempt_completed or session_locked come from services unchanged so
// clients can branch on them.

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/http/middleware"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeValidation   = "validation_failed"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeSubmissionFailed = "submission_failed"
	ErrCodeProviderFailed   = "provider_failed"
	ErrCodeTimeout          = "timeout"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// statusOf maps an error kind to its HTTP status.
func statusOf(kind error) int {
	switch kind {
	case domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrPersistence:
		return http.StatusServiceUnavailable
	case domain.ErrProvider:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// codeOf is the generic code of an error kind.
func codeOf(kind error) string {
	switch kind {
	case domain.ErrValidation:
		return ErrCodeValidation
	case domain.ErrNotFound:
		return ErrCodeNotFound
	case domain.ErrForbidden:
		return ErrCodeForbidden
	case domain.ErrPersistence:
		return ErrCodeSubmissionFailed
	case domain.ErrProvider:
		return ErrCodeProviderFailed
	}
	return ErrCodeConflict
}

// failErr writes the error envelope for a service error. Classified errors
// keep their code and message; anything else is an internal error.
func failErr(c *gin.Context, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		code := de.Code
		if code == "" {
			code = codeOf(de.Kind)
		}
		fail(c, statusOf(de.Kind), code, de.Msg)
		return
	}
	if kind := domain.KindOf(err); kind != nil {
		fail(c, statusOf(kind), codeOf(kind), err.Error())
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		fail(c, http.StatusGatewayTimeout, ErrCodeTimeout, "request timed out")
		return
	}
	middleware.LoggerFrom(c).Error().Err(err).Msg("unclassified error")
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
}
