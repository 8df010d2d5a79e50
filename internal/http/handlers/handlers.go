// Package handlers provides HTTP handler implementations for the public API.
//
// This file declares the service contracts the handlers depend on, the
// Handlers wiring type, and helpers shared by the room, candidate and
// session endpoints (identity, pagination, input sanitizing).
package handlers

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/http/middleware"
	"github.com/tbourn/go-interview-backend/internal/interview"
	"github.com/tbourn/go-interview-backend/internal/services"
	"github.com/tbourn/go-interview-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// RoomService defines room lifecycle operations consumed by HTTP handlers.
type RoomService interface {
	Create(ctx context.Context, ownerID, ownerName, title string) (*domain.Room, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	Deactivate(ctx context.Context, ownerID, code string) (*domain.Room, error)
}

// CandidateService defines candidate record operations.
type CandidateService interface {
	Get(ctx context.Context, id string) (*domain.Candidate, error)
	ListPage(ctx context.Context, code string, page, pageSize int) ([]domain.Candidate, int64, error)
	JoinInterview(ctx context.Context, code string, ident domain.Identity) (*services.JoinResult, error)
	Update(ctx context.Context, id string, patch services.CandidatePatch) (*domain.Candidate, error)
	AppendChatMessage(ctx context.Context, id string, msg domain.ChatMessage) (*domain.ChatMessage, error)
	AppendQuestionAnswer(ctx context.Context, id string, qa domain.QuestionAnswer) (*domain.QuestionAnswer, error)
	Delete(ctx context.Context, id string) error
}

// SessionService defines the live interview operations.
type SessionService interface {
	SubmitResume(ctx context.Context, ident domain.Identity, code string, in services.ResumeInput) (*domain.Candidate, interview.Intake, error)
	SubmitMissingFields(ctx context.Context, ident domain.Identity, id string, form interview.ContactForm) (*domain.Candidate, interview.Intake, error)
	Open(ctx context.Context, ident domain.Identity, id string) (services.View, error)
	Snapshot(ctx context.Context, ident domain.Identity, id string) (services.View, error)
	UpdateDraft(ctx context.Context, ident domain.Identity, id, text string) (services.View, error)
	Submit(ctx context.Context, ident domain.Identity, id, text string) (interview.Outcome, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for rooms, candidates and sessions.
type Handlers struct {
	rooms      RoomService
	candidates CandidateService
	sessions   SessionService

	// MaxAnswerRunes caps answers and drafts at the edge.
	MaxAnswerRunes int
	// IdempotencyTTL is how long a submitted response can be replayed.
	IdempotencyTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(rooms RoomService, candidates CandidateService, sessions SessionService) *Handlers {
	return &Handlers{rooms: rooms, candidates: candidates, sessions: sessions, MaxAnswerRunes: 4000, IdempotencyTTL: defaultIdemTTL}
}

// db returns the store behind the candidate service for ETags and
// idempotency records, or nil when the service is not the concrete one.
func (h *Handlers) db() *gorm.DB {
	if svc, ok := h.candidates.(*services.CandidateService); ok {
		return svc.DB
	}
	return nil
}

// identity returns the caller identity, or writes 401 and returns false.
func identity(c *gin.Context) (domain.Identity, bool) {
	id := middleware.IdentityFrom(c)
	if id.Anonymous() {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "user identity required")
		return domain.Identity{}, false
	}
	return id, true
}

// candidateFor loads candidate id for the caller. The candidate itself and
// the owner of its room may access it.
func (h *Handlers) candidateFor(c *gin.Context, id string) (*domain.Candidate, domain.Identity, bool) {
	ident, ok := identity(c)
	if !ok {
		return nil, ident, false
	}
	cand, err := h.candidates.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return nil, ident, false
	}
	if cand.UserID == ident.UserID || h.ownsRoom(c.Request.Context(), cand.RoomCode, ident.UserID) {
		return cand, ident, true
	}
	fail(c, http.StatusForbidden, ErrCodeForbidden, "not allowed to access this candidate")
	return nil, ident, false
}

// candidateForOwner is candidateFor restricted to the owner of the
// candidate's room.
func (h *Handlers) candidateForOwner(c *gin.Context, id, denied string) (*domain.Candidate, domain.Identity, bool) {
	cand, ident, ok := h.candidateFor(c, id)
	if !ok {
		return nil, ident, false
	}
	if !h.ownsRoom(c.Request.Context(), cand.RoomCode, ident.UserID) {
		fail(c, http.StatusForbidden, ErrCodeForbidden, denied)
		return nil, ident, false
	}
	return cand, ident, true
}

// ownsRoom reports whether userID created the room with code.
func (h *Handlers) ownsRoom(ctx context.Context, code, userID string) bool {
	room, err := h.rooms.GetByCode(ctx, code)
	return err == nil && room.OwnerID == userID
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// clampPagination reads page and page_size, defaulting to 1 and 20 with
// page_size capped at 100.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"), 20, 100)
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two,
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
