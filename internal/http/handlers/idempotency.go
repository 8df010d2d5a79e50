package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-interview-backend/internal/http/middleware"
	"github.com/tbourn/go-interview-backend/internal/repo"
)

const (
	replayedHeader  = "Idempotency-Replayed"
	defaultIdemTTL  = 24 * time.Hour
	jsonContentType = "application/json; charset=utf-8"
)

// idempotencyKey returns the validated key, or the trimmed header when the
// validator is not installed.
func idempotencyKey(c *gin.Context) string {
	if k, ok := middleware.GetIdempotencyKey(c); ok {
		return k
	}
	return strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
}

// idempotent is the replay scope of one request. Its zero value (no key or
// no store) replays nothing and stores nothing.
type idempotent struct {
	h     *Handlers
	scope repo.IdempotencyScope
}

func (h *Handlers) idempotent(c *gin.Context, userID, candidateID string) idempotent {
	key := idempotencyKey(c)
	if key == "" || h.db() == nil {
		return idempotent{}
	}
	return idempotent{h: h, scope: repo.IdempotencyScope{
		UserID:      userID,
		CandidateID: candidateID,
		Route:       c.FullPath(),
		Key:         key,
	}}
}

// replay writes the stored response and reports true when one exists.
func (i idempotent) replay(c *gin.Context) bool {
	if i.h == nil {
		return false
	}
	rec, err := repo.GetIdempotency(c.Request.Context(), i.h.db(), i.scope, time.Now().UTC())
	if err != nil {
		return false
	}
	// rate_exempt is false when the record appeared after the validator ran.
	middleware.LoggerFrom(c).Info().
		Str("idempotency_key", i.scope.Key).
		Bool("rate_exempt", middleware.IsReplay(c)).
		Msg("idempotent_replay")
	c.Header(replayedHeader, "true")
	c.Data(rec.Status, jsonContentType, rec.Body)
	return true
}

// respond writes body and, best effort, remembers it for replays.
func (i idempotent) respond(c *gin.Context, status int, body any) {
	if i.h == nil {
		ok(c, status, body)
		return
	}
	b, err := json.Marshal(body)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}
	ttl := i.h.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdemTTL
	}
	if _, err := repo.CreateIdempotency(c.Request.Context(), i.h.db(), i.scope, status, b, ttl); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("idempotency_key", i.scope.Key).Msg("idempotency_store_failed")
	}
	c.Data(status, jsonContentType, b)
}
