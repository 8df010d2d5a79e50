// Idempotency-Key handling for answer submission and other candidate POSTs.
//
// The validator checks the header, stashes the key and asks a lookup
// whether the same (user, candidate, route, key) already completed. Replays
// are flagged so the rate limiter lets them through; the handler serves the
// stored response.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's key for an unsafe request.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotentRequest is what a lookup needs to find a stored response.
type IdempotentRequest struct {
	UserID      string
	CandidateID string // :id route parameter
	Route       string // registered route template
	Key         string
	Now         time.Time
}

// IdempotencyLookup reports whether req already has a stored response.
// Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, req IdempotentRequest) (bool, error)

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts key characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether the lookup found a stored response.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyValidator rejects malformed keys with 400 bad_idempotency_key.
// Safe methods and requests without a key pass untouched. The lookup runs
// only for authenticated callers on routes with a candidate id.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		req := IdempotentRequest{
			UserID:      c.GetString(ctxKeyUserID),
			CandidateID: c.Param("id"),
			Route:       c.FullPath(),
			Key:         key,
			Now:         time.Now().UTC(),
		}
		if lookup != nil && req.UserID != "" && req.CandidateID != "" {
			if hit, err := lookup(c.Request.Context(), req); err == nil && hit {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
