// In-memory token-bucket rate limiting, one bucket per caller.
//
// Requests that reach the question provider (résumé intake, answer
// submission) cost more tokens than plain reads, so a caller hammering the
// model runs dry long before one polling a session snapshot. Buckets are
// process-local; each replica enforces its own budget.
package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// maxRetryAfter caps the Retry-After hint in seconds.
const maxRetryAfter = 60

// keyFunc selects the bucket a request draws from.
type keyFunc func(*gin.Context) string

// costFunc returns how many tokens a request consumes.
type costFunc func(*gin.Context) int

var rateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by route.",
	},
	[]string{"path"},
)

func init() {
	prometheus.MustRegister(rateLimited)
}

// KeyByUserOrIP keys buckets by the authenticated user ("user:<id>") and
// falls back to the client address ("ip:<addr>").
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get(ctxKeyUserID); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// RouteCosts charges cost tokens for the listed "METHOD /registered/path"
// routes and one token for everything else.
func RouteCosts(costs map[string]int) costFunc {
	return func(c *gin.Context) int {
		if n, ok := costs[c.Request.Method+" "+c.FullPath()]; ok && n > 0 {
			return n
		}
		return 1
	}
}

// RateOption customizes a RateLimiter.
type RateOption func(*RateLimiter)

// WithCost sets the per-request token cost.
func WithCost(fn costFunc) RateOption {
	return func(rl *RateLimiter) {
		if fn != nil {
			rl.costFn = fn
		}
	}
}

// WithSkipPaths exempts exact request paths such as /health.
func WithSkipPaths(paths ...string) RateOption {
	return func(rl *RateLimiter) {
		for _, p := range paths {
			rl.skip[p] = struct{}{}
		}
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter. Idle buckets are evicted
// during lookups. Safe for concurrent use.
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	keyFn  keyFunc
	costFn costFunc
	skip   map[string]struct{}

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
	now      func() time.Time
}

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst (at least 1). Costs above burst are clamped to burst so an expensive
// request can still pass on a full bucket.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc, opts ...RateOption) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		costFn:   func(*gin.Context) int { return 1 },
		skip:     map[string]struct{}{},
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		now:      time.Now,
	}
	for _, o := range opts {
		o(rl)
	}
	return rl
}

// getVisitor returns the bucket for key. Every 5000 lookups idle buckets are
// swept first, so a stale bucket is dropped even when it is the one asked for.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= 5000 {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator flagged the request as a
// replay of a completed one.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit. Rejected requests get 429 with Retry-After set
// to the whole seconds until the bucket can pay for the request.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := rl.skip[c.Request.URL.Path]; ok || IsRateBypass(c) {
			c.Next()
			return
		}

		cost := rl.costFn(c)
		if cost > rl.burst {
			cost = rl.burst
		}
		lim := rl.getVisitor(rl.keyFn(c))
		now := rl.now()
		res := lim.ReserveN(now, cost)
		delay := res.DelayFrom(now)
		if res.OK() && delay == 0 {
			c.Next()
			return
		}
		res.CancelAt(now)

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		rateLimited.WithLabelValues(path).Inc()

		retry := maxRetryAfter
		if res.OK() && delay < maxRetryAfter*time.Second {
			retry = int(delay / time.Second)
			if delay%time.Second != 0 || retry == 0 {
				retry++
			}
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
