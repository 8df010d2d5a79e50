// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, identity, logging/redaction, panic recovery,
// compression, metrics, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-interview-backend/docs"
	"github.com/tbourn/go-interview-backend/internal/config"
	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/http/handlers"
	"github.com/tbourn/go-interview-backend/internal/http/middleware"
	"github.com/tbourn/go-interview-backend/internal/lease"
	"github.com/tbourn/go-interview-backend/internal/repo"
	"github.com/tbourn/go-interview-backend/internal/services"
)

// providerCallCost is the rate-limit token cost of a request that may call
// the question provider.
const providerCallCost = 3

// roomRepoShim adapts the repository free functions to the services.RoomRepo
// interface expected by the RoomService. This keeps services decoupled from
// the concrete repo package while reusing existing functions.
type roomRepoShim struct{}

// CreateRoom proxies repo.CreateRoom.
func (roomRepoShim) CreateRoom(ctx context.Context, db *gorm.DB, r *domain.Room) error {
	return repo.CreateRoom(ctx, db, r)
}

// ListRoomsByOwner proxies repo.ListRoomsByOwner.
func (roomRepoShim) ListRoomsByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Room, error) {
	return repo.ListRoomsByOwner(ctx, db, ownerID)
}

// GetRoomByCode proxies repo.GetRoomByCode.
func (roomRepoShim) GetRoomByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Room, error) {
	return repo.GetRoomByCode(ctx, db, code)
}

// AddRoomMember proxies repo.AddRoomMember.
func (roomRepoShim) AddRoomMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	return repo.AddRoomMember(ctx, db, roomID, userID)
}

// SetRoomActive proxies repo.SetRoomActive.
func (roomRepoShim) SetRoomActive(ctx context.Context, db *gorm.DB, roomID string, active bool) error {
	return repo.SetRoomActive(ctx, db, roomID, active)
}

// Services bundles the application services the routes are bound to.
type Services struct {
	Rooms      *services.RoomService
	Candidates *services.CandidateService
	Sessions   *services.SessionService
}

// NewServices builds the services over db. A nil locker keeps session leases
// in process memory.
func NewServices(db *gorm.DB, assistant services.Assistant, locker lease.Locker, cfg config.Config, log zerolog.Logger) Services {
	rooms := services.NewRoomService(db, roomRepoShim{})
	candidates := services.NewCandidateService(db, rooms)
	sessions := services.NewSessionService(db, candidates, assistant, locker, cfg.Session.InstanceID, log)
	if cfg.Session.LeaseTTL > 0 {
		sessions.LeaseTTL = cfg.Session.LeaseTTL
	}
	if cfg.Session.IdleTimeout > 0 {
		sessions.IdleTimeout = cfg.Session.IdleTimeout
	}
	return Services{
		Rooms:      rooms,
		Candidates: candidates,
		Sessions:   sessions,
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), identity,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: structured logs, with PII scrubbing unless disabled
//  4. Recovery: capture panics after logger
//  5. Body size limiter and gzip
//  6. Authenticate: resolve the caller identity
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging; candidate contact details are redacted by default
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		Redact:      cfg.LogRedact,
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (résumé files travel base64 encoded) and compression
	r.Use(limitBody(8 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 6) Caller identity (bearer token or development headers)
	r.Use(middleware.Authenticate(middleware.AuthOptions{Secret: cfg.JWTSecret}))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, req middleware.IdempotentRequest) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, repo.IdempotencyScope{
				UserID:      req.UserID,
				CandidateID: req.CandidateID,
				Route:       req.Route,
				Key:         req.Key,
			}, req.Now)
			return err == nil && rec != nil, err
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	// Routes that call the question provider draw more tokens.
	base := strings.TrimRight(cfg.APIBasePath, "/")
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP(),
		middleware.WithSkipPaths("/health", "/metrics"),
		middleware.WithCost(middleware.RouteCosts(map[string]int{
			http.MethodPost + " " + base + "/rooms/:code/resume":            providerCallCost,
			http.MethodPost + " " + base + "/candidates/:id/session":        providerCallCost,
			http.MethodPost + " " + base + "/candidates/:id/session/submit": providerCallCost,
		})),
	)
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderUserEmail, middleware.HeaderUserName, middleware.HeaderUserRole,
		middleware.HeaderIdempotencyKey, "If-None-Match",
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		PrivatePrefixes: []string{
			base + "/candidates",
			base + "/rooms",
		},
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Rooms, svc.Candidates, svc.Sessions)
	if cfg.Session.MaxAnswerRunes > 0 {
		h.MaxAnswerRunes = cfg.Session.MaxAnswerRunes
	}
	if cfg.IdempotencyTTL > 0 {
		h.IdempotencyTTL = cfg.IdempotencyTTL
	}

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Rooms
		api.POST("/rooms", h.CreateRoom)
		api.GET("/rooms", h.ListRooms)
		api.GET("/rooms/:code", h.GetRoom)
		api.POST("/rooms/:code/join", h.JoinRoom)
		api.POST("/rooms/:code/deactivate", h.DeactivateRoom)
		api.GET("/rooms/:code/candidates", h.ListRoomCandidates)
		api.POST("/rooms/:code/resume", h.PostResume)

		// Candidates
		api.GET("/candidates/:id", h.GetCandidate)
		api.PATCH("/candidates/:id", h.PatchCandidate)
		api.DELETE("/candidates/:id", h.DeleteCandidate)
		api.POST("/candidates/:id/chat", h.PostChatMessage)
		api.POST("/candidates/:id/answers", h.PostAnswer)
		api.POST("/candidates/:id/contact", h.PostContact)

		// Live session
		api.POST("/candidates/:id/session", h.OpenSession)
		api.GET("/candidates/:id/session", h.GetSession)
		api.PUT("/candidates/:id/session/draft", h.PutDraft)
		api.POST("/candidates/:id/session/submit", h.SubmitAnswer)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
