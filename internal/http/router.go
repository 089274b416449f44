// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, rate limiting, and
// dashboard bearer auth.
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
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/careassist/handoff-backend/internal/config"
	"github.com/careassist/handoff-backend/internal/domain"
	"github.com/careassist/handoff-backend/internal/http/handlers"
	"github.com/careassist/handoff-backend/internal/http/middleware"
	"github.com/careassist/handoff-backend/internal/repo"
	"github.com/careassist/handoff-backend/internal/services"
)

// presenceRepoShim adapts the repository free functions to the
// services.PresenceRepo interface expected by the PresenceService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type presenceRepoShim struct{}

// GetVisitor proxies repo.GetVisitor.
func (presenceRepoShim) GetVisitor(ctx context.Context, db *gorm.DB, id string) (*domain.Visitor, error) {
	return repo.GetVisitor(ctx, db, id)
}

// LatestConversation proxies repo.LatestConversation.
func (presenceRepoShim) LatestConversation(ctx context.Context, db *gorm.DB, propertyID, visitorID string) (*domain.Conversation, error) {
	return repo.LatestConversation(ctx, db, propertyID, visitorID)
}

// TouchActive proxies repo.TouchActive.
func (presenceRepoShim) TouchActive(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return repo.TouchActive(ctx, db, id, now)
}

// CloseConversation proxies repo.CloseConversation.
func (presenceRepoShim) CloseConversation(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return repo.CloseConversation(ctx, db, id, now)
}

// queueRepoShim adapts the repository free functions to services.QueueRepo.
type queueRepoShim struct{}

// GetVisitor proxies repo.GetVisitor.
func (queueRepoShim) GetVisitor(ctx context.Context, db *gorm.DB, id string) (*domain.Visitor, error) {
	return repo.GetVisitor(ctx, db, id)
}

// GetConversation proxies repo.GetConversation.
func (queueRepoShim) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}

// UpdateQueueState proxies repo.UpdateQueueState.
func (queueRepoShim) UpdateQueueState(ctx context.Context, db *gorm.DB, id string, st domain.QueueState) error {
	return repo.UpdateQueueState(ctx, db, id, st)
}

// sweepRepoShim adapts the repository free functions to services.SweepRepo.
type sweepRepoShim struct{}

// IsPropertyOwner proxies repo.IsPropertyOwner.
func (sweepRepoShim) IsPropertyOwner(ctx context.Context, db *gorm.DB, propertyID, userID string) (bool, error) {
	return repo.IsPropertyOwner(ctx, db, propertyID, userID)
}

// IsPropertyAgent proxies repo.IsPropertyAgent.
func (sweepRepoShim) IsPropertyAgent(ctx context.Context, db *gorm.DB, propertyID, userID string) (bool, error) {
	return repo.IsPropertyAgent(ctx, db, propertyID, userID)
}

// ListOwnedPropertyIDs proxies repo.ListOwnedPropertyIDs.
func (sweepRepoShim) ListOwnedPropertyIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	return repo.ListOwnedPropertyIDs(ctx, db, userID)
}

// ListAgentPropertyIDs proxies repo.ListAgentPropertyIDs.
func (sweepRepoShim) ListAgentPropertyIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	return repo.ListAgentPropertyIDs(ctx, db, userID)
}

// CloseStale proxies repo.CloseStale.
func (sweepRepoShim) CloseStale(ctx context.Context, db *gorm.DB, propertyID string, threshold, now time.Time) (int64, error) {
	return repo.CloseStale(ctx, db, propertyID, threshold, now)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, compression, CORS and security headers, health and metrics
// endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip compression
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"Authorization",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compress responses (metrics already mounted uncompressed)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, visitorID, conversationID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, visitorID, conversationID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderVisitorID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
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
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderVisitorID, middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
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

	// Dependency injection: services ← repo/db
	presenceSvc := &services.PresenceService{DB: db, Repo: presenceRepoShim{}}

	queueSvc := services.NewQueueService(db, queueRepoShim{})
	queueSvc.DefaultWindowMS = cfg.AIQueueWindowMS
	queueSvc.PreviewMaxRunes = cfg.PreviewMaxRunes

	sweepSvc := services.NewSweepService(db, sweepRepoShim{})
	sweepSvc.DefaultStaleSeconds = cfg.StaleSecondsDefault

	convSvc := services.NewConversationService(db)

	h := handlers.New(presenceSvc, queueSvc, sweepSvc, convSvc)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Widget endpoints (authorized in-service via visitor session tokens)
		api.POST("/presence", h.UpdatePresence)
		api.POST("/ai-queue", h.QueueAction)
		api.POST("/conversations", h.OpenConversation)
		api.POST("/conversations/:id/messages", h.PostMessage)
		api.GET("/conversations/:id/messages", h.ListMessages)

		// Dashboard endpoints (bearer token required)
		dash := api.Group("")
		dash.Use(middleware.RequireAuth(cfg.JWTSecret))
		{
			dash.POST("/conversations/sweep", h.SweepConversations)
			dash.GET("/conversations/:id/ai-queue", h.QueueState)
			dash.GET("/properties/:id/conversations", h.ListConversations)
		}
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
