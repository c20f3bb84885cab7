// Package httpapi wires the HTTP transport (Gin) to the scheduling services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Route groups:
//   - public (API_BASE_PATH): availability, start listing, holds, checkout;
//     rate limited per client IP
//   - admin (API_BASE_PATH/admin, API_BASE_PATH/internal): Bearer ADMIN_TOKEN,
//     never cached
//   - infra: /health, /metrics, /swagger, /webhooks/stripe
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-coaching-backend/docs"
	"github.com/tbourn/go-coaching-backend/internal/config"
	"github.com/tbourn/go-coaching-backend/internal/http/handlers"
	"github.com/tbourn/go-coaching-backend/internal/http/middleware"
	"github.com/tbourn/go-coaching-backend/internal/payments"
	"github.com/tbourn/go-coaching-backend/internal/repo"
	"github.com/tbourn/go-coaching-backend/internal/services"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// Deps are the runtime dependencies of the router.
type Deps struct {
	Engine *services.Engine
	// Redis, when set, backs the public rate limiter so limits hold across
	// instances. Nil selects the in-process token bucket.
	Redis redis.Scripter
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter and request deadline
//  6. Metrics
//  7. CORS and security headers
//
// Group-level: rate limiting on the public group, AdminToken and NoStore on
// admin groups, IdempotencyValidator on finalize.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	eng := deps.Engine

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskParams: []string{"payment_ref"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit and per-request deadline
	r.Use(limitBody(maxBodyBytes))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
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

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: handlers ← services ← db
	webhook := &payments.StripeWebhook{
		Secret:    cfg.Stripe.WebhookSecret,
		Tolerance: cfg.Stripe.WebhookTolerance,
		Finalizer: eng.Bookings,
	}
	h := handlers.New(handlers.Services{
		Availability: eng.Availability,
		Starts:       eng.Finder,
		Holds:        eng.Holds,
		Bookings:     eng.Bookings,
		Slots:        eng.Slots,
		Generator:    eng.Generator,
		Webhook:      webhook,
	})

	// Provider callbacks authenticate by signature.
	r.POST("/webhooks/stripe", h.StripeWebhook)

	base := groupWithPrefix(r, cfg.APIBasePath)

	// Public API
	api := base.Group("")
	api.Use(publicRateLimiter(deps.Redis, cfg))
	{
		api.GET("/availability", h.ListAvailability)
		api.GET("/availability/:date", h.GetAvailability)
		api.GET("/slots/starts", h.ListStarts)
		api.POST("/holds", h.CreateHold)
		api.POST("/holds/release", h.ReleaseHold)
		api.POST("/checkout", h.StartCheckout)
	}

	// Payment confirmation contract (trusted callers)
	internal := base.Group("/internal", middleware.AdminToken(cfg.AdminToken), middleware.NoStore())
	internal.POST("/bookings/finalize",
		middleware.IdempotencyValidator(
			middleware.IdempotencyOptions{Required: true},
			func(ctx context.Context, key string) (bool, error) {
				return repo.ProcessedEventExists(ctx, eng.DB, key)
			},
		),
		h.FinalizeBooking,
	)

	// Admin API
	admin := base.Group("/admin", middleware.AdminToken(cfg.AdminToken), middleware.NoStore())
	{
		admin.POST("/slots/recompute", h.RecomputeSlots)
		admin.GET("/slots/stats", h.SlotStats)
		admin.POST("/slots/block", h.BlockSlots)
		admin.POST("/slots/unblock", h.UnblockSlots)
		admin.DELETE("/slots", h.DeleteSlots)

		admin.GET("/rules", h.ListRules)
		admin.POST("/rules", h.CreateRule)
		admin.GET("/exceptions", h.ListExceptions)
		admin.POST("/exceptions", h.CreateException)
		admin.DELETE("/exceptions/:id", h.DeleteException)

		admin.GET("/bookings", h.ListBookings)
		admin.POST("/bookings/:id/reschedule", h.RescheduleBooking)
	}
}

// publicRateLimiter prefers the shared Redis window and falls back to the
// in-process token bucket. The Redis budget per window is the sustained rate
// over the window plus the burst.
func publicRateLimiter(rdb redis.Scripter, cfg config.Config) gin.HandlerFunc {
	if rdb != nil {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		limit := int(cfg.RateRPS*window.Seconds()) + cfg.RateBurst
		log.Info().Int("limit", limit).Dur("window", window).Msg("rate limiting via redis")
		return middleware.NewRedisRateLimiter(rdb, limit, window, "rl", middleware.KeyByRouteAndIP()).Handler()
	}
	return middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByRouteAndIP()).Handler()
}

// corsMiddleware allows any origin without credentials when no allowlist is
// configured, and echoes only allowlisted origins otherwise.
func corsMiddleware(cc config.CORSConfig) gin.HandlerFunc {
	cc2 := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cc.AllowedOrigins) == 0 {
		cc2.AllowAllOrigins = true
	} else {
		cc2.AllowOrigins = cc.AllowedOrigins
	}
	return cors.New(cc2)
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
