// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS, and
// rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/opspulse/incident-insights/internal/config"
	"github.com/opspulse/incident-insights/internal/http/handlers"
	"github.com/opspulse/incident-insights/internal/http/middleware"
)

// Deps carries the application dependencies the router injects into
// handlers. The services are constructed in cmd/server so the transport
// layer stays free of construction logic.
type Deps struct {
	DB        *gorm.DB
	Handlers  *handlers.Handlers
	Directory *config.Directory
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per client IP)
//  8. CORS, gzip, and security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB); the API only accepts small JSON
	// trigger payloads.
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Compress the larger read responses (summary, calendar).
	r.Use(gzip.Gzip(gzip.DefaultCompression))

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
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "services": deps.Directory.Len()})
	})

	h := deps.Handlers

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Global metrics
		api.GET("/summary", h.GetSummary)
		api.GET("/trends", h.GetTrends)
		api.GET("/escalations/top", h.GetTopEscalations)
		api.GET("/stats", h.GetStats)

		// Services
		api.GET("/services", h.ListServices)
		api.GET("/services/:id/summary", h.GetServiceSummary)
		api.GET("/services/:id/trends", h.GetServiceTrends)
		api.GET("/services/:id/calendar", h.GetServiceCalendar)

		// Incidents
		api.GET("/incidents", h.ListIncidents)
		api.GET("/incidents/:id", h.GetIncident)
		api.GET("/escalations", h.ListEscalations)

		// Admin
		api.POST("/admin/update", h.TriggerUpdate)
		api.GET("/admin/update/status", h.GetUpdateStatus)
		api.POST("/admin/cleanup", h.Cleanup)
	}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap cause downstream body
// reads to error.
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
