// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the request ID injector, structured access logging, and
// a panic-safe recovery handler. Compose them in that order so panics and
// errors are logged with the correlation ID:
//
//	r.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery())
//
// Handlers retrieve the request-scoped logger with LoggerFrom(c).
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID attaches (or propagates) a correlation identifier per request.
// An incoming X-Request-ID is reused; otherwise a new UUIDv4 is generated.
// The ID is echoed on the response header and stored in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes one structured access log per request: method, route path,
// remote IP, correlation ID, sizes, status, and latency. The log level
// follows the outcome (error for 5xx or collected Gin errors, warn for 4xx,
// info otherwise). It also stores a request-scoped zerolog.Logger in the Gin
// context under the "logger" key for downstream enrichment.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			// Route not matched / 404.
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()

		c.Set("logger", &l)

		c.Next()

		ev := l.With().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case c.Writer.Status() >= 500:
			ev.Error().Msg("request")
		case c.Writer.Status() >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery intercepts panics, logs the stack trace with the request ID, and
// returns a JSON 500 error body if nothing has been written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger attached by Logger().
// When none is present a plain fallback logger is returned, so callers never
// need a nil check.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString converts a context value to a string, empty when it is not one.
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes, appending an ellipsis. max <= 0 disables the
// cap. Byte-level truncation is fine for log output.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
