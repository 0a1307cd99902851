// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, a hardening middleware for a JSON API
// served behind a reverse proxy. HSTS is opt-in and only emitted when the
// request actually arrived over HTTPS.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures the headers emitted by SecurityHeaders.
//
// EnableHSTS must only be set when traffic is HTTPS end-to-end, including the
// proxy-to-app hop. NoStore adds Cache-Control: no-store for responses that
// must not be cached. EnablePolicy adds browser feature policies; they are
// harmless for non-browser clients.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	NoStore      bool
	EnablePolicy bool
}

// SecurityHeaders returns a Gin middleware that adds a conservative set of
// security headers to every response:
//
//   - always: X-Content-Type-Options, X-Frame-Options, Referrer-Policy
//   - EnablePolicy: Permissions-Policy, X-Permitted-Cross-Domain-Policies
//   - NoStore: Cache-Control: no-store plus legacy Pragma/Expires
//   - EnableHSTS (HTTPS requests only): Strict-Transport-Security
//
// When an X-Request-ID response header is present it is also exposed via
// Access-Control-Expose-Headers so browser clients can correlate logs.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security",
				"max-age="+strconv.Itoa(maxAge)+"; includeSubDomains; preload")
		}

		if rid := h.Get("X-Request-ID"); rid != "" {
			const hdr = "Access-Control-Expose-Headers"
			cur := h.Get(hdr)
			switch {
			case cur == "":
				h.Set(hdr, "X-Request-ID")
			case !strings.Contains(cur, "X-Request-ID"):
				h.Set(hdr, cur+", X-Request-ID")
			}
		}

		c.Next()
	}
}

// isHTTPS reports whether the request used HTTPS directly or via a reverse
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
