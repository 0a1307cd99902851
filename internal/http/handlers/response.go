// Package handlers provides HTTP handler implementations for the dashboard API.
//
// This file defines the standard response utilities used across all endpoints.
// Every failure path returns the same ErrorResponse envelope with a stable
// machine-readable `code`, and 5xx responses are logged with request context.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "incident not found"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opspulse/incident-insights/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
// RequestID echoes the X-Request-ID header so client-side errors can be
// correlated with server logs; Code is one of the errors.go constants.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"incident not found"`
}

// fail aborts the request with a structured error envelope. Server errors
// (>= 500) are additionally logged with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail(), for router-level fallbacks
// (NoRoute/NoMethod) that live outside this package.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response with the given status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
