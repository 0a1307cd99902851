// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a lightweight, in-memory, token-bucket rate limiter
// with per-client buckets and opportunistic garbage collection. It is
// process-local, which is sufficient for the dashboard's single-instance
// deployment; edge-level abuse control, not an authorization mechanism.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// visitor holds a single token bucket and the last time it was seen, so that
// idle buckets can be evicted to bound memory.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements a per-client-IP token-bucket rate limiter. Buckets
// are created on demand; idle buckets are evicted after a TTL during lookups.
// Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size. Burst values <= 0 are coerced to 1.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns (and refreshes) the bucket for key, creating it if
// absent. Every 256 lookups it sweeps idle buckets.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	rl.cleanupN++
	if rl.cleanupN%256 == 0 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) > rl.ttl {
				delete(rl.visitors, k)
			}
		}
	}
	return v.limiter
}

// Handler returns the Gin middleware enforcing the limit. Rejected requests
// receive a 429 with the standard error envelope shape.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getVisitor("ip:" + c.ClientIP()).Allow() {
			rid, _ := c.Get(requestIDKey)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"request_id": asString(rid),
				"code":       "too_many_requests",
				"message":    "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
