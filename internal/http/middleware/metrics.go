// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file instruments HTTP traffic with Prometheus. Labels are limited to
// method, registered route, and status code so cardinality stays bounded
// regardless of what raw URLs clients send.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is omitted from the latency histogram to keep series counts low.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight)
}

// Metrics returns a Gin middleware recording request count, latency, and
// in-flight concurrency. The "path" label is the registered route
// (c.FullPath()); unmatched requests fall back to the raw URL path, which for
// a 404 is acceptable cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
