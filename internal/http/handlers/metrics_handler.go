// Global metrics endpoints.
//
//   - GET /summary          (window report: counts, breakdown, trend)
//   - GET /trends           (daily trend only)
//   - GET /escalations/top  (services ranked by escalations)
//   - GET /stats            (store snapshot for the admin page)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opspulse/incident-insights/internal/services"
)

// GetSummary returns the comprehensive report for a trailing window.
//
// @Summary     Incident summary
// @Description Window counts, escalation rate, per-service breakdown, and daily trend.
// @Tags        Metrics
// @Produce     json
// @Param       days  query  int  false  "Window size in days (default 7)"  example(7)
// @Success     200  {object}  services.Summary
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /summary [get]
func (h *Handlers) GetSummary(c *gin.Context) {
	days := daysQuery(c, services.DefaultWindowDays)
	sum, err := h.metrics.Summary(c.Request.Context(), days)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute summary")
		return
	}
	ok(c, http.StatusOK, sum)
}

// GetTrends returns the per-day trend for a trailing window, newest first.
// An optional ?service_id scopes the trend to one service.
//
// @Summary     Daily incident trend
// @Tags        Metrics
// @Produce     json
// @Param       days        query  string  false  "Window size in days (default 7)"
// @Param       service_id  query  string  false  "Scope to one service"
// @Success     200  {array}   services.TrendPoint
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /trends [get]
func (h *Handlers) GetTrends(c *gin.Context) {
	days := daysQuery(c, services.DefaultWindowDays)
	trend, err := h.metrics.DailyTrend(c.Request.Context(), days, c.Query("service_id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute trend")
		return
	}
	ok(c, http.StatusOK, gin.H{"period_days": days, "daily_trend": trend})
}

// GetTopEscalations returns the services with the most escalations in the
// window, ranked by escalated count then escalation rate.
//
// @Summary     Top escalated services
// @Tags        Metrics
// @Produce     json
// @Param       days   query  int  false  "Window size in days (default 7)"
// @Param       limit  query  int  false  "Maximum services returned (default 5)"
// @Success     200  {array}   services.ServiceMetrics
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /escalations/top [get]
func (h *Handlers) GetTopEscalations(c *gin.Context) {
	days := daysQuery(c, services.DefaultWindowDays)
	limit := intQuery(c, "limit", 5)
	if limit < 1 {
		limit = 5
	}
	top, err := h.metrics.TopEscalatedServices(c.Request.Context(), days, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not rank escalations")
		return
	}
	ok(c, http.StatusOK, gin.H{"period_days": days, "services": top})
}

// GetStats returns the global store snapshot.
//
// @Summary     Store statistics
// @Tags        Metrics
// @Produce     json
// @Success     200  {object}  services.Stats
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.metrics.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read store statistics")
		return
	}
	ok(c, http.StatusOK, stats)
}
