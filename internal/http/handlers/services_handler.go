// Per-service endpoints.
//
//   - GET /services                 (configured service directory)
//   - GET /services/:id/summary     (window metrics for one service)
//   - GET /services/:id/trends      (daily trend for one service)
//   - GET /services/:id/calendar    (month view with escalated incidents)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opspulse/incident-insights/internal/services"
)

// ServiceEntry is one row of the configured service directory.
type ServiceEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListServices returns the configured service directory.
//
// @Summary     List monitored services
// @Tags        Services
// @Produce     json
// @Success     200  {array}  handlers.ServiceEntry
// @Router      /services [get]
func (h *Handlers) ListServices(c *gin.Context) {
	out := make([]ServiceEntry, 0, h.dir.Len())
	for _, id := range h.dir.IDs() {
		name, _ := h.dir.Name(id)
		out = append(out, ServiceEntry{ID: id, Name: name})
	}
	ok(c, http.StatusOK, gin.H{"services": out, "count": len(out)})
}

// GetServiceSummary returns window metrics for a single configured service.
// A service with no incidents in the window yields zero-valued metrics.
//
// @Summary     Service summary
// @Tags        Services
// @Produce     json
// @Param       id    path   string  true   "Service ID"  example(PABC123)
// @Param       days  query  int     false  "Window size in days (default 7)"
// @Success     200  {object}  services.ServiceMetrics
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /services/{id}/summary [get]
func (h *Handlers) GetServiceSummary(c *gin.Context) {
	id := c.Param("id")
	if !h.dir.Has(id) {
		fail(c, http.StatusNotFound, ErrCodeUnknownService, "service not configured: "+id)
		return
	}
	days := daysQuery(c, services.DefaultWindowDays)
	sum, err := h.metrics.ServiceSummary(c.Request.Context(), id, days)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute service summary")
		return
	}
	if name, okName := h.dir.Name(id); okName {
		sum.ServiceName = name
	}
	ok(c, http.StatusOK, sum)
}

// GetServiceTrends returns the daily trend for one configured service.
//
// @Summary     Service daily trend
// @Tags        Services
// @Produce     json
// @Param       id    path   string  true   "Service ID"
// @Param       days  query  int     false  "Window size in days (default 7)"
// @Success     200  {array}   services.TrendPoint
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /services/{id}/trends [get]
func (h *Handlers) GetServiceTrends(c *gin.Context) {
	id := c.Param("id")
	if !h.dir.Has(id) {
		fail(c, http.StatusNotFound, ErrCodeUnknownService, "service not configured: "+id)
		return
	}
	days := daysQuery(c, services.DefaultWindowDays)
	trend, err := h.metrics.DailyTrend(c.Request.Context(), days, id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute service trend")
		return
	}
	ok(c, http.StatusOK, gin.H{"service_id": id, "period_days": days, "daily_trend": trend})
}

// GetServiceCalendar returns one service's incidents for a calendar month,
// grouped by day. Year and month default to the current month in the
// configured offset.
//
// @Summary     Service calendar month
// @Tags        Services
// @Produce     json
// @Param       id     path   string  true   "Service ID"
// @Param       year   query  int     false  "Calendar year (default: current)"
// @Param       month  query  int     false  "Calendar month 1-12 (default: current)"
// @Success     200  {object}  map[string]services.CalendarDay
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /services/{id}/calendar [get]
func (h *Handlers) GetServiceCalendar(c *gin.Context) {
	id := c.Param("id")
	if !h.dir.Has(id) {
		fail(c, http.StatusNotFound, ErrCodeUnknownService, "service not configured: "+id)
		return
	}

	now := time.Now().In(h.loc)
	year := intQuery(c, "year", now.Year())
	month := intQuery(c, "month", int(now.Month()))
	if month < 1 || month > 12 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "month must be between 1 and 12")
		return
	}
	if year < 2000 || year > 2100 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "year out of range")
		return
	}

	cal, err := h.metrics.Calendar(c.Request.Context(), id, year, time.Month(month))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not build calendar")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"service_id": id,
		"year":       year,
		"month":      month,
		"days":       cal,
	})
}
