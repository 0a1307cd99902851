// Incident list and lookup endpoints.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opspulse/incident-insights/internal/domain"
	"github.com/opspulse/incident-insights/internal/repo"
	"github.com/opspulse/incident-insights/internal/services"
)

// GetIncident returns a single stored incident by id as its portable map
// form (RFC 3339 timestamp strings, optional fields omitted when absent).
//
// @Summary     Get incident by id
// @Tags        Incidents
// @Produce     json
// @Param       id  path  string  true  "Incident ID"  example(Q1ABCDEF)
// @Success     200  {object}  map[string]any
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /incidents/{id} [get]
func (h *Handlers) GetIncident(c *gin.Context) {
	inc, err := repo.GetIncident(c.Request.Context(), h.db, c.Param("id"), h.loc)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "incident not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load incident")
		return
	}
	ok(c, http.StatusOK, inc.Serialize())
}

// ListIncidents returns stored incidents for the trailing window, newest
// first, optionally scoped to one service via ?service_id.
//
// @Summary     List recent incidents
// @Tags        Incidents
// @Produce     json
// @Param       days        query  int     false  "Window size in days (default 7)"
// @Param       service_id  query  string  false  "Scope to one service"
// @Success     200  {object}  map[string]any
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /incidents [get]
func (h *Handlers) ListIncidents(c *gin.Context) {
	days := daysQuery(c, services.DefaultWindowDays)
	incs, err := repo.ListLastNDays(c.Request.Context(), h.db, days, c.Query("service_id"), h.loc)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list incidents")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"period_days": days,
		"count":       len(incs),
		"incidents":   serializeAll(incs),
	})
}

// ListEscalations returns escalated incidents for the trailing window,
// newest first.
//
// @Summary     List recent escalations
// @Tags        Incidents
// @Produce     json
// @Param       days  query  int  false  "Window size in days (default 7)"
// @Success     200  {object}  map[string]any
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /escalations [get]
func (h *Handlers) ListEscalations(c *gin.Context) {
	days := daysQuery(c, services.DefaultWindowDays)
	incs, err := repo.ListEscalatedLastNDays(c.Request.Context(), h.db, days, h.loc)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list escalations")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"period_days": days,
		"count":       len(incs),
		"incidents":   serializeAll(incs),
	})
}

func serializeAll(incs []domain.Incident) []map[string]any {
	out := make([]map[string]any, 0, len(incs))
	for _, inc := range incs {
		out = append(out, inc.Serialize())
	}
	return out
}
