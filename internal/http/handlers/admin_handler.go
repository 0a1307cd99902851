// Admin endpoints: background data refresh and retention.
//
//   - POST /admin/update          (trigger a background fetch, single-flight)
//   - GET  /admin/update/status   (state of the current or last run)
//   - POST /admin/cleanup         (delete records older than N days)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opspulse/incident-insights/internal/repo"
	"github.com/opspulse/incident-insights/internal/services"
)

// UpdateRequestBody is the JSON payload accepted by the update trigger. All
// fields are optional; an empty body refreshes the default window for every
// configured service.
type UpdateRequestBody struct {
	// Days is the trailing window; capped server-side to keep the run inside
	// the trigger's timeout budget.
	Days int `json:"days" example:"7"`
	// StartDate/EndDate (YYYY-MM-DD) define an explicit window instead.
	StartDate string `json:"start_date,omitempty" example:"2026-08-01"`
	EndDate   string `json:"end_date,omitempty" example:"2026-08-07"`
	// ServiceIDs narrows the run; ids must exist in the configured directory.
	ServiceIDs []string `json:"service_ids,omitempty"`
}

// TriggerUpdate starts a background fetch-and-store run. At most one run is
// active at a time; a second trigger while one is running returns 409.
//
// @Summary     Trigger data refresh
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.UpdateRequestBody  false  "Update parameters"
// @Success     202  {object}  services.UpdateStatus
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /admin/update [post]
func (h *Handlers) TriggerUpdate(c *gin.Context) {
	var body UpdateRequestBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON payload")
			return
		}
	}

	days := body.Days
	if days <= 0 {
		days = services.DefaultWindowDays
	}
	if days > h.updateMaxDays {
		days = h.updateMaxDays
	}

	// Unknown service ids are rejected synchronously so the caller gets the
	// offending ids, not a failed background run.
	for _, id := range body.ServiceIDs {
		if !h.dir.Has(id) {
			fail(c, http.StatusBadRequest, ErrCodeUnknownService, "service not configured: "+id)
			return
		}
	}

	err := h.runner.Start(services.UpdateRequest{
		Days:       days,
		StartDate:  body.StartDate,
		EndDate:    body.EndDate,
		ServiceIDs: body.ServiceIDs,
	})
	if err != nil {
		if errors.Is(err, services.ErrUpdateInProgress) {
			fail(c, http.StatusConflict, ErrCodeUpdateInProgress, "an update is already running")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not start update")
		return
	}
	ok(c, http.StatusAccepted, h.runner.Status())
}

// GetUpdateStatus reports the state of the current or most recent run.
//
// @Summary     Data refresh status
// @Tags        Admin
// @Produce     json
// @Success     200  {object}  services.UpdateStatus
// @Router      /admin/update/status [get]
func (h *Handlers) GetUpdateStatus(c *gin.Context) {
	ok(c, http.StatusOK, h.runner.Status())
}

// Cleanup deletes incidents with a day bucket older than ?days days
// (default 365) and reports how many rows were removed.
//
// @Summary     Delete old incidents
// @Tags        Admin
// @Produce     json
// @Param       days  query  int  false  "Retention horizon in days (default 365)"
// @Success     200  {object}  map[string]any
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /admin/cleanup [post]
func (h *Handlers) Cleanup(c *gin.Context) {
	days := intQuery(c, "days", 365)
	if days < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "days must be positive")
		return
	}
	deleted, err := repo.DeleteOlderThan(c.Request.Context(), h.db, days, h.loc)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not delete old incidents")
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": deleted, "days": days})
}
