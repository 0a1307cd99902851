// Dashboard HTTP handlers.
//
// Handlers are transport-thin: they parse and bound query parameters, call
// the metrics/update services, and translate results (including typed
// service errors) into HTTP responses.
package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/opspulse/incident-insights/internal/config"
	"github.com/opspulse/incident-insights/internal/services"
)

// maxWindowDays caps the ?days query parameter on read endpoints so a typo
// cannot force a scan over years of data.
const maxWindowDays = 365

// Handlers groups the dashboard endpoints and their dependencies.
type Handlers struct {
	metrics *services.MetricsService
	runner  *services.UpdateRunner
	dir     *config.Directory
	db      *gorm.DB
	loc     *time.Location

	// updateMaxDays bounds the window accepted by the admin update trigger.
	updateMaxDays int
}

// New constructs a Handlers instance bound to the given services.
func New(metrics *services.MetricsService, runner *services.UpdateRunner, dir *config.Directory, db *gorm.DB, loc *time.Location, updateMaxDays int) *Handlers {
	if updateMaxDays <= 0 {
		updateMaxDays = services.DefaultWindowDays
	}
	return &Handlers{
		metrics:       metrics,
		runner:        runner,
		dir:           dir,
		db:            db,
		loc:           loc,
		updateMaxDays: updateMaxDays,
	}
}

// daysQuery parses the ?days parameter, falling back to def and clamping to
// [1, maxWindowDays]. Malformed values fall back rather than erroring; the
// dashboard treats them as "use the default window".
func daysQuery(c *gin.Context, def int) int {
	days := intQuery(c, "days", def)
	if days < 1 {
		days = def
	}
	if days > maxWindowDays {
		days = maxWindowDays
	}
	return days
}

// intQuery parses an integer query parameter, returning def when absent or
// malformed.
func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
