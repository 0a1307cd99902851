// Package services – MetricsService
//
// Read-only aggregation over the incident store for a trailing N-day window
// in the fixed offset, optionally scoped to one service. All counts come
// from the repo's grouped queries; nothing here loads the table into memory.
package services

import (
	"context"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/opspulse/incident-insights/internal/domain"
	"github.com/opspulse/incident-insights/internal/repo"
)

// DefaultWindowDays is the trailing window used when a caller does not
// specify one.
const DefaultWindowDays = 7

// ServiceMetrics is the per-service breakdown for a window.
type ServiceMetrics struct {
	ServiceID      string  `json:"service_id"`
	ServiceName    string  `json:"service_name"`
	TotalIncidents int64   `json:"total_incidents"`
	Triggered      int64   `json:"triggered_incidents"`
	Resolved       int64   `json:"resolved_incidents"`
	Escalated      int64   `json:"escalated_incidents"`
	EscalationRate float64 `json:"escalation_rate"`
	CCOEResolved   int64   `json:"ccoe_resolved_incidents"`
	InfraCaused    int64   `json:"infrastructure_caused_incidents"`
}

// TrendPoint is one day of the daily trend, ordered newest first.
type TrendPoint struct {
	Date           string  `json:"date"`
	TotalIncidents int64   `json:"total_incidents"`
	Triggered      int64   `json:"triggered_incidents"`
	Resolved       int64   `json:"resolved_incidents"`
	Escalated      int64   `json:"escalated_incidents"`
	EscalationRate float64 `json:"escalation_rate"`
	CCOEResolved   int64   `json:"ccoe_resolved_incidents"`
	InfraCaused    int64   `json:"infrastructure_caused_incidents"`
}

// Summary is the comprehensive window report: scalar counts plus the
// per-service breakdown and the daily trend.
type Summary struct {
	PeriodDays     int              `json:"period_days"`
	TotalIncidents int64            `json:"total_incidents"`
	Triggered      int64            `json:"triggered_incidents"`
	Resolved       int64            `json:"resolved_incidents"`
	Escalated      int64            `json:"escalated_incidents"`
	EscalationRate float64          `json:"escalation_rate"`
	ServicesCount  int              `json:"services_count"`
	Services       []ServiceMetrics `json:"service_metrics"`
	DailyTrend     []TrendPoint     `json:"daily_trend"`
}

// CalendarIncident is the abbreviated incident view shown in a calendar
// cell for escalated incidents.
type CalendarIncident struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Urgency string `json:"urgency"`
	HTMLURL string `json:"html_url,omitempty"`
}

// CalendarDay aggregates one day of a service's calendar month.
type CalendarDay struct {
	Total              int                `json:"total"`
	Triggered          int                `json:"triggered"`
	Resolved           int                `json:"resolved"`
	Escalated          int                `json:"escalated"`
	CCOEResolved       int                `json:"ccoe_resolved"`
	InfraCaused        int                `json:"infrastructure_caused"`
	EscalatedIncidents []CalendarIncident `json:"escalated_incidents"`
}

// Stats is the global store snapshot shown on the admin page.
type Stats struct {
	TotalIncidents     int64    `json:"total_incidents"`
	ServicesCount      int      `json:"services_count"`
	IncidentsLast7Days int64    `json:"incidents_last_7_days"`
	EscalatedLast7Days int64    `json:"escalated_last_7_days"`
	LastUpdated        string   `json:"last_updated"`
	ServiceIDs         []string `json:"-"`
}

// MetricsService aggregates stored incidents. Loc is the fixed offset all
// windows and day buckets are computed in; IncidentURLBase, when set,
// prefixes incident deep links in calendar views.
type MetricsService struct {
	DB              *gorm.DB
	Loc             *time.Location
	IncidentURLBase string
}

// Summary computes the comprehensive report for the trailing window.
func (s *MetricsService) Summary(ctx context.Context, days int) (*Summary, error) {
	days = normalizeDays(days)
	start, end := repo.DayWindow(days, s.Loc)

	counts, err := repo.CountWindow(ctx, s.DB, start, end, "")
	if err != nil {
		return nil, err
	}
	svcs, err := s.ServiceBreakdown(ctx, days)
	if err != nil {
		return nil, err
	}
	trend, err := s.DailyTrend(ctx, days, "")
	if err != nil {
		return nil, err
	}

	return &Summary{
		PeriodDays:     days,
		TotalIncidents: counts.Total,
		Triggered:      counts.Triggered,
		Resolved:       counts.Resolved,
		Escalated:      counts.Escalated,
		EscalationRate: round2(escalationRate(counts.Escalated, counts.Total)),
		ServicesCount:  len(svcs),
		Services:       svcs,
		DailyTrend:     trend,
	}, nil
}

// ServiceBreakdown returns per-service metrics for every service with at
// least one incident in the window, ordered by total incidents descending.
func (s *MetricsService) ServiceBreakdown(ctx context.Context, days int) ([]ServiceMetrics, error) {
	days = normalizeDays(days)
	start, end := repo.DayWindow(days, s.Loc)
	rows, err := repo.CountByService(ctx, s.DB, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]ServiceMetrics, 0, len(rows))
	for _, r := range rows {
		out = append(out, ServiceMetrics{
			ServiceID:      r.ServiceID,
			ServiceName:    r.ServiceName,
			TotalIncidents: r.Total,
			Triggered:      r.Triggered,
			Resolved:       r.Resolved,
			Escalated:      r.Escalated,
			EscalationRate: escalationRate(r.Escalated, r.Total),
			CCOEResolved:   r.CCOEResolved,
			InfraCaused:    r.InfraCaused,
		})
	}
	return out, nil
}

// ServiceSummary returns the window metrics for a single service. A service
// with no incidents in the window yields zero-valued metrics rather than an
// error, so the dashboard can always render a card.
func (s *MetricsService) ServiceSummary(ctx context.Context, serviceID string, days int) (ServiceMetrics, error) {
	days = normalizeDays(days)
	start, end := repo.DayWindow(days, s.Loc)
	counts, err := repo.CountWindow(ctx, s.DB, start, end, serviceID)
	if err != nil {
		return ServiceMetrics{}, err
	}
	return ServiceMetrics{
		ServiceID:      serviceID,
		TotalIncidents: counts.Total,
		Triggered:      counts.Triggered,
		Resolved:       counts.Resolved,
		Escalated:      counts.Escalated,
		EscalationRate: round2(escalationRate(counts.Escalated, counts.Total)),
		CCOEResolved:   counts.CCOEResolved,
		InfraCaused:    counts.InfraCaused,
	}, nil
}

// DailyTrend returns per-day counts for the window, newest date first, one
// point per distinct day with at least one incident. serviceID optionally
// scopes the trend to one service.
func (s *MetricsService) DailyTrend(ctx context.Context, days int, serviceID string) ([]TrendPoint, error) {
	days = normalizeDays(days)
	start, end := repo.DayWindow(days, s.Loc)
	rows, err := repo.CountByDay(ctx, s.DB, start, end, serviceID)
	if err != nil {
		return nil, err
	}
	out := make([]TrendPoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, TrendPoint{
			Date:           r.Date,
			TotalIncidents: r.Total,
			Triggered:      r.Triggered,
			Resolved:       r.Resolved,
			Escalated:      r.Escalated,
			EscalationRate: escalationRate(r.Escalated, r.Total),
			CCOEResolved:   r.CCOEResolved,
			InfraCaused:    r.InfraCaused,
		})
	}
	return out, nil
}

// TopEscalatedServices returns the per-service breakdown sorted by
// (escalated count, escalation rate) descending, truncated to limit.
func (s *MetricsService) TopEscalatedServices(ctx context.Context, days, limit int) ([]ServiceMetrics, error) {
	svcs, err := s.ServiceBreakdown(ctx, days)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(svcs, func(i, j int) bool {
		if svcs[i].Escalated != svcs[j].Escalated {
			return svcs[i].Escalated > svcs[j].Escalated
		}
		return svcs[i].EscalationRate > svcs[j].EscalationRate
	})
	if limit > 0 && len(svcs) > limit {
		svcs = svcs[:limit]
	}
	return svcs, nil
}

// Calendar returns one service's incidents for a calendar month, grouped by
// day bucket, for the dashboard calendar widget.
func (s *MetricsService) Calendar(ctx context.Context, serviceID string, year int, month time.Month) (map[string]*CalendarDay, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, s.Loc)
	last := first.AddDate(0, 1, -1)
	startDate := first.Format(domain.DateKeyLayout)
	endDate := last.Format(domain.DateKeyLayout)

	incidents, err := repo.ListByDateRange(ctx, s.DB, startDate, endDate, serviceID, s.Loc)
	if err != nil {
		return nil, err
	}

	cal := make(map[string]*CalendarDay)
	for _, inc := range incidents {
		key := inc.DateKey(s.Loc)
		day := cal[key]
		if day == nil {
			day = &CalendarDay{EscalatedIncidents: []CalendarIncident{}}
			cal[key] = day
		}
		day.Total++
		if inc.IsOpen() {
			day.Triggered++
		} else if inc.IsResolved() {
			day.Resolved++
		}
		if inc.IsEscalated {
			day.Escalated++
			entry := CalendarIncident{
				ID:      inc.ID,
				Title:   inc.Title,
				Status:  inc.Status,
				Urgency: inc.Urgency,
			}
			if s.IncidentURLBase != "" {
				entry.HTMLURL = s.IncidentURLBase + "/incidents/" + inc.ID
			}
			day.EscalatedIncidents = append(day.EscalatedIncidents, entry)
		}
		if inc.ResolvedByCCOE {
			day.CCOEResolved++
		}
		if inc.IsInfrastructureCaused() {
			day.InfraCaused++
		}
	}
	return cal, nil
}

// Stats returns the global store snapshot.
func (s *MetricsService) Stats(ctx context.Context) (*Stats, error) {
	total, err := repo.CountIncidents(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	ids, err := repo.DistinctServiceIDs(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	start, end := repo.DayWindow(DefaultWindowDays, s.Loc)
	counts, err := repo.CountWindow(ctx, s.DB, start, end, "")
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalIncidents:     total,
		ServicesCount:      len(ids),
		IncidentsLast7Days: counts.Total,
		EscalatedLast7Days: counts.Escalated,
		LastUpdated:        time.Now().In(s.Loc).Format(time.RFC3339),
		ServiceIDs:         ids,
	}, nil
}

// escalationRate is escalated/total as a percentage, defined as 0.0 for an
// empty window.
func escalationRate(escalated, total int64) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(escalated) / float64(total) * 100
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func normalizeDays(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	return days
}
