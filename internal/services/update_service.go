// Package services – UpdateService
//
// The fetch-and-store pipeline: resolve the working set of services against
// the configured directory, page through the remote listing endpoint for the
// requested window, enrich each incident sequentially (escalation check and
// custom-field lookup, each retried then degraded on failure), convert to
// domain records, and upsert into the store in fixed-size batches with a
// pause between batches.
//
// Enrichment is deliberately sequential per incident to respect the remote
// API's rate limits; batch boundaries only affect pacing and progress
// reporting, never correctness.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/opspulse/incident-insights/internal/config"
	"github.com/opspulse/incident-insights/internal/domain"
	"github.com/opspulse/incident-insights/internal/pagerduty"
	"github.com/opspulse/incident-insights/internal/repo"
)

var (
	fetchedIncidents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "incident_fetch_incidents_total",
		Help: "Raw incidents fetched from the remote API.",
	})
	storedIncidents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "incident_fetch_stored_total",
		Help: "Incidents successfully upserted into the store.",
	})
	enrichmentFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "incident_fetch_enrichment_failures_total",
		Help: "Enrichment calls that exhausted their retry budget and degraded.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(fetchedIncidents, storedIncidents, enrichmentFailures)
}

// IncidentAPI is the remote-API contract the pipeline depends on. The
// concrete implementation is pagerduty.Client; tests substitute fakes.
type IncidentAPI interface {
	ListIncidents(ctx context.Context, q pagerduty.ListQuery) ([]pagerduty.RawIncident, error)
	Escalated(ctx context.Context, incidentID string) (bool, error)
	CustomFields(ctx context.Context, incidentID string) (pagerduty.CustomFieldValues, error)
}

// UpdateRequest parameterizes one pipeline run. When StartDate/EndDate
// (YYYY-MM-DD, fixed offset) are set they define the window; otherwise the
// window covers the last Days calendar days ending now. ServiceIDs narrows
// the run to specific services; nil means every configured service.
type UpdateRequest struct {
	Days       int
	StartDate  string
	EndDate    string
	ServiceIDs []string
}

// UpdateResult reports one pipeline run. Stored can be lower than Fetched
// when individual records fail to upsert; enrichment degradation does not
// reduce either count.
type UpdateResult struct {
	Fetched   int       `json:"fetched"`
	Stored    int       `json:"stored"`
	Escalated int       `json:"escalated"`
	Since     time.Time `json:"since"`
	Until     time.Time `json:"until"`
	Services  []string  `json:"services"`
	Duration  float64   `json:"duration_seconds"`
}

// UpdateService runs the fetch-and-store pipeline.
type UpdateService struct {
	DB        *gorm.DB
	API       IncidentAPI
	Directory *config.Directory
	Loc       *time.Location
	Log       zerolog.Logger

	// BatchSize is the number of incidents enriched and stored per batch;
	// BatchPause is the pause inserted between batches.
	BatchSize  int
	BatchPause time.Duration

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// Run executes the pipeline. Incidents are persisted batch by batch, so a
// cancelled run keeps everything stored so far; the returned result then
// reflects the partial progress alongside the context error.
func (s *UpdateService) Run(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	started := s.clock()()

	serviceIDs, err := s.resolveServices(req.ServiceIDs)
	if err != nil {
		return nil, err
	}
	since, until, err := s.window(req)
	if err != nil {
		return nil, err
	}

	log := s.Log.With().Str("component", "updater").Logger()
	log.Info().
		Time("since", since).
		Time("until", until).
		Int("services", len(serviceIDs)).
		Msg("fetching incidents")

	// The primary listing call is never retried; a failure here fails the
	// whole run.
	raw, err := s.API.ListIncidents(ctx, pagerduty.ListQuery{
		ServiceIDs: serviceIDs,
		Since:      since,
		Until:      until,
	})
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	fetchedIncidents.Add(float64(len(raw)))
	log.Info().Int("count", len(raw)).Msg("fetched raw incidents")

	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	result := &UpdateResult{
		Fetched:  len(raw),
		Since:    since,
		Until:    until,
		Services: serviceIDs,
	}

	for start := 0; start < len(raw); start += batchSize {
		end := min(start+batchSize, len(raw))
		batch := make([]domain.Incident, 0, end-start)
		for _, ri := range raw[start:end] {
			inc, err := s.enrich(ctx, ri)
			if err != nil {
				// Only context cancellation aborts; enrichment failures
				// degrade inside enrich and never reach here.
				result.Duration = s.clock()().Sub(started).Seconds()
				return result, err
			}
			if inc.IsEscalated {
				result.Escalated++
			}
			batch = append(batch, inc)
		}

		stored := repo.UpsertIncidents(ctx, s.DB, batch, s.Loc)
		storedIncidents.Add(float64(stored))
		result.Stored += stored
		log.Info().
			Int("batch_from", start+1).
			Int("batch_to", end).
			Int("stored", stored).
			Msg("batch persisted")

		if end < len(raw) && s.BatchPause > 0 {
			select {
			case <-time.After(s.BatchPause):
			case <-ctx.Done():
				result.Duration = s.clock()().Sub(started).Seconds()
				return result, ctx.Err()
			}
		}
	}

	result.Duration = s.clock()().Sub(started).Seconds()
	log.Info().
		Int("fetched", result.Fetched).
		Int("stored", result.Stored).
		Int("escalated", result.Escalated).
		Float64("seconds", result.Duration).
		Msg("update complete")
	return result, nil
}

// resolveServices validates caller-supplied ids against the directory, or
// defaults to every configured service.
func (s *UpdateService) resolveServices(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return s.Directory.IDs(), nil
	}
	var unknown []string
	for _, id := range requested {
		if !s.Directory.Has(id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return nil, &UnknownServiceIDsError{IDs: unknown, Available: s.Directory.IDs()}
	}
	return requested, nil
}

// window computes the fetch window in the fixed offset: explicit dates span
// 00:00:00 of start through 23:59:59 of end; otherwise the window covers the
// last Days calendar days ending now.
func (s *UpdateService) window(req UpdateRequest) (since, until time.Time, err error) {
	now := s.clock()().In(s.Loc)

	until = now
	if req.EndDate != "" {
		end, perr := time.ParseInLocation(domain.DateKeyLayout, req.EndDate, s.Loc)
		if perr != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", req.EndDate, perr)
		}
		until = end.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}

	if req.StartDate != "" {
		since, err = time.ParseInLocation(domain.DateKeyLayout, req.StartDate, s.Loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", req.StartDate, err)
		}
		return since, until, nil
	}

	days := req.Days
	if days <= 0 {
		days = DefaultWindowDays
	}
	start := until.AddDate(0, 0, -(days - 1))
	since = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.Loc)
	return since, until, nil
}

// enrich runs the two per-incident enrichment calls and converts the raw
// payload into a domain record. Each enrichment call has already been
// retried by the client; on final failure it degrades to an absent/false
// value and the incident is still produced. Only context cancellation is
// propagated.
func (s *UpdateService) enrich(ctx context.Context, ri pagerduty.RawIncident) (domain.Incident, error) {
	log := s.Log.With().Str("component", "updater").Str("incident_id", ri.ID).Logger()

	escalated, err := s.API.Escalated(ctx, ri.ID)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Incident{}, ctx.Err()
		}
		enrichmentFailures.WithLabelValues("escalation").Inc()
		log.Warn().Err(err).Msg("escalation check degraded to false")
		escalated = false
	}

	fields, err := s.API.CustomFields(ctx, ri.ID)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Incident{}, ctx.Err()
		}
		enrichmentFailures.WithLabelValues("custom_fields").Inc()
		log.Warn().Err(err).Msg("custom field lookup degraded to absent")
		fields = pagerduty.CustomFieldValues{}
	}

	return s.convert(ri, escalated, fields)
}

// convert maps a raw API incident to a domain record: the directory's
// display name wins over the API's, and every timestamp is converted into
// the fixed offset.
func (s *UpdateService) convert(ri pagerduty.RawIncident, escalated bool, fields pagerduty.CustomFieldValues) (domain.Incident, error) {
	createdAt, err := parseAPITime(ri.CreatedAt, s.Loc)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("incident %s: created_at: %w", ri.ID, err)
	}

	serviceName := ri.Service.Name
	if name, ok := s.Directory.Name(ri.Service.ID); ok {
		serviceName = name
	}

	inc := domain.Incident{
		ID:          ri.ID,
		Title:       ri.Title,
		Status:      ri.Status,
		ServiceID:   ri.Service.ID,
		ServiceName: serviceName,
		CreatedAt:   createdAt,
		IsEscalated: escalated,
		Urgency:     ri.Urgency,
	}
	if inc.Urgency == "" {
		inc.Urgency = domain.UrgencyLow
	}
	if ri.Description != "" {
		d := ri.Description
		inc.Description = &d
	}
	if ri.EscalationPolicy.ID != "" {
		id := ri.EscalationPolicy.ID
		inc.EscalationPolicyID = &id
	}
	if ri.EscalationPolicy.Name != "" {
		name := ri.EscalationPolicy.Name
		inc.EscalationPolicyName = &name
	}
	if ri.Priority != nil {
		if label := priorityLabel(*ri.Priority); label != "" {
			inc.Priority = &label
		}
	}
	if ri.ResolvedAt != "" {
		t, err := parseAPITime(ri.ResolvedAt, s.Loc)
		if err != nil {
			return domain.Incident{}, fmt.Errorf("incident %s: resolved_at: %w", ri.ID, err)
		}
		inc.ResolvedAt = &t
	}
	if len(ri.Acknowledgements) > 0 && ri.Acknowledgements[0].At != "" {
		t, err := parseAPITime(ri.Acknowledgements[0].At, s.Loc)
		if err != nil {
			return domain.Incident{}, fmt.Errorf("incident %s: acknowledged_at: %w", ri.ID, err)
		}
		inc.AcknowledgedAt = &t
	}

	if fields.Resolution != nil && *fields.Resolution == "ccoe" {
		inc.ResolvedByCCOE = true
	}
	inc.CausedByInfra = fields.PrelimRootCause

	return inc, nil
}

func (s *UpdateService) clock() func() time.Time {
	if s.now != nil {
		return s.now
	}
	return time.Now
}

// parseAPITime parses an API timestamp (RFC 3339 with any offset, including
// "Z") and converts it into the fixed offset.
func parseAPITime(value string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func priorityLabel(ref pagerduty.Reference) string {
	if ref.Name != "" {
		return ref.Name
	}
	return ref.Summary
}
