// Package pagerduty implements the REST client for the remote
// incident-management API: paginated incident listing plus the two
// per-incident enrichment calls (escalation detection via log entries and
// custom-field value lookup).
//
// Error semantics mirror the operational requirements of the fetch pipeline:
//   - Listing calls are never retried; a non-2xx response or transport error
//     propagates as a fetch failure for the whole call.
//   - Enrichment calls are retried up to the configured attempt budget with a
//     fixed delay; after exhaustion the error is returned and the caller is
//     expected to degrade to an absent/false result.
package pagerduty

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	acceptHeader = "application/vnd.pagerduty+json;version=2"

	// escalateLogEntryType marks a log entry recording an escalation beyond
	// the first responder.
	escalateLogEntryType = "escalate_log_entry"

	fieldResolution      = "resolution"
	fieldPrelimRootCause = "prelim_root_cause"
)

// APIError is a non-2xx response from the remote API.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pagerduty: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Reference is an embedded id/name pair as returned inside incident payloads
// (service, escalation policy, priority).
type Reference struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	// Summary carries the display label for priority references.
	Summary string `json:"summary,omitempty"`
}

// Acknowledgement records who acknowledged an incident and when.
type Acknowledgement struct {
	At string `json:"at"`
}

// RawIncident is one incident payload from the listing endpoint, prior to
// enrichment and conversion into a domain record.
type RawIncident struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Status           string            `json:"status"`
	Urgency          string            `json:"urgency"`
	CreatedAt        string            `json:"created_at"`
	ResolvedAt       string            `json:"resolved_at"`
	Service          Reference         `json:"service"`
	EscalationPolicy Reference         `json:"escalation_policy"`
	Priority         *Reference        `json:"priority"`
	Acknowledgements []Acknowledgement `json:"acknowledgments"`
}

// CustomFieldValues carries the two custom-field values the pipeline
// extracts per incident. Values are lowercased and trimmed; nil means the
// field was absent or empty upstream.
type CustomFieldValues struct {
	Resolution      *string
	PrelimRootCause *string
}

// ListQuery parameterizes the incident listing endpoint.
type ListQuery struct {
	ServiceIDs []string
	Since      time.Time
	Until      time.Time
}

// Config holds the client construction parameters.
type Config struct {
	// BaseURL of the API, without a trailing slash.
	BaseURL string
	// Token is the API token sent in the Authorization header.
	Token string
	// ListTimeout bounds a single listing request. Listing a large window
	// can legitimately take a long time server-side.
	ListTimeout time.Duration
	// EnrichTimeout bounds a single enrichment request.
	EnrichTimeout time.Duration
	// Retry is the policy applied to enrichment calls.
	Retry RetryPolicy
	// PageSize is the listing page size. Defaults to 100.
	PageSize int
	// Logger is used for retry/degradation diagnostics.
	Logger zerolog.Logger
}

// Client talks to the remote incident-management API. It is safe for
// concurrent use, although the fetch pipeline deliberately calls it
// sequentially to respect remote rate limits.
type Client struct {
	baseURL  string
	token    string
	pageSize int
	retry    RetryPolicy
	listHC   *http.Client
	enrichHC *http.Client
	log      zerolog.Logger
}

// NewClient constructs a Client from cfg, applying defaults for unset
// tunables.
func NewClient(cfg Config) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	listTimeout := cfg.ListTimeout
	if listTimeout <= 0 {
		listTimeout = 30 * time.Minute
	}
	enrichTimeout := cfg.EnrichTimeout
	if enrichTimeout <= 0 {
		enrichTimeout = 30 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 3
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		pageSize: pageSize,
		retry:    retry,
		listHC:   &http.Client{Timeout: listTimeout},
		enrichHC: &http.Client{Timeout: enrichTimeout},
		log:      cfg.Logger.With().Str("component", "pagerduty").Logger(),
	}
}

// ListIncidents pages through the incident listing endpoint and returns all
// incidents in the window, newest first. It follows offset-based pagination
// with the configured page size and stops when the API reports no further
// pages or returns a short page. Errors are not retried.
func (c *Client) ListIncidents(ctx context.Context, q ListQuery) ([]RawIncident, error) {
	var all []RawIncident
	offset := 0
	for {
		params := url.Values{}
		for _, id := range q.ServiceIDs {
			params.Add("service_ids[]", id)
		}
		params.Set("since", q.Since.Format(time.RFC3339))
		params.Set("until", q.Until.Format(time.RFC3339))
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("sort_by", "created_at:desc")

		var page struct {
			Incidents []RawIncident `json:"incidents"`
			More      bool          `json:"more"`
		}
		if err := c.get(ctx, c.listHC, "/incidents", params, &page); err != nil {
			return nil, err
		}
		if len(page.Incidents) == 0 {
			break
		}
		all = append(all, page.Incidents...)
		if !page.More || len(page.Incidents) < c.pageSize {
			break
		}
		offset += c.pageSize
	}
	return all, nil
}

// Escalated reports whether the incident has an escalate-type log entry.
// The call is retried per the client's retry policy before failing.
func (c *Client) Escalated(ctx context.Context, incidentID string) (bool, error) {
	params := url.Values{}
	params.Set("limit", "100")
	params.Set("is_overview", "false")
	params.Add("include[]", "channels")

	var escalated bool
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var resp struct {
			LogEntries []struct {
				Type string `json:"type"`
			} `json:"log_entries"`
		}
		if err := c.get(ctx, c.enrichHC, "/incidents/"+incidentID+"/log_entries", params, &resp); err != nil {
			c.log.Warn().Err(err).Str("incident_id", incidentID).Msg("escalation check attempt failed")
			return err
		}
		escalated = false
		for _, entry := range resp.LogEntries {
			if entry.Type == escalateLogEntryType {
				escalated = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return escalated, nil
}

// CustomFields fetches the incident's custom-field values and extracts the
// resolution and preliminary root cause entries. Values are lowercased and
// trimmed. The call is retried per the client's retry policy before failing.
func (c *Client) CustomFields(ctx context.Context, incidentID string) (CustomFieldValues, error) {
	var out CustomFieldValues
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var resp struct {
			CustomFields []struct {
				Name  string `json:"name"`
				Value any    `json:"value"`
			} `json:"custom_fields"`
		}
		if err := c.get(ctx, c.enrichHC, "/incidents/"+incidentID+"/custom_fields/values", nil, &resp); err != nil {
			c.log.Warn().Err(err).Str("incident_id", incidentID).Msg("custom field lookup attempt failed")
			return err
		}
		out = CustomFieldValues{}
		for _, f := range resp.CustomFields {
			val, ok := f.Value.(string)
			if !ok {
				continue
			}
			val = strings.ToLower(strings.TrimSpace(val))
			if val == "" {
				continue
			}
			switch strings.ToLower(f.Name) {
			case fieldResolution:
				v := val
				out.Resolution = &v
			case fieldPrelimRootCause:
				v := val
				out.PrelimRootCause = &v
			}
		}
		return nil
	})
	if err != nil {
		return CustomFieldValues{}, err
	}
	return out, nil
}

// get performs one authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, hc *http.Client, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("pagerduty: build request %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Token token="+c.token)
	req.Header.Set("Accept", acceptHeader)

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{StatusCode: resp.StatusCode, Endpoint: path, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pagerduty: decode %s: %w", path, err)
	}
	return nil
}
