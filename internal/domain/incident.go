// Package domain defines the incident entity persisted by the dashboard
// backend, together with its derived predicates and the flat map codec used
// at the storage boundary.
//
// An Incident is a snapshot of one PagerDuty incident taken at fetch time.
// It is immutable after creation: re-fetching the same incident replaces the
// stored record wholesale (last-write-wins by ID), so there is no history of
// prior states and no partial update path.
//
// All day-bucketing is performed against a fixed, non-DST offset (UTC-7 in
// production). The offset is never a package global; callers thread the
// *time.Location produced by the config package into DateKey and Deserialize.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Incident status values as reported by the remote API. Comparisons against
// these values are case-insensitive on read.
const (
	StatusTriggered    = "triggered"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Incident urgency values.
const (
	UrgencyLow  = "low"
	UrgencyHigh = "high"
)

// DateKeyLayout is the calendar-date format used for day bucketing.
const DateKeyLayout = "2006-01-02"

// Incident is a snapshot of a service disruption tracked by the remote
// incident-management API.
//
// Required fields: ID, Title, Status, ServiceID, ServiceName, CreatedAt.
// Optional fields use pointers and default to absent. IsEscalated is derived
// at fetch time from the incident's log entries and never changes afterwards;
// ResolvedByCCOE and CausedByInfra come from custom-field lookups.
type Incident struct {
	ID          string
	Title       string
	Status      string
	ServiceID   string
	ServiceName string

	CreatedAt      time.Time
	ResolvedAt     *time.Time
	AcknowledgedAt *time.Time

	IsEscalated          bool
	EscalationPolicyID   *string
	EscalationPolicyName *string

	Urgency     string
	Priority    *string
	Description *string

	// ResolvedByCCOE is true iff the "resolution" custom field equals "ccoe"
	// (case-insensitive).
	ResolvedByCCOE bool
	// CausedByInfra holds the raw "prelim_root_cause" custom-field value.
	// Empty or whitespace-only values are treated as absent.
	CausedByInfra *string
}

// IsOpen reports whether the incident is in the triggered or acknowledged
// state. The check is case-insensitive.
func (i Incident) IsOpen() bool {
	return strings.EqualFold(i.Status, StatusTriggered) || strings.EqualFold(i.Status, StatusAcknowledged)
}

// IsResolved reports whether the incident is resolved (case-insensitive).
func (i Incident) IsResolved() bool {
	return strings.EqualFold(i.Status, StatusResolved)
}

// IsInfrastructureCaused reports whether a non-blank preliminary root cause
// was recorded for the incident.
func (i Incident) IsInfrastructureCaused() bool {
	return i.CausedByInfra != nil && strings.TrimSpace(*i.CausedByInfra) != ""
}

// DateKey returns the calendar date (YYYY-MM-DD) of CreatedAt converted to
// the given fixed offset. Timestamps stored without zone information are
// assumed to already be expressed in that offset.
func (i Incident) DateKey(loc *time.Location) string {
	return i.CreatedAt.In(loc).Format(DateKeyLayout)
}

// Serialize converts the incident to a flat field→value map. Timestamps are
// rendered as zone-qualified RFC 3339 strings; absent optional fields map to
// nil. The result round-trips through Deserialize.
func (i Incident) Serialize() map[string]any {
	return map[string]any{
		"id":                     i.ID,
		"title":                  i.Title,
		"status":                 i.Status,
		"service_id":             i.ServiceID,
		"service_name":           i.ServiceName,
		"created_at":             i.CreatedAt.Format(time.RFC3339),
		"resolved_at":            formatTimePtr(i.ResolvedAt),
		"acknowledged_at":        formatTimePtr(i.AcknowledgedAt),
		"is_escalated":           i.IsEscalated,
		"escalation_policy_id":   strPtrValue(i.EscalationPolicyID),
		"escalation_policy_name": strPtrValue(i.EscalationPolicyName),
		"urgency":                i.Urgency,
		"priority":               strPtrValue(i.Priority),
		"description":            strPtrValue(i.Description),
		"resolved_by_ccoe":       i.ResolvedByCCOE,
		"caused_by_infra":        strPtrValue(i.CausedByInfra),
	}
}

// Deserialize is the inverse of Serialize. It tolerates boolean fields
// represented as 0/1 integers (SQLite returns those) and parses timestamps
// back to zone-aware values; timestamps without zone information are
// interpreted in loc. Absent optional fields stay nil.
func Deserialize(m map[string]any, loc *time.Location) (Incident, error) {
	id, err := fieldString(m, "id")
	if err != nil {
		return Incident{}, err
	}
	if id == "" {
		return Incident{}, fmt.Errorf("incident: missing id")
	}
	title, err := fieldString(m, "title")
	if err != nil {
		return Incident{}, err
	}
	status, err := fieldString(m, "status")
	if err != nil {
		return Incident{}, err
	}
	serviceID, err := fieldString(m, "service_id")
	if err != nil {
		return Incident{}, err
	}
	serviceName, err := fieldString(m, "service_name")
	if err != nil {
		return Incident{}, err
	}
	createdAt, err := fieldTime(m, "created_at", loc)
	if err != nil {
		return Incident{}, err
	}
	if createdAt == nil {
		return Incident{}, fmt.Errorf("incident %s: missing created_at", id)
	}
	resolvedAt, err := fieldTime(m, "resolved_at", loc)
	if err != nil {
		return Incident{}, err
	}
	acknowledgedAt, err := fieldTime(m, "acknowledged_at", loc)
	if err != nil {
		return Incident{}, err
	}
	isEscalated, err := fieldBool(m, "is_escalated")
	if err != nil {
		return Incident{}, err
	}
	resolvedByCCOE, err := fieldBool(m, "resolved_by_ccoe")
	if err != nil {
		return Incident{}, err
	}
	urgency, err := fieldString(m, "urgency")
	if err != nil {
		return Incident{}, err
	}
	if urgency == "" {
		urgency = UrgencyLow
	}

	return Incident{
		ID:                   id,
		Title:                title,
		Status:               status,
		ServiceID:            serviceID,
		ServiceName:          serviceName,
		CreatedAt:            *createdAt,
		ResolvedAt:           resolvedAt,
		AcknowledgedAt:       acknowledgedAt,
		IsEscalated:          isEscalated,
		EscalationPolicyID:   fieldStringPtr(m, "escalation_policy_id"),
		EscalationPolicyName: fieldStringPtr(m, "escalation_policy_name"),
		Urgency:              urgency,
		Priority:             fieldStringPtr(m, "priority"),
		Description:          fieldStringPtr(m, "description"),
		ResolvedByCCOE:       resolvedByCCOE,
		CausedByInfra:        fieldStringPtr(m, "caused_by_infra"),
	}, nil
}

// Equal reports field-for-field equality, comparing timestamps by instant
// rather than by location identity.
func (i Incident) Equal(o Incident) bool {
	return i.ID == o.ID &&
		i.Title == o.Title &&
		i.Status == o.Status &&
		i.ServiceID == o.ServiceID &&
		i.ServiceName == o.ServiceName &&
		i.CreatedAt.Equal(o.CreatedAt) &&
		timePtrEqual(i.ResolvedAt, o.ResolvedAt) &&
		timePtrEqual(i.AcknowledgedAt, o.AcknowledgedAt) &&
		i.IsEscalated == o.IsEscalated &&
		strPtrEqual(i.EscalationPolicyID, o.EscalationPolicyID) &&
		strPtrEqual(i.EscalationPolicyName, o.EscalationPolicyName) &&
		i.Urgency == o.Urgency &&
		strPtrEqual(i.Priority, o.Priority) &&
		strPtrEqual(i.Description, o.Description) &&
		i.ResolvedByCCOE == o.ResolvedByCCOE &&
		strPtrEqual(i.CausedByInfra, o.CausedByInfra)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func strPtrValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fieldString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("incident: field %q: expected string, got %T", key, v)
	}
	return s, nil
}

func fieldStringPtr(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	if s, ok := v.(string); ok && s != "" {
		out := s
		return &out
	}
	return nil
}

// fieldBool accepts native bools plus the 0/1 integer encodings SQLite
// drivers hand back for BOOLEAN columns.
func fieldBool(m map[string]any, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case int:
		return b != 0, nil
	case int64:
		return b != 0, nil
	case float64:
		return b != 0, nil
	default:
		return false, fmt.Errorf("incident: field %q: expected bool or 0/1, got %T", key, v)
	}
}

// fieldTime parses an RFC 3339 timestamp. Naive timestamps (no zone suffix)
// are interpreted in loc, matching the convention that stored values without
// zone information are already expressed in the fixed offset.
func fieldTime(m map[string]any, key string, loc *time.Location) (*time.Time, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("incident: field %q: expected timestamp string, got %T", key, v)
	}
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc)
	if err != nil {
		return nil, fmt.Errorf("incident: field %q: %w", key, err)
	}
	return &t, nil
}
