// Package repo implements the data persistence layer for incident records,
// backed by GORM. This file provides the single-table incident store:
// last-write-wins upserts keyed by incident id, indexed date-range reads,
// and the age-based retention delete.
//
// All timestamps are persisted as zone-qualified RFC 3339 strings already
// converted to the fixed offset, so lexicographic ordering equals
// chronological ordering and the date key is a plain column prefix. The
// created_date column stores the day bucket explicitly and carries the index
// the range queries rely on.
//
// Error semantics:
//   - GetIncident returns ErrNotFound (gorm.ErrRecordNotFound) when the id
//     is absent.
//   - UpsertIncidents never fails the whole batch: per-record errors are
//     logged, the record is skipped, and the rest proceed.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/opspulse/incident-insights/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist. It aliases
// gorm.ErrRecordNotFound for consistency across services and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrMissingID rejects records without an identity; they cannot be keyed.
var ErrMissingID = errors.New("repo: incident has no id")

// incidentRow is the GORM mapping of one stored incident. Timestamp columns
// are RFC 3339 TEXT in the fixed offset; boolean columns are 0/1 integers,
// matching what SQLite hands back on read.
type incidentRow struct {
	ID          string `gorm:"column:id;primaryKey"`
	Title       string `gorm:"column:title;not null"`
	Status      string `gorm:"column:status;not null;index:idx_incidents_status"`
	ServiceID   string `gorm:"column:service_id;not null;index:idx_incidents_service_created,priority:1"`
	ServiceName string `gorm:"column:service_name;not null"`

	CreatedAt      string  `gorm:"column:created_at;not null;index:idx_incidents_service_created,priority:2"`
	CreatedDate    string  `gorm:"column:created_date;not null;index:idx_incidents_created_date"`
	ResolvedAt     *string `gorm:"column:resolved_at"`
	AcknowledgedAt *string `gorm:"column:acknowledged_at"`

	IsEscalated          int     `gorm:"column:is_escalated;not null;default:0;index:idx_incidents_escalated"`
	EscalationPolicyID   *string `gorm:"column:escalation_policy_id"`
	EscalationPolicyName *string `gorm:"column:escalation_policy_name"`

	Urgency     string  `gorm:"column:urgency;not null;default:low"`
	Priority    *string `gorm:"column:priority"`
	Description *string `gorm:"column:description"`

	ResolvedByCCOE int     `gorm:"column:resolved_by_ccoe;not null;default:0"`
	CausedByInfra  *string `gorm:"column:caused_by_infra"`

	// UpdatedAt is the server-side last-touched timestamp, set on every
	// upsert. It is distinct from any field of the record itself.
	UpdatedAt string `gorm:"column:updated_at"`
}

func (incidentRow) TableName() string { return "incidents" }

// toRow flattens a domain incident into its storage row, converting all
// timestamps into the fixed offset.
func toRow(inc domain.Incident, loc *time.Location) incidentRow {
	return incidentRow{
		ID:                   inc.ID,
		Title:                inc.Title,
		Status:               inc.Status,
		ServiceID:            inc.ServiceID,
		ServiceName:          inc.ServiceName,
		CreatedAt:            inc.CreatedAt.In(loc).Format(time.RFC3339),
		CreatedDate:          inc.DateKey(loc),
		ResolvedAt:           formatInLoc(inc.ResolvedAt, loc),
		AcknowledgedAt:       formatInLoc(inc.AcknowledgedAt, loc),
		IsEscalated:          boolToInt(inc.IsEscalated),
		EscalationPolicyID:   inc.EscalationPolicyID,
		EscalationPolicyName: inc.EscalationPolicyName,
		Urgency:              inc.Urgency,
		Priority:             inc.Priority,
		Description:          inc.Description,
		ResolvedByCCOE:       boolToInt(inc.ResolvedByCCOE),
		CausedByInfra:        inc.CausedByInfra,
	}
}

// incident rebuilds the domain record through the flat-map codec, which is
// where the 0/1 boolean and naive-timestamp tolerance lives.
func (r incidentRow) incident(loc *time.Location) (domain.Incident, error) {
	return domain.Deserialize(map[string]any{
		"id":                     r.ID,
		"title":                  r.Title,
		"status":                 r.Status,
		"service_id":             r.ServiceID,
		"service_name":           r.ServiceName,
		"created_at":             r.CreatedAt,
		"resolved_at":            strPtrAny(r.ResolvedAt),
		"acknowledged_at":        strPtrAny(r.AcknowledgedAt),
		"is_escalated":           r.IsEscalated,
		"escalation_policy_id":   strPtrAny(r.EscalationPolicyID),
		"escalation_policy_name": strPtrAny(r.EscalationPolicyName),
		"urgency":                r.Urgency,
		"priority":               strPtrAny(r.Priority),
		"description":            strPtrAny(r.Description),
		"resolved_by_ccoe":       r.ResolvedByCCOE,
		"caused_by_infra":        strPtrAny(r.CausedByInfra),
	}, loc)
}

// UpsertIncident inserts or fully replaces the record keyed by its id.
// The row's updated_at is stamped with the current time in the fixed offset.
func UpsertIncident(ctx context.Context, db *gorm.DB, inc domain.Incident, loc *time.Location) error {
	if inc.ID == "" {
		return ErrMissingID
	}
	row := toRow(inc, loc)
	row.UpdatedAt = time.Now().In(loc).Format(time.RFC3339)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

// UpsertIncidents applies UpsertIncident to each record independently and
// returns the number stored. A failure on one record is logged and skipped;
// it never aborts the batch. There is no cross-record transaction: a run
// interrupted mid-batch leaves a mix of old and new records, which is safe
// to re-run because upserts are idempotent by id.
func UpsertIncidents(ctx context.Context, db *gorm.DB, incs []domain.Incident, loc *time.Location) int {
	stored := 0
	for _, inc := range incs {
		if err := UpsertIncident(ctx, db, inc, loc); err != nil {
			log.Warn().Err(err).Str("incident_id", inc.ID).Msg("skipping incident: upsert failed")
			continue
		}
		stored++
	}
	return stored
}

// ListByDateRange returns all records whose day bucket falls within the
// inclusive [startDate, endDate] range (YYYY-MM-DD, fixed offset), optionally
// filtered to one service, ordered by creation timestamp descending.
func ListByDateRange(ctx context.Context, db *gorm.DB, startDate, endDate, serviceID string, loc *time.Location) ([]domain.Incident, error) {
	q := db.WithContext(ctx).
		Model(&incidentRow{}).
		Where("created_date BETWEEN ? AND ?", startDate, endDate)
	if serviceID != "" {
		q = q.Where("service_id = ?", serviceID)
	}
	var rows []incidentRow
	if err := q.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rowsToIncidents(rows, loc)
}

// ListLastNDays returns records created within the last n calendar days
// (today inclusive), computed in the fixed offset.
func ListLastNDays(ctx context.Context, db *gorm.DB, days int, serviceID string, loc *time.Location) ([]domain.Incident, error) {
	start, end := DayWindow(days, loc)
	return ListByDateRange(ctx, db, start, end, serviceID, loc)
}

// ListEscalatedLastNDays is ListLastNDays restricted to escalated records.
func ListEscalatedLastNDays(ctx context.Context, db *gorm.DB, days int, loc *time.Location) ([]domain.Incident, error) {
	start, end := DayWindow(days, loc)
	var rows []incidentRow
	err := db.WithContext(ctx).
		Model(&incidentRow{}).
		Where("created_date BETWEEN ? AND ?", start, end).
		Where("is_escalated = 1").
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToIncidents(rows, loc)
}

// GetIncident fetches a single record by id, or ErrNotFound.
func GetIncident(ctx context.Context, db *gorm.DB, id string, loc *time.Location) (*domain.Incident, error) {
	var row incidentRow
	if err := db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	inc, err := row.incident(loc)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// DistinctServiceIDs returns every service id present in the table.
func DistinctServiceIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&incidentRow{}).
		Distinct("service_id").
		Pluck("service_id", &ids).Error
	return ids, err
}

// CountIncidents returns the total number of stored records.
func CountIncidents(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&incidentRow{}).Count(&total).Error
	return total, err
}

// DeleteOlderThan permanently removes all records whose day bucket precedes
// today−days in the fixed offset and returns the number deleted. This is the
// store's only destructive operation; it is never reachable from a read path.
func DeleteOlderThan(ctx context.Context, db *gorm.DB, days int, loc *time.Location) (int64, error) {
	cutoff := time.Now().In(loc).AddDate(0, 0, -days).Format(domain.DateKeyLayout)
	res := db.WithContext(ctx).
		Where("created_date < ?", cutoff).
		Delete(&incidentRow{})
	return res.RowsAffected, res.Error
}

// DayWindow computes the inclusive [today−days, today] date-key range in the
// given fixed offset.
func DayWindow(days int, loc *time.Location) (startDate, endDate string) {
	now := time.Now().In(loc)
	endDate = now.Format(domain.DateKeyLayout)
	startDate = now.AddDate(0, 0, -days).Format(domain.DateKeyLayout)
	return startDate, endDate
}

func rowsToIncidents(rows []incidentRow, loc *time.Location) ([]domain.Incident, error) {
	out := make([]domain.Incident, 0, len(rows))
	for _, r := range rows {
		inc, err := r.incident(loc)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, nil
}

func formatInLoc(t *time.Time, loc *time.Location) *string {
	if t == nil {
		return nil
	}
	s := t.In(loc).Format(time.RFC3339)
	return &s
}

func strPtrAny(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
