// Package repo implements the data persistence layer for incident records,
// backed by GORM. This file provides the aggregate queries behind the
// metrics engine. Counts are pushed down into grouped SQL over the indexed
// created_date column; the table is never loaded into memory to count.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// WindowCounts are the scalar counts for one date-key window.
type WindowCounts struct {
	Total        int64
	Triggered    int64 // triggered or acknowledged
	Resolved     int64
	Escalated    int64
	CCOEResolved int64
	InfraCaused  int64
}

// ServiceWindowCounts are WindowCounts grouped by service.
type ServiceWindowCounts struct {
	ServiceID    string
	ServiceName  string
	Total        int64
	Triggered    int64
	Resolved     int64
	Escalated    int64
	CCOEResolved int64 `gorm:"column:ccoe_resolved"`
	InfraCaused  int64 `gorm:"column:infra_caused"`
}

// DailyCounts are WindowCounts grouped by day bucket.
type DailyCounts struct {
	Date         string
	Total        int64
	Triggered    int64
	Resolved     int64
	Escalated    int64
	CCOEResolved int64 `gorm:"column:ccoe_resolved"`
	InfraCaused  int64 `gorm:"column:infra_caused"`
}

// Status matching is case-insensitive, mirroring the domain predicates.
const countColumns = `
	COUNT(*) AS total,
	SUM(CASE WHEN LOWER(status) IN ('triggered', 'acknowledged') THEN 1 ELSE 0 END) AS triggered,
	SUM(CASE WHEN LOWER(status) = 'resolved' THEN 1 ELSE 0 END) AS resolved,
	SUM(CASE WHEN is_escalated = 1 THEN 1 ELSE 0 END) AS escalated,
	SUM(CASE WHEN resolved_by_ccoe = 1 THEN 1 ELSE 0 END) AS ccoe_resolved,
	SUM(CASE WHEN caused_by_infra IS NOT NULL AND TRIM(caused_by_infra) != '' THEN 1 ELSE 0 END) AS infra_caused`

// CountWindow returns all scalar counts for the inclusive [startDate,
// endDate] window in one grouped query, optionally scoped to one service.
// An empty window yields all-zero counts.
func CountWindow(ctx context.Context, db *gorm.DB, startDate, endDate, serviceID string) (WindowCounts, error) {
	q := db.WithContext(ctx).
		Model(&incidentRow{}).
		Select(countColumns).
		Where("created_date BETWEEN ? AND ?", startDate, endDate)
	if serviceID != "" {
		q = q.Where("service_id = ?", serviceID)
	}
	var row struct {
		Total        *int64
		Triggered    *int64
		Resolved     *int64
		Escalated    *int64
		CCOEResolved *int64 `gorm:"column:ccoe_resolved"`
		InfraCaused  *int64 `gorm:"column:infra_caused"`
	}
	if err := q.Scan(&row).Error; err != nil {
		return WindowCounts{}, err
	}
	return WindowCounts{
		Total:        deref(row.Total),
		Triggered:    deref(row.Triggered),
		Resolved:     deref(row.Resolved),
		Escalated:    deref(row.Escalated),
		CCOEResolved: deref(row.CCOEResolved),
		InfraCaused:  deref(row.InfraCaused),
	}, nil
}

// CountByService returns the per-service breakdown for the window, one row
// per service with at least one incident, ordered by total descending.
func CountByService(ctx context.Context, db *gorm.DB, startDate, endDate string) ([]ServiceWindowCounts, error) {
	var rows []ServiceWindowCounts
	err := db.WithContext(ctx).
		Model(&incidentRow{}).
		Select("service_id, service_name, "+countColumns).
		Where("created_date BETWEEN ? AND ?", startDate, endDate).
		Group("service_id, service_name").
		Order("total DESC").
		Scan(&rows).Error
	return rows, err
}

// CountByDay returns the per-day breakdown for the window, one row per
// distinct day with at least one incident, ordered by date descending.
// serviceID optionally scopes the trend to one service.
func CountByDay(ctx context.Context, db *gorm.DB, startDate, endDate, serviceID string) ([]DailyCounts, error) {
	q := db.WithContext(ctx).
		Model(&incidentRow{}).
		Select("created_date AS date, "+countColumns).
		Where("created_date BETWEEN ? AND ?", startDate, endDate)
	if serviceID != "" {
		q = q.Where("service_id = ?", serviceID)
	}
	var rows []DailyCounts
	err := q.Group("created_date").
		Order("created_date DESC").
		Scan(&rows).Error
	return rows, err
}

func deref(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
