package repo

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/opspulse/incident-insights/internal/domain"
)

// seedStats stores a known population: today four incidents on two services
// (two escalated, one CCOE-resolved, one infra-caused), yesterday one
// resolved incident.
func seedStats(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	ctx := context.Background()

	infra := "storage"

	a1 := makeIncident("A1", "PABC123", 0)
	a1.IsEscalated = true

	a2 := makeIncident("A2", "PABC123", 0)
	a2.Status = domain.StatusResolved
	a2.ResolvedByCCOE = true

	x1 := makeIncident("X1", "PXYZ789", 0)
	x1.IsEscalated = true
	x1.CausedByInfra = &infra

	x2 := makeIncident("X2", "PXYZ789", 0)
	x2.Status = domain.StatusAcknowledged

	y1 := makeIncident("Y1", "PABC123", 1)
	y1.Status = domain.StatusResolved

	if stored := UpsertIncidents(ctx, db, []domain.Incident{a1, a2, x1, x2, y1}, testLoc); stored != 5 {
		t.Fatalf("seed stored = %d, want 5", stored)
	}
	return db
}

func TestCountWindow_TodayOnly(t *testing.T) {
	db := seedStats(t)
	start, end := DayWindow(0, testLoc)

	counts, err := CountWindow(context.Background(), db, start, end, "")
	if err != nil {
		t.Fatalf("CountWindow: %v", err)
	}
	if counts.Total != 4 {
		t.Errorf("Total = %d, want 4", counts.Total)
	}
	if counts.Triggered != 3 { // triggered or acknowledged
		t.Errorf("Triggered = %d, want 3", counts.Triggered)
	}
	if counts.Resolved != 1 {
		t.Errorf("Resolved = %d, want 1", counts.Resolved)
	}
	if counts.Escalated != 2 {
		t.Errorf("Escalated = %d, want 2", counts.Escalated)
	}
	if counts.CCOEResolved != 1 {
		t.Errorf("CCOEResolved = %d, want 1", counts.CCOEResolved)
	}
	if counts.InfraCaused != 1 {
		t.Errorf("InfraCaused = %d, want 1", counts.InfraCaused)
	}
}

func TestCountWindow_ServiceScope(t *testing.T) {
	db := seedStats(t)
	start, end := DayWindow(0, testLoc)

	counts, err := CountWindow(context.Background(), db, start, end, "PXYZ789")
	if err != nil {
		t.Fatalf("CountWindow: %v", err)
	}
	if counts.Total != 2 || counts.Escalated != 1 {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestCountWindow_EmptyWindowIsZero(t *testing.T) {
	db := newTestDB(t)
	counts, err := CountWindow(context.Background(), db, "2001-01-01", "2001-01-31", "")
	if err != nil {
		t.Fatalf("CountWindow: %v", err)
	}
	if counts != (WindowCounts{}) {
		t.Fatalf("empty window should be all zeros: %+v", counts)
	}
}

func TestCountByService_OrderedByTotal(t *testing.T) {
	db := seedStats(t)
	start, end := DayWindow(1, testLoc)

	rows, err := CountByService(context.Background(), db, start, end)
	if err != nil {
		t.Fatalf("CountByService: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// PABC123 has 3 incidents across the window, PXYZ789 has 2.
	if rows[0].ServiceID != "PABC123" || rows[0].Total != 3 {
		t.Fatalf("rows[0] = %+v", rows[0])
	}
	if rows[1].ServiceID != "PXYZ789" || rows[1].Escalated != 1 {
		t.Fatalf("rows[1] = %+v", rows[1])
	}
	if rows[0].CCOEResolved != 1 {
		t.Errorf("ccoe_resolved scan lost: %+v", rows[0])
	}
}

func TestCountByDay_NewestFirst(t *testing.T) {
	db := seedStats(t)
	start, end := DayWindow(1, testLoc)

	rows, err := CountByDay(context.Background(), db, start, end, "")
	if err != nil {
		t.Fatalf("CountByDay: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 distinct days", len(rows))
	}
	if rows[0].Date <= rows[1].Date {
		t.Fatalf("dates not descending: %q then %q", rows[0].Date, rows[1].Date)
	}
	if rows[0].Total != 4 || rows[1].Total != 1 {
		t.Fatalf("totals = %d, %d", rows[0].Total, rows[1].Total)
	}
}

func TestCountByDay_ServiceScope(t *testing.T) {
	db := seedStats(t)
	start, end := DayWindow(1, testLoc)

	rows, err := CountByDay(context.Background(), db, start, end, "PXYZ789")
	if err != nil {
		t.Fatalf("CountByDay: %v", err)
	}
	if len(rows) != 1 || rows[0].Total != 2 {
		t.Fatalf("rows = %+v", rows)
	}
}
