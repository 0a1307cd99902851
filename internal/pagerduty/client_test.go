package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func testClient(baseURL string, pageSize int) *Client {
	return NewClient(Config{
		BaseURL:  baseURL,
		Token:    "tok-secret",
		PageSize: pageSize,
		Retry:    RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
	})
}

func TestListIncidents_PaginatesUntilMoreIsFalse(t *testing.T) {
	var gotAuth, gotAccept string
	var offsets []int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, offset)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit != 2 {
			t.Errorf("limit = %d, want 2", limit)
		}

		// Three incidents across two pages.
		type page struct {
			Incidents []RawIncident `json:"incidents"`
			More      bool          `json:"more"`
		}
		var p page
		switch offset {
		case 0:
			p = page{Incidents: []RawIncident{{ID: "A"}, {ID: "B"}}, More: true}
		case 2:
			p = page{Incidents: []RawIncident{{ID: "C"}}, More: false}
		default:
			t.Errorf("unexpected offset %d", offset)
		}
		_ = json.NewEncoder(w).Encode(p)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 2)
	incs, err := c.ListIncidents(context.Background(), ListQuery{
		ServiceIDs: []string{"PABC123"},
		Since:      time.Now().Add(-24 * time.Hour),
		Until:      time.Now(),
	})
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if len(incs) != 3 || incs[0].ID != "A" || incs[2].ID != "C" {
		t.Fatalf("incidents = %+v", incs)
	}
	if len(offsets) != 2 || offsets[1] != 2 {
		t.Fatalf("offsets = %v", offsets)
	}
	if gotAuth != "Token token=tok-secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "application/vnd.pagerduty+json;version=2" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestListIncidents_EmptyWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"incidents": [], "more": false}`)
	}))
	defer srv.Close()

	incs, err := testClient(srv.URL, 100).ListIncidents(context.Background(), ListQuery{})
	if err != nil {
		t.Fatalf("ListIncidents: %v", err)
	}
	if len(incs) != 0 {
		t.Fatalf("expected no incidents, got %d", len(incs))
	}
}

func TestListIncidents_ServerErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 100).ListIncidents(context.Background(), ListQuery{})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	if calls != 1 {
		t.Errorf("listing must not retry; got %d calls", calls)
	}
}

func TestEscalated_DetectsEscalateLogEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/incidents/Q1/log_entries" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"log_entries": [
			{"type": "trigger_log_entry"},
			{"type": "escalate_log_entry"},
			{"type": "resolve_log_entry"}
		]}`)
	}))
	defer srv.Close()

	escalated, err := testClient(srv.URL, 100).Escalated(context.Background(), "Q1")
	if err != nil {
		t.Fatalf("Escalated: %v", err)
	}
	if !escalated {
		t.Fatal("expected escalated=true")
	}
}

func TestEscalated_FalseWithoutEscalateEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"log_entries": [{"type": "trigger_log_entry"}]}`)
	}))
	defer srv.Close()

	escalated, err := testClient(srv.URL, 100).Escalated(context.Background(), "Q1")
	if err != nil {
		t.Fatalf("Escalated: %v", err)
	}
	if escalated {
		t.Fatal("expected escalated=false")
	}
}

func TestEscalated_RetriesThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"log_entries": [{"type": "escalate_log_entry"}]}`)
	}))
	defer srv.Close()

	escalated, err := testClient(srv.URL, 100).Escalated(context.Background(), "Q1")
	if err != nil {
		t.Fatalf("Escalated after retries: %v", err)
	}
	if !escalated || calls != 3 {
		t.Fatalf("escalated=%v calls=%d", escalated, calls)
	}
}

func TestEscalated_ExhaustsRetryBudget(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, 100).Escalated(context.Background(), "Q1")
	if err == nil {
		t.Fatal("expected error after retry exhaustion")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestCustomFields_ExtractsAndNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/incidents/Q1/custom_fields/values" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"custom_fields": [
			{"name": "resolution", "value": "  CCOE "},
			{"name": "prelim_root_cause", "value": "Network Partition"},
			{"name": "unrelated", "value": "ignored"},
			{"name": "numeric", "value": 7}
		]}`)
	}))
	defer srv.Close()

	fields, err := testClient(srv.URL, 100).CustomFields(context.Background(), "Q1")
	if err != nil {
		t.Fatalf("CustomFields: %v", err)
	}
	if fields.Resolution == nil || *fields.Resolution != "ccoe" {
		t.Errorf("Resolution = %v", fields.Resolution)
	}
	if fields.PrelimRootCause == nil || *fields.PrelimRootCause != "network partition" {
		t.Errorf("PrelimRootCause = %v", fields.PrelimRootCause)
	}
}

func TestCustomFields_EmptyValuesAreAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"custom_fields": [
			{"name": "resolution", "value": "   "},
			{"name": "prelim_root_cause", "value": null}
		]}`)
	}))
	defer srv.Close()

	fields, err := testClient(srv.URL, 100).CustomFields(context.Background(), "Q1")
	if err != nil {
		t.Fatalf("CustomFields: %v", err)
	}
	if fields.Resolution != nil || fields.PrelimRootCause != nil {
		t.Fatalf("blank values should stay absent: %+v", fields)
	}
}

func TestRetryPolicy_ContextCancellationStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := RetryPolicy{MaxAttempts: 3, Delay: time.Hour}
	var calls int
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no waiting on a dead context)", calls)
	}
}
