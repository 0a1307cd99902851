package services

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitForState(t *testing.T, r *UpdateRunner, state string) UpdateStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st := r.Status(); st.State == state {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("runner never reached state %q (now %q)", state, r.Status().State)
	return UpdateStatus{}
}

func TestUpdateRunner_IdleBeforeFirstRun(t *testing.T) {
	r := &UpdateRunner{Log: zerolog.Nop()}
	if st := r.Status(); st.State != UpdateStateIdle {
		t.Fatalf("state = %q, want idle", st.State)
	}
	if r.Running() {
		t.Fatal("idle runner reports running")
	}
}

func TestUpdateRunner_SingleFlight(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})}
	svc, _ := newUpdateService(t, api)
	r := &UpdateRunner{Service: svc, Timeout: time.Minute, Log: zerolog.Nop()}

	if err := r.Start(UpdateRequest{Days: 1}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := r.Start(UpdateRequest{Days: 1}); !errors.Is(err, ErrUpdateInProgress) {
		t.Fatalf("second Start err = %v, want ErrUpdateInProgress", err)
	}
	if !r.Running() {
		t.Fatal("runner should report running")
	}

	close(api.block)
	st := waitForState(t, r, UpdateStateDone)
	if st.StartedAt == nil || st.FinishedAt == nil {
		t.Fatalf("timestamps missing: %+v", st)
	}

	// A finished runner accepts the next run.
	api.block = nil
	if err := r.Start(UpdateRequest{Days: 1}); err != nil {
		t.Fatalf("Start after completion: %v", err)
	}
	waitForState(t, r, UpdateStateDone)
}

func TestUpdateRunner_FailureIsReportedThroughStatus(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("remote down")}
	svc, _ := newUpdateService(t, api)
	r := &UpdateRunner{Service: svc, Timeout: time.Minute, Log: zerolog.Nop()}

	if err := r.Start(UpdateRequest{Days: 1}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := waitForState(t, r, UpdateStateFailed)
	if st.Error == "" {
		t.Fatal("failed status carries no error message")
	}
	if r.Running() {
		t.Fatal("failed runner still reports running")
	}
}

func TestUpdateRunner_TimeoutIsReportedAsSuch(t *testing.T) {
	api := &fakeAPI{block: make(chan struct{})} // never closed
	svc, _ := newUpdateService(t, api)
	r := &UpdateRunner{Service: svc, Timeout: 20 * time.Millisecond, Log: zerolog.Nop()}

	if err := r.Start(UpdateRequest{Days: 1}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := waitForState(t, r, UpdateStateFailed)
	if st.Error != "update timed out" {
		t.Fatalf("error = %q, want the timeout message", st.Error)
	}
}
