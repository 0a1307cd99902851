// Package services – UpdateRunner
//
// The runner wraps UpdateService for the admin trigger endpoint: it executes
// one run at a time in the background under a bounded timeout, and exposes
// the status of the current or most recent run. The original deployment
// shelled out to a separate updater process here; running the pipeline
// in-process keeps the same single-flight and timeout semantics without the
// subprocess glue.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Update run states.
const (
	UpdateStateIdle    = "idle"
	UpdateStateRunning = "running"
	UpdateStateDone    = "done"
	UpdateStateFailed  = "failed"
)

// UpdateStatus is a snapshot of the current or most recent run.
type UpdateStatus struct {
	State      string        `json:"state"`
	Days       int           `json:"days,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Result     *UpdateResult `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// UpdateRunner serializes background update runs.
type UpdateRunner struct {
	Service *UpdateService
	Timeout time.Duration
	Log     zerolog.Logger

	mu      sync.Mutex
	running bool
	status  UpdateStatus
}

// Start launches a background run for the request, bounded by the runner's
// timeout. It returns ErrUpdateInProgress while a previous run is active.
// Validation errors (unknown service ids, bad dates) are reported through
// Status once the run fails, not synchronously.
func (r *UpdateRunner) Start(req UpdateRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrUpdateInProgress
	}
	started := time.Now()
	r.running = true
	r.status = UpdateStatus{
		State:     UpdateStateRunning,
		Days:      req.Days,
		StartedAt: &started,
	}

	go r.run(req)
	return nil
}

func (r *UpdateRunner) run(req UpdateRequest) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := r.Service.Run(ctx, req)
	finished := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.status.FinishedAt = &finished
	r.status.Result = result
	if err != nil {
		r.status.State = UpdateStateFailed
		r.status.Error = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			r.status.Error = "update timed out"
		}
		r.Log.Error().Err(err).Msg("background update failed")
		return
	}
	r.status.State = UpdateStateDone
}

// Status returns a snapshot of the current or most recent run. Before any
// run it reports the idle state.
func (r *UpdateRunner) Status() UpdateStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State == "" {
		return UpdateStatus{State: UpdateStateIdle}
	}
	return r.status
}

// Running reports whether a run is currently active.
func (r *UpdateRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
