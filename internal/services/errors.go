// Package services contains the application services sitting between the
// HTTP/CLI surfaces and the persistence and remote-API layers: the metrics
// engine, the fetch-and-store update pipeline, and the background update
// runner. This file defines the predictable service-level errors handlers
// map to HTTP results.
package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUpdateInProgress is returned when an update run is requested while a
// previous run has not finished. Update runs are single-flight.
var ErrUpdateInProgress = errors.New("update already in progress")

// UnknownServiceIDsError is the validation failure for caller-supplied
// service ids that do not exist in the directory. It names every offending
// id; nothing is fetched when it is returned.
type UnknownServiceIDsError struct {
	IDs       []string
	Available []string
}

func (e *UnknownServiceIDsError) Error() string {
	return fmt.Sprintf("unknown service ids: %s (available: %s)",
		strings.Join(e.IDs, ", "), strings.Join(e.Available, ", "))
}
