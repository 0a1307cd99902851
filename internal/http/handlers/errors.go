// Package handlers defines the HTTP-layer error codes used across endpoints.
//
// Codes are lowercase snake_case and stable: clients branch on them for
// programmatic handling, so renaming one is a breaking change. Generic codes
// mirror HTTP status semantics; domain-specific codes cover failures a status
// alone cannot convey.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeUnknownService   = "unknown_service"
	ErrCodeUpdateInProgress = "update_in_progress"
)
