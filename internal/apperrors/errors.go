// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
//
// The orchestrator never retries any of these internally; retry policy
// belongs to the caller. The split between ErrEndpointUnreachable and
// ErrRemoteRejected exists so callers can retry the former against a
// different endpoint while surfacing the latter verbatim.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrStorage             = errors.New("storage error")
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
	ErrRemoteRejected      = errors.New("remote rejected")
	ErrTimeout             = errors.New("timeout")
	ErrMalformedResponse   = errors.New("malformed response")
	ErrInternal            = errors.New("internal error")
)

// Error provides a structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "cloth_type", "seed")
	Endpoint string // Compute endpoint involved, if any
	Op       string // Operation that failed (e.g., "store.put")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel and cause for errors.Is() classification.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Sentinel, e.Cause}
	}
	return []error{e.Sentinel}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for an object key.
func NotFound(key string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("object %s not found", key),
	}
}

// Storage creates a storage error wrapping an underlying cause.
func Storage(op string, cause error) error {
	return &Error{
		Sentinel: ErrStorage,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Unreachable creates a connection-level endpoint error. Callers may retry
// the job against a different endpoint.
func Unreachable(endpoint string, cause error) error {
	return &Error{
		Sentinel: ErrEndpointUnreachable,
		Message:  fmt.Sprintf("endpoint %s unreachable: %v", endpoint, cause),
		Endpoint: endpoint,
		Cause:    cause,
	}
}

// RemoteRejected creates an application-level worker error, surfaced verbatim.
func RemoteRejected(endpoint string, status int, body string) error {
	return &Error{
		Sentinel: ErrRemoteRejected,
		Message:  fmt.Sprintf("endpoint %s returned %d: %s", endpoint, status, body),
		Endpoint: endpoint,
	}
}

// Timeout creates a deadline-elapsed error. The worker may still be running.
func Timeout(op string) error {
	return &Error{
		Sentinel: ErrTimeout,
		Message:  fmt.Sprintf("%s: deadline elapsed", op),
		Op:       op,
	}
}

// Malformed creates an error for a worker response missing expected fields.
// Fatal for the job; never silently defaulted.
func Malformed(endpoint, detail string) error {
	return &Error{
		Sentinel: ErrMalformedResponse,
		Message:  fmt.Sprintf("endpoint %s: %s", endpoint, detail),
		Endpoint: endpoint,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
