package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")

	// Auth errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Archive lifecycle errors.
	ErrAlreadyArchived      = errors.New("conversation already archived")
	ErrNotArchived          = errors.New("conversation is not archived")
	ErrArchiveInProgress    = errors.New("archive already in progress")
	ErrStorageInconsistency = errors.New("storage inconsistency")

	// Queue errors.
	ErrUnknownJobKind = errors.New("unknown job kind")
)

// ValidationError describes a missing or malformed request field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError is shorthand for &ValidationError{Field: field, Msg: msg}.
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// UpstreamError is returned when the completion provider answers with a
// non-success status. Status is passed through to the caller.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// JobProcessingError wraps a handler failure with the job kind and the
// delivery attempt it happened on.
type JobProcessingError struct {
	Kind    string
	Attempt int
	Err     error
}

func (e *JobProcessingError) Error() string {
	return fmt.Sprintf("job %s failed on attempt %d: %v", e.Kind, e.Attempt, e.Err)
}

func (e *JobProcessingError) Unwrap() error { return e.Err }
