package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or contradictory request input. It is
// raised before any collaborator is called.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CollaboratorError reports a failure in the record store or the result cache.
type CollaboratorError struct {
	Collaborator string // "record source" or "result cache"
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// IsCollaborator reports whether err is, or wraps, a CollaboratorError.
func IsCollaborator(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}

// DataIntegrityWarning describes a record skipped because its coordinates
// are missing or invalid. It is reported to the caller, never raised.
type DataIntegrityWarning struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

func (w DataIntegrityWarning) String() string {
	return fmt.Sprintf("event %s skipped: %s", w.EventID, w.Reason)
}
