package database

import (
	"errors"
	"fmt"
)

// Domain errors raised by the repository. The API layer maps these to
// HTTP status codes, the gateway maps them to error events.
var (
	// ErrNotFound indicates the entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the entity exists but the caller is not a
	// participant. Callers at the HTTP boundary must not be able to
	// distinguish it from ErrNotFound; the two stay distinct internally
	// for logging.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates a domain rule violation, e.g. messaging
	// one's own listing or contacting a non-active listing.
	ErrConflict = errors.New("conflict")
)

// ValidationError indicates malformed input: empty or oversized
// content, non-UUID identifiers.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
