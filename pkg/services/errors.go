// Package services holds the operations behind the HTTP API: starting,
// following and cancelling research sessions and reading stored reports.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a stored report does not exist for the caller.
	ErrNotFound = errors.New("not found")

	// ErrInvalidSession is returned for a session id that is unknown or
	// already cleaned up.
	ErrInvalidSession = errors.New("invalid session")

	// ErrUnavailable is returned when the service cannot accept more work.
	ErrUnavailable = errors.New("service unavailable")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
