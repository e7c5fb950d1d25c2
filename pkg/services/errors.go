package services

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every service. The API layer translates them
// into HTTP status codes in pkg/api.
var (
	// ErrNotFound marks lookups of rows that do not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists marks inserts that collide with an existing row,
	// such as registering a channel URL twice.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput marks request payloads rejected before touching
	// the database.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError rejects a single request field with a reason.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
