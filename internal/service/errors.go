package service

import (
	"errors"
	"fmt"

	"medprep/internal/validation"
)

var (
	// ErrNotFound is returned when a record does not exist or belongs to another owner
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input; the wrapped error is a validation.Error
	ErrValidation = errors.New("validation failed")
)

// invalid wraps a validation failure so callers can match ErrValidation and still
// read the offending field with errors.As
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func requireOwner(ownerID string) error {
	return invalid(validation.ValidateRequired("ownerId", ownerID))
}
