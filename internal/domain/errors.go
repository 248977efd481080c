package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
	ErrConflict = errors.New("conflict")
	// ErrQuotaExceeded is returned when a company has no phone screens left on its plan.
	ErrQuotaExceeded = errors.New("phone screen quota exceeded")
)

// Invalid wraps ErrInvalid with the offending field.
func Invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalid, field, reason)
}
