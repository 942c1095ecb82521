// Package apperr defines the error taxonomy shared by the store, service and HTTP layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrAuth       = errors.New("unauthorized")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrInternal   = errors.New("internal error")
)

// Auth reports a missing or invalid caller identity.
func Auth(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuth, fmt.Sprintf(format, args...))
}

// Validation reports a missing or malformed input field.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound reports a referenced entity that does not exist.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Internal wraps a collaborator fault with the operation that hit it.
// Both ErrInternal and the cause stay reachable through errors.Is.
func Internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

// IsClientError reports whether err should be shown to the caller verbatim.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}
