package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports an action rejected locally, before any
// network call. The selection is left untouched and the user is shown
// a warning.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ServiceError reports a failed DataService call: a transport failure
// or a non-2xx response normalized to a message. Transient — the
// workflow continues from its last valid state and the user may retry.
type ServiceError struct {
	Endpoint string
	Status   int // HTTP status, 0 for transport errors
	Msg      string
}

func (e *ServiceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Msg)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.Status, e.Msg)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsService reports whether err is (or wraps) a ServiceError.
func IsService(err error) bool {
	var s *ServiceError
	return errors.As(err, &s)
}
