package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers are expected to branch on.
var (
	// ErrNotFound indicates a query for a nonexistent report or subject.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable indicates the object store rejected or failed an
	// upload. The submission is aborted before any report row is created, so
	// retrying the whole submission is safe.
	ErrStorageUnavailable = errors.New("object storage unavailable")

	// ErrMatchEngine indicates the match engine failed or timed out. It never
	// propagates to the submitter; it resolves into a FAILED report status.
	ErrMatchEngine = errors.New("match engine failure")
)

// ValidationError is a caller-fault input error, surfaced immediately and
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
