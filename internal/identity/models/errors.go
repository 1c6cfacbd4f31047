package models

import (
	"fmt"

	"idstore/pkg/platform/sentinel"
)

// ValidationError reports a required field that is absent or a length
// constraint that is exceeded. It names the offending field; values are
// rejected, never truncated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateKeyError reports a uniqueness violation on a field such as
// userName or email. It unwraps to sentinel.ErrConflict so callers can match
// either the typed error or the sentinel.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("%s is already taken", e.Field)
}

func (e *DuplicateKeyError) Unwrap() error { return sentinel.ErrConflict }

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
