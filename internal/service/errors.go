package service

import (
	"errors"
	"fmt"
)

// ErrContention is returned when the bounded compare-and-swap retry loop
// is exhausted. Callers should treat it as an internal failure.
var ErrContention = errors.New("retries exhausted under contention")

// ValidationError reports a malformed or disallowed creation input.
// It is a client error and is never retried internally.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
