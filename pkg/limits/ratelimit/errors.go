package ratelimit

import (
	"errors"
	"fmt"
)

// ErrDisposed is returned by Acquire when the bucket or limiter has been
// closed, either before the call or while the caller was waiting.
// Callers should treat it as fatal for the call path and not retry against
// the same instance.
var ErrDisposed = errors.New("rate limiter disposed")

// ValidationError reports an invalid window definition at construction time.
// A limiter is never created from a window that fails validation.
type ValidationError struct {
	// Window is the label of the offending window.
	Window string

	// Field is the window field that failed validation.
	Field string

	// Message describes what is wrong with the field.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Window == "" {
		return fmt.Sprintf("invalid window: %s %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid window %q: %s %s", e.Window, e.Field, e.Message)
}

// outcomeOf maps an Acquire error to the outcome label reported to a Recorder.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeAdmitted
	case errors.Is(err, ErrDisposed):
		return OutcomeDisposed
	default:
		return OutcomeCancelled
	}
}
