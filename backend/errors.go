package backend

import (
	"errors"
	"fmt"
)

// UnavailableError reports that the model service could not produce an
// answer: transport failure, rate limiting, server error or an empty reply.
type UnavailableError struct {
	Provider   string
	StatusCode int
	Cause      error
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("backend %s unavailable", e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// TimeoutError reports that the model service did not answer in time.
type TimeoutError struct {
	Provider string
	Cause    error
}

func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("backend %s timed out: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("backend %s timed out", e.Provider)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err is a transient backend failure. Flows
// never retry on their own; this is for callers that want to.
func IsRetryable(err error) bool {
	var unavailable *UnavailableError
	var timeout *TimeoutError
	return errors.As(err, &unavailable) || errors.As(err, &timeout)
}
