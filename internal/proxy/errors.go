package proxy

import (
	"errors"
	"fmt"
	"time"
)

// Error is a stream proxy failure mapped from an HTTP status.
type Error struct {
	SourceID   string
	Code       int
	Reason     string
	RetryAfter time.Duration // rate-limit hint, zero when absent
}

func (e *Error) Error() string {
	return fmt.Sprintf("stream %s: %s (status %d)", e.SourceID, e.Reason, e.Code)
}

// Retryable reports whether the failure is transient. Rate limiting and
// upstream unavailability can be retried; unknown or disallowed sources
// are terminal.
func (e *Error) Retryable() bool {
	switch e.Code {
	case 429, 503:
		return true
	}
	return e.Code >= 500 && e.Code != 501
}

// IsRetryable reports whether err allows another connection attempt.
// Plain network errors (no HTTP status at all) count as retryable.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}

// IsTerminal reports whether err must surface to the user without retry.
func IsTerminal(err error) bool {
	return !IsRetryable(err)
}
