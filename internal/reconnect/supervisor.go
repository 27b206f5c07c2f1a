// Package reconnect implements the bounded retry policy applied on
// stream failure.
package reconnect

import "time"

// DefaultMaxAttempts bounds how many reconnects are tried before the
// failure surfaces to the user.
const DefaultMaxAttempts = 3

// Supervisor tracks reconnect attempts for one playback session.
// The counter resets to zero on any successful transition into playback.
type Supervisor struct {
	base     time.Duration
	cap      time.Duration
	max      int
	attempts int
}

// NewSupervisor creates a supervisor with linear backoff: the nth attempt
// waits min(base*n, cap). max <= 0 falls back to DefaultMaxAttempts.
func NewSupervisor(base, cap time.Duration, max int) *Supervisor {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return &Supervisor{base: base, cap: cap, max: max}
}

// Next registers one more attempt and returns the backoff delay before it.
// The second return is false once attempts are exhausted; no further
// attempt may be made and the failure is terminal.
func (s *Supervisor) Next() (time.Duration, bool) {
	if s.attempts >= s.max {
		return 0, false
	}
	s.attempts++
	delay := s.base * time.Duration(s.attempts)
	if s.cap > 0 && delay > s.cap {
		delay = s.cap
	}
	return delay, true
}

// Attempts returns how many attempts have been registered since the last
// reset.
func (s *Supervisor) Attempts() int {
	return s.attempts
}

// Exhausted reports whether the retry budget is spent.
func (s *Supervisor) Exhausted() bool {
	return s.attempts >= s.max
}

// Reset clears the attempt counter. Called on every successful entry into
// the playing state.
func (s *Supervisor) Reset() {
	s.attempts = 0
}
