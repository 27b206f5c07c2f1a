package player

import (
	"errors"
	"sync"
	"time"
)

// ErrAutoplayRejected means a play request could not be attributed to a
// genuine user action. It is never retried internally; the caller must
// re-invoke RequestPlay from a fresh action.
var ErrAutoplayRejected = errors.New("player: play not attributable to a user action")

// Gesture is a single-use proof that a play request originates from a real
// user action. It expires after the configured window and is consumed by
// its first use, successful or not.
type Gesture struct {
	mintedAt time.Time

	mu   sync.Mutex
	used bool
}

// UserGesture mints a gesture. Call it at the point where the user action
// actually arrives (an HTTP handler, a key press), never speculatively.
func UserGesture() *Gesture {
	return &Gesture{mintedAt: time.Now()}
}

// consume spends the gesture. A nil, already-spent, or expired gesture
// yields ErrAutoplayRejected.
func (g *Gesture) consume(window time.Duration) error {
	if g == nil {
		return ErrAutoplayRejected
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.used {
		return ErrAutoplayRejected
	}
	g.used = true
	if window > 0 && time.Since(g.mintedAt) > window {
		return ErrAutoplayRejected
	}
	return nil
}
