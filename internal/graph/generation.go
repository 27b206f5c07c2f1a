// Package graph owns the audio processing context and its node chain:
// source (decode) -> analyser -> volume -> output sink. It enforces the
// two platform constraints that shape the whole engine: a resource is
// bound to exactly one source node for its entire life, and a closed
// generation is permanently dead -- none of its nodes can ever be wired
// into a newer generation.
package graph

import (
	"sync"

	"github.com/google/uuid"
)

// Generation is one instantiation of the processing context. All nodes
// built inside it share its id. Once closed it can never be revived.
type Generation struct {
	id uuid.UUID

	mu     sync.Mutex
	closed bool
}

func newGeneration() *Generation {
	return &Generation{id: uuid.New()}
}

// ID returns the generation id shared by every node in this generation.
func (g *Generation) ID() uuid.UUID {
	return g.id
}

// Closed reports whether this generation has been closed.
func (g *Generation) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Close closes the generation. Idempotent: closing an already-closed
// generation is a no-op, never an error.
func (g *Generation) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// node is anything owned by a generation. Wiring nodes from different
// generations together is forbidden.
type node interface {
	Generation() *Generation
}
