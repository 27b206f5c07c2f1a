// Package stream is the output side of the engine: the singular frame
// sink, fanned out to HTTP and WebRTC listeners.
package stream

import (
	"sync"
)

// listenerBuffer is ~3 seconds of 20ms frames.
const listenerBuffer = 150

// Broadcaster is the process-wide output sink. The graph driver is its
// only producer; frames are fanned out to however many listeners are
// connected.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C    chan []int16 // 20ms PCM frames
	done chan struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Push fans one frame out to all listeners. It implements the graph's
// frame sink. Slow listeners get frames dropped rather than stalling the
// real-time pull loop.
func (b *Broadcaster) Push(frame []int16) {
	b.mu.RLock()
	for l := range b.listeners {
		select {
		case l.C <- frame:
		default:
			// listener too slow, drop the frame
		}
	}
	b.mu.RUnlock()
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, listenerBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, present := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if present {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
