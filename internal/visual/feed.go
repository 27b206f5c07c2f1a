package visual

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rvirk/etherwave/internal/graph"
)

// Feed drives the visualizer: while running it polls the analyser on a
// fixed tick and hands each byte-magnitude snapshot to the consumer. The
// snapshot buffer is allocated once and reused across ticks; consumers
// must not retain it past the callback.
type Feed struct {
	analyser *graph.AnalyserNode
	tick     time.Duration
	consume  func([]byte)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	latest []byte
}

// NewFeed creates a stopped feed. consume may be nil, in which case ticks
// are polled and discarded (the analyser ring still advances).
func NewFeed(analyser *graph.AnalyserNode, tick time.Duration, consume func([]byte)) *Feed {
	return &Feed{analyser: analyser, tick: tick, consume: consume}
}

// Start begins ticking. Starting an already-running feed is a no-op.
func (f *Feed) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx, f.done)
	log.Printf("Visual: feed started (%v tick, %d bins)", f.tick, f.analyser.Bins())
}

// Stop halts ticking and waits for the loop to exit. Stopping a stopped
// feed is a no-op.
func (f *Feed) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("Visual: feed stopped")
}

// Snapshot copies the most recent byte-magnitude snapshot. It returns nil
// before the first tick or after the feed was never started.
func (f *Feed) Snapshot() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return nil
	}
	out := make([]byte, len(f.latest))
	copy(out, f.latest)
	return out
}

// Running reports whether the feed is currently ticking.
func (f *Feed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancel != nil
}

func (f *Feed) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	buf := make([]byte, f.analyser.Bins())
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := f.analyser.ByteFrequencyData(buf)
			f.mu.Lock()
			f.latest = append(f.latest[:0], buf[:n]...)
			f.mu.Unlock()
			if f.consume != nil {
				f.consume(buf[:n])
			}
		}
	}
}
