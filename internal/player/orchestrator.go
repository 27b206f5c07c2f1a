// Package player implements the playback lifecycle state machine tying the
// resource handle, processing graph, reconnect supervisor, and visualizer
// feed together behind one control surface.
package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/rvirk/etherwave/internal/catalog"
	"github.com/rvirk/etherwave/internal/config"
	"github.com/rvirk/etherwave/internal/graph"
	"github.com/rvirk/etherwave/internal/proxy"
	"github.com/rvirk/etherwave/internal/reconnect"
	"github.com/rvirk/etherwave/internal/resource"
	"github.com/rvirk/etherwave/internal/visual"
)

var (
	// ErrUnknownSource means the source id is not in the catalog.
	ErrUnknownSource = errors.New("player: unknown source id")
	// ErrNoSession means a play or similar was requested with no source
	// selected.
	ErrNoSession = errors.New("player: no source selected")
	// ErrStopped means the orchestrator's event loop has shut down.
	ErrStopped = errors.New("player: orchestrator stopped")
)

// session is the unit of playback: one selected source, one resource
// handle, one retry budget. All fields are owned by the event loop.
type session struct {
	seq         int
	sourceID    string
	station     catalog.Station
	handle      *resource.Handle
	sup         *reconnect.Supervisor
	feed        *visual.Feed
	retryTimer  *time.Timer
	playGranted bool
	retrying    bool
}

// Orchestrator is the playback state machine. Every transition executes on
// the single event-loop goroutine started by Run; public methods post
// commands to it and wait for the reply. Mutual exclusion over the output
// sink is structural: there is exactly one session, so at most one can be
// playing.
type Orchestrator struct {
	cfg    *config.Config
	client *proxy.Client
	graph  *graph.Manager

	// OnSpectrum, when set before Run, receives each visualizer snapshot
	// while playback is active.
	OnSpectrum func([]byte)

	cmds chan func()
	done chan struct{}

	// loop-owned
	ctx     context.Context
	sess    *session
	state   State
	seq     int
	lastErr error
}

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	State             State
	SourceID          string
	Station           catalog.Station
	ReconnectAttempts int
	LastError         string
	Volume            float64
	Generation        uuid.UUID
}

// NewOrchestrator wires an orchestrator. Run must be called before any
// control method.
func NewOrchestrator(cfg *config.Config, client *proxy.Client, g *graph.Manager) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		client: client,
		graph:  g,
		cmds:   make(chan func(), 16),
		done:   make(chan struct{}),
		state:  StateIdle,
	}
	// decode errors and an exhausted sample chain surface here, tagged
	// with the generation that was pulling when they happened
	g.OnFailure = func(gen uuid.UUID, err error) {
		o.post(func() { o.handleGraphFailure(gen, err) })
	}
	return o
}

// Run consumes commands until ctx is cancelled, then destructively tears
// down whatever session is live. It must be called exactly once.
func (o *Orchestrator) Run(ctx context.Context) {
	o.ctx = ctx
	log.Printf("Player: orchestrator running")
	for {
		select {
		case <-ctx.Done():
			o.teardownSession(true)
			o.state = StateIdle
			close(o.done)
			log.Printf("Player: orchestrator stopped")
			return
		case cmd := <-o.cmds:
			cmd()
		}
	}
}

// do runs fn on the event loop and returns its error.
func (o *Orchestrator) do(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case o.cmds <- func() { errc <- fn() }:
	case <-o.done:
		return ErrStopped
	}
	select {
	case err := <-errc:
		return err
	case <-o.done:
		return ErrStopped
	}
}

// post schedules fn on the event loop without waiting. Used from callback
// and timer goroutines, which must never block on the loop.
func (o *Orchestrator) post(fn func()) {
	go func() {
		select {
		case o.cmds <- fn:
		case <-o.done:
		}
	}()
}

// Select switches playback to sourceID. Any current session is destroyed
// destructively first; the previous source can never reach the sink again.
func (o *Orchestrator) Select(sourceID string) error {
	return o.do(func() error { return o.selectSource(sourceID) })
}

func (o *Orchestrator) selectSource(sourceID string) error {
	station, ok := catalog.Lookup(sourceID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	o.teardownSession(true)
	o.lastErr = nil

	o.seq++
	sess := &session{
		seq:      o.seq,
		sourceID: sourceID,
		station:  station,
		handle:   resource.NewHandle(o.client, o.cfg.ReadyBytes),
		sup:      reconnect.NewSupervisor(o.cfg.ReconnectBase, o.cfg.ReconnectCap, o.cfg.ReconnectMax),
	}
	o.sess = sess
	o.state = StatePreparing
	log.Printf("Player: selected %s (%s)", sourceID, station.Title)

	seq := sess.seq
	sess.handle.OnReady(func() {
		o.post(func() { o.handleReady(seq) })
	})
	sess.handle.OnFailure(func(err error) {
		o.post(func() { o.handleFailure(seq, err) })
	})

	if err := sess.handle.Prepare(o.ctx, sourceID); err != nil {
		return o.enterError(err)
	}
	if err := o.graph.EnsureGraph(sess.handle); err != nil {
		return o.enterError(err)
	}
	return nil
}

// RequestPlay commits playback. g must come from a genuine user action;
// without one the request fails with ErrAutoplayRejected and is never
// retried internally. If the resource is not yet ready the play is queued
// in the handle's single pending slot and fires on readiness.
func (o *Orchestrator) RequestPlay(g *Gesture) error {
	return o.do(func() error {
		if err := g.consume(o.cfg.GestureWindow); err != nil {
			return err
		}
		if o.sess == nil {
			return ErrNoSession
		}
		if o.state == StateError {
			return fmt.Errorf("player: session failed: %v", o.lastErr)
		}
		seq := o.sess.seq
		o.sess.playGranted = true
		return o.sess.handle.CommitPlay(func() {
			o.post(func() { o.startPlaying(seq) })
		})
	})
}

// Deactivate is the non-destructive shutdown path: sample flow is
// suspended and the visualizer stops, but the session, its resource, and
// the generation all survive. A later RequestPlay resumes in place.
func (o *Orchestrator) Deactivate() error {
	return o.do(func() error {
		if o.sess != nil {
			o.stopFeed()
			o.sess.handle.Teardown(false)
		}
		o.graph.TeardownGraph(false)
		o.graph.Suspend()
		o.state = StateIdle
		log.Printf("Player: deactivated")
		return nil
	})
}

// Status returns a snapshot of the current state.
func (o *Orchestrator) Status() Status {
	var s Status
	o.do(func() error {
		s = Status{
			State:      o.state,
			Volume:     o.graph.Volume(),
			Generation: o.graph.GenerationID(),
		}
		if o.sess != nil {
			s.SourceID = o.sess.sourceID
			s.Station = o.sess.station
			s.ReconnectAttempts = o.sess.sup.Attempts()
		}
		if o.lastErr != nil {
			s.LastError = o.lastErr.Error()
		}
		return nil
	})
	return s
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	var st State
	o.do(func() error {
		st = o.state
		return nil
	})
	return st
}

// Spectrum returns the most recent visualizer snapshot, or nil when no
// feed has run yet.
func (o *Orchestrator) Spectrum() []byte {
	var b []byte
	o.do(func() error {
		if o.sess != nil && o.sess.feed != nil {
			b = o.sess.feed.Snapshot()
		}
		return nil
	})
	return b
}

// SetVolume adjusts the session volume. Safe at any time; the level also
// survives graph rebuilds.
func (o *Orchestrator) SetVolume(level float64) {
	o.graph.SetVolume(level)
}

// handleReady runs when the resource reports readiness. Stale sessions are
// discarded by the sequence guard.
func (o *Orchestrator) handleReady(seq int) {
	if o.sess == nil || o.sess.seq != seq {
		return
	}
	switch o.state {
	case StatePreparing:
		o.state = StateReady
		log.Printf("Player: %s ready", o.sess.sourceID)
	case StateReconnecting:
		// a reconnect re-reached readiness; replay without a fresh
		// gesture, still attributable to the original action
		if o.sess.playGranted {
			o.startPlaying(seq)
		} else {
			o.state = StateReady
		}
	}
}

// startPlaying moves the session into Playing: graph flow starts, the
// retry budget resets, the visualizer begins ticking.
func (o *Orchestrator) startPlaying(seq int) {
	if o.sess == nil || o.sess.seq != seq {
		return
	}
	sess := o.sess

	if err := o.graph.EnsureGraph(sess.handle); err != nil {
		o.enterError(err)
		return
	}
	o.graph.Resume()
	if err := o.graph.StartFlow(); err != nil {
		o.enterError(err)
		return
	}

	o.state = StatePlaying
	sess.sup.Reset()
	o.lastErr = nil

	o.stopFeed()
	sess.feed = visual.NewFeed(o.graph.Analyser(), o.cfg.VisualizerTick, o.OnSpectrum)
	sess.feed.Start()
	log.Printf("Player: playing %s", sess.sourceID)
}

// handleGraphFailure runs when the graph driver dies on its own. The
// generation tag discards reports from a driver that is no longer the
// current one. The handle load is invalidated so the retry re-issues it
// even when the byte stream itself never reported trouble.
func (o *Orchestrator) handleGraphFailure(gen uuid.UUID, cause error) {
	if o.sess == nil || o.graph.GenerationID() != gen {
		return
	}
	o.sess.handle.Invalidate()
	o.handleFailure(o.sess.seq, cause)
}

// handleFailure runs on stream failure. Retryable failures consume one
// reconnect attempt and arm the backoff timer; everything else is
// terminal.
func (o *Orchestrator) handleFailure(seq int, cause error) {
	if o.sess == nil || o.sess.seq != seq {
		return
	}
	sess := o.sess

	// one incident can be reported twice (byte stream and decoder);
	// while a retry is armed, the second report is the same failure
	if o.state == StateReconnecting && sess.retrying {
		return
	}

	// leaving Playing: the feed must be cancelled explicitly
	o.stopFeed()
	o.graph.Suspend()

	if proxy.IsTerminal(cause) {
		o.enterError(cause)
		return
	}

	delay, ok := sess.sup.Next()
	if !ok {
		o.enterError(fmt.Errorf("player: reconnect attempts exhausted after %d tries: %w",
			sess.sup.Attempts(), cause))
		return
	}

	// honor an explicit rate-limit hint when it exceeds our backoff
	var perr *proxy.Error
	if errors.As(cause, &perr) && perr.RetryAfter > delay {
		delay = perr.RetryAfter
	}

	o.state = StateReconnecting
	o.lastErr = cause
	sess.retrying = true
	log.Printf("Player: stream failed (%v), reconnect attempt %d in %v",
		cause, sess.sup.Attempts(), delay)

	sess.retryTimer = time.AfterFunc(delay, func() {
		o.post(func() { o.retry(seq) })
	})
}

// retry re-issues preparation for the same source after backoff.
func (o *Orchestrator) retry(seq int) {
	if o.sess == nil || o.sess.seq != seq || o.state != StateReconnecting {
		return
	}
	sess := o.sess
	sess.retrying = false
	log.Printf("Player: reconnecting to %s (attempt %d)", sess.sourceID, sess.sup.Attempts())
	if err := sess.handle.Prepare(o.ctx, sess.sourceID); err != nil {
		o.handleFailure(seq, err)
	}
}

// enterError is the terminal failure transition. The message is
// user-visible and the session stays inspectable until the next Select.
func (o *Orchestrator) enterError(cause error) error {
	o.stopFeed()
	o.state = StateError
	o.lastErr = cause
	log.Printf("Player: terminal error: %v", cause)
	return cause
}

// teardownSession destroys the current session. The sequence guard makes
// every in-flight callback of the old session a no-op, so the next
// session can never observe, or be observed by, the previous one.
func (o *Orchestrator) teardownSession(destructive bool) {
	if o.sess == nil {
		return
	}
	if o.sess.retryTimer != nil {
		o.sess.retryTimer.Stop()
		o.sess.retryTimer = nil
	}
	o.stopFeed()
	// handle first: closing its buffer unblocks a decoder stuck mid-read,
	// which the graph teardown then waits on
	o.sess.handle.Teardown(destructive)
	o.graph.TeardownGraph(destructive)
	if destructive {
		log.Printf("Player: session %s torn down", o.sess.sourceID)
		o.sess = nil
		o.state = StateIdle
	}
}

func (o *Orchestrator) stopFeed() {
	if o.sess != nil && o.sess.feed != nil {
		o.sess.feed.Stop()
		o.sess.feed = nil
	}
}
