package graph

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gopxl/beep/v2"

	"github.com/rvirk/etherwave/internal/audio"
	"github.com/rvirk/etherwave/internal/resource"
)

// ErrCrossGeneration means a node from a closed generation was about to be
// wired into a newer one. The manager's build order makes this impossible;
// the check exists so the invariant is enforced, not assumed.
var ErrCrossGeneration = errors.New("graph: node belongs to a different generation")

// FrameSink receives the 20ms PCM frames the graph produces. The sink is
// process-wide and singular; the manager's driver is its only producer.
type FrameSink interface {
	Push(frame []int16)
}

// Manager owns the processing graph. It is the only component permitted to
// create or close a generation.
type Manager struct {
	sink    FrameSink
	fftSize int
	fadeIn  int // samples

	// OnFailure is invoked from the driver goroutine when sample flow
	// dies on its own (decode error, exhausted chain), tagged with the
	// generation that was playing. Set before the first StartFlow and
	// leave it alone afterwards.
	OnFailure func(generation uuid.UUID, err error)

	// pullMu serializes the driver's sample pulls with control-surface
	// mutations of the chain, the same way beep's speaker lock does
	pullMu sync.Mutex

	mu       sync.Mutex
	gen      *Generation
	source   *SourceNode
	analyser *AnalyserNode
	volume   *VolumeNode
	ctrl     *beep.Ctrl
	level    float64
	driver   *driver
}

// NewManager creates a graph manager pushing frames into sink.
func NewManager(sink FrameSink, fftSize int, initialVolume float64, fadeIn time.Duration) *Manager {
	return &Manager{
		sink:    sink,
		fftSize: fftSize,
		fadeIn:  int(beep.SampleRate(audio.SampleRate).N(fadeIn)),
		level:   initialVolume,
	}
}

// EnsureGraph guarantees a valid graph for h. The closed-generation check
// inspects the source node's own owning generation: a stale node reference
// from a closed generation looks healthy until a connection is attempted,
// so the reference alone proves nothing.
//
// With an open generation bound to the same still-alive handle, the source
// node is reused unconditionally (it cannot be recreated) and only the
// downstream nodes are rebuilt if needed. Otherwise a whole new generation
// is built: context, source, analyser, volume, wired source->analyser->
// volume->sink.
func (m *Manager) EnsureGraph(h *resource.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.source != nil && !m.source.Generation().Closed() {
		if m.source.Handle() == h {
			return m.buildDownstream()
		}
		// a different resource on a still-open generation is a genuine
		// resource change: retire the old generation first
		m.closeGeneration()
	}

	gen := newGeneration()

	// a handle that was ever bound in another generation can never be
	// bound again -- the session owning it must hand over a fresh handle
	if boundGen, bound := h.SourceBinding(); bound && boundGen != gen.ID() {
		return ErrCrossGeneration
	}
	if err := h.BindSource(gen.ID()); err != nil {
		return err
	}

	m.gen = gen
	m.source = newSourceNode(gen, h)
	m.analyser = nil
	m.volume = nil
	m.ctrl = nil
	log.Printf("Graph: new generation %s for source %s", gen.ID(), h.SourceID())

	return m.buildDownstream()
}

// buildDownstream rebuilds analyser and volume when they are missing or
// belong to an older generation. Callers hold m.mu.
func (m *Manager) buildDownstream() error {
	if m.analyser != nil && m.analyser.Generation() == m.gen {
		return nil
	}

	if err := checkSameGeneration(m.gen, m.source); err != nil {
		return err
	}

	analyser, err := newAnalyserNode(m.gen, m.source, m.fftSize)
	if err != nil {
		return err
	}
	volume := newVolumeNode(m.gen, analyser, m.level)

	if err := checkSameGeneration(m.gen, analyser, volume); err != nil {
		return err
	}

	m.analyser = analyser
	m.volume = volume
	m.ctrl = &beep.Ctrl{Streamer: volume}
	return nil
}

// checkSameGeneration refuses any node not owned by gen.
func checkSameGeneration(gen *Generation, nodes ...node) error {
	for _, n := range nodes {
		if n.Generation() != gen {
			return ErrCrossGeneration
		}
	}
	return nil
}

// StartFlow begins (or resumes) pushing audio into the sink. Called on
// every commit-play: resume must always be attempted because suspension
// can recur independently of graph rebuilds.
func (m *Manager) StartFlow() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctrl == nil || m.gen == nil || m.gen.Closed() {
		return errors.New("graph: no open generation to play")
	}

	m.resumeLocked()

	if m.driver != nil {
		select {
		case <-m.driver.done:
			// the driver died on its own, so its decoder state is
			// suspect; reset it before a replacement pulls samples
			m.driver = nil
			m.source.resetDecoder()
		default:
		}
	}

	if m.driver == nil {
		var fail func(error)
		if cb := m.OnFailure; cb != nil {
			genID := m.gen.ID()
			fail = func(err error) { cb(genID, err) }
		}
		m.driver = startDriver(m.source, m.ctrl, &m.pullMu, m.sink, m.fadeIn, fail)
	} else {
		m.driver.restartFade()
	}
	return nil
}

// Resume clears suspension if the context is suspended. Safe to call at
// any time.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.resumeLocked()
	m.mu.Unlock()
}

func (m *Manager) resumeLocked() {
	if m.ctrl == nil {
		return
	}
	m.pullMu.Lock()
	m.ctrl.Paused = false
	m.pullMu.Unlock()
}

// Suspend pauses sample flow without touching the generation.
func (m *Manager) Suspend() {
	m.mu.Lock()
	if m.ctrl != nil {
		m.pullMu.Lock()
		m.ctrl.Paused = true
		m.pullMu.Unlock()
	}
	m.mu.Unlock()
}

// TeardownGraph tears the graph down. Destructive teardown closes the
// current generation (a no-op when already closed; close errors are
// swallowed as non-fatal). Non-destructive teardown must not close the
// generation: closing it would silently disconnect audio from the sink
// while playback still looks alive from the resource's point of view.
func (m *Manager) TeardownGraph(destructive bool) {
	if !destructive {
		return
	}

	m.mu.Lock()
	m.closeGeneration()
	m.mu.Unlock()
}

// closeGeneration stops the driver and closes the open generation.
// Callers hold m.mu.
func (m *Manager) closeGeneration() {
	if m.driver != nil {
		m.driver.stop()
		m.driver = nil
	}
	if m.gen != nil && !m.gen.Closed() {
		m.gen.Close()
		log.Printf("Graph: generation %s closed", m.gen.ID())
	}
	if m.source != nil {
		m.source.close()
		m.source.Handle().Detach()
	}
	// node references deliberately survive: the next EnsureGraph must
	// detect the closed generation through them, not through nilness
}

// Analyser returns the current analysis node, or nil without a graph.
func (m *Manager) Analyser() *AnalyserNode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyser
}

// SetVolume sets the session volume level in [0, 1]. The value also seeds
// the volume node of any future generation.
func (m *Manager) SetVolume(level float64) {
	m.mu.Lock()
	m.level = level
	if m.volume != nil {
		m.volume.SetLevel(level)
		m.level = m.volume.Level()
	}
	m.mu.Unlock()
}

// Volume returns the session volume level.
func (m *Manager) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.volume != nil {
		return m.volume.Level()
	}
	return m.level
}

// GenerationID returns the current generation id, or uuid.Nil without one.
func (m *Manager) GenerationID() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == nil {
		return uuid.Nil
	}
	return m.gen.ID()
}

// Suspended reports whether sample flow is currently suspended.
func (m *Manager) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctrl == nil {
		return false
	}
	m.pullMu.Lock()
	defer m.pullMu.Unlock()
	return m.ctrl.Paused
}
