package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rvirk/etherwave/internal/proxy"
	"github.com/rvirk/etherwave/internal/resource"
)

type nullSink struct {
	mu     sync.Mutex
	frames int
}

func (s *nullSink) Push(frame []int16) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

func newTestHandle(t *testing.T) *resource.Handle {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	h := resource.NewHandle(proxy.NewClient(srv.URL), 256)
	h.Prepare(context.Background(), "test-source")
	t.Cleanup(func() { h.Teardown(true) })
	return h
}

func newTestManager() *Manager {
	return NewManager(&nullSink{}, 256, 0.8, 20*time.Millisecond)
}

func TestEnsureGraphBuildsGeneration(t *testing.T) {
	m := newTestManager()
	h := newTestHandle(t)

	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}

	genID := m.GenerationID()
	if genID == uuid.Nil {
		t.Fatal("no generation after EnsureGraph")
	}
	if m.Analyser() == nil {
		t.Fatal("no analyser after EnsureGraph")
	}

	boundGen, bound := h.SourceBinding()
	if !bound {
		t.Fatal("handle not bound after EnsureGraph")
	}
	if boundGen != genID {
		t.Errorf("handle bound to %v, manager generation %v", boundGen, genID)
	}

	// all nodes share the generation
	if m.analyser.Generation().ID() != genID || m.volume.Generation().ID() != genID || m.source.Generation().ID() != genID {
		t.Error("nodes do not share one generation id")
	}
}

func TestSourceNodeCreatedOnce(t *testing.T) {
	m := newTestManager()
	h := newTestHandle(t)

	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}
	src := m.source

	// redundant setup invocations must reuse the source node
	for i := 0; i < 5; i++ {
		if err := m.EnsureGraph(h); err != nil {
			t.Fatalf("EnsureGraph %d: %v", i, err)
		}
		if m.source != src {
			t.Fatalf("EnsureGraph %d recreated the source node", i)
		}
	}
}

func TestClosedGenerationRebuild(t *testing.T) {
	m := newTestManager()
	h := newTestHandle(t)

	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}
	oldGen := m.GenerationID()
	oldSource, oldAnalyser, oldVolume := m.source, m.analyser, m.volume

	m.TeardownGraph(true)

	// the stale source reference is still set; only its generation
	// reveals that it is dead
	if m.source == nil {
		t.Fatal("stale source reference dropped; closed check would be untestable")
	}
	if !m.source.Generation().Closed() {
		t.Fatal("generation not closed after destructive teardown")
	}

	// a new session hands over a fresh handle
	h2 := newTestHandle(t)
	if err := m.EnsureGraph(h2); err != nil {
		t.Fatalf("EnsureGraph after close: %v", err)
	}

	newGen := m.GenerationID()
	if newGen == oldGen {
		t.Fatal("generation id unchanged after rebuild")
	}
	if m.gen.Closed() {
		t.Fatal("rebuilt generation is closed")
	}
	if m.source == oldSource || m.analyser == oldAnalyser || m.volume == oldVolume {
		t.Error("rebuilt graph contains a node from the closed generation")
	}
	for _, n := range []node{m.source, m.analyser, m.volume} {
		if n.Generation().ID() != newGen {
			t.Errorf("node belongs to generation %v, want %v", n.Generation().ID(), newGen)
		}
	}
}

func TestStaleHandleRefused(t *testing.T) {
	m := newTestManager()
	h := newTestHandle(t)

	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}
	m.TeardownGraph(true)

	// the old handle was bound in the closed generation and can never be
	// bound again
	if err := m.EnsureGraph(h); !errors.Is(err, ErrCrossGeneration) {
		t.Errorf("EnsureGraph with stale handle = %v, want ErrCrossGeneration", err)
	}
}

func TestNonDestructiveTeardownKeepsGeneration(t *testing.T) {
	m := newTestManager()
	h := newTestHandle(t)

	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}
	genID := m.GenerationID()

	m.TeardownGraph(false)

	if m.gen.Closed() {
		t.Fatal("non-destructive teardown closed the generation")
	}
	if m.GenerationID() != genID {
		t.Fatal("non-destructive teardown changed the generation")
	}
	if h.Paused() {
		t.Fatal("non-destructive teardown paused the resource")
	}
}

func TestDestructiveTeardownIdempotent(t *testing.T) {
	m := newTestManager()
	h := newTestHandle(t)

	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}

	m.TeardownGraph(true)
	if !m.gen.Closed() {
		t.Fatal("generation not closed")
	}
	// a second destructive teardown must be a silent no-op
	m.TeardownGraph(true)
	if !m.gen.Closed() {
		t.Fatal("generation state changed on repeated teardown")
	}
}

func TestVolumePreservedAcrossRebuild(t *testing.T) {
	m := newTestManager()
	h := newTestHandle(t)

	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}
	m.SetVolume(0.35)

	m.TeardownGraph(true)
	h2 := newTestHandle(t)
	if err := m.EnsureGraph(h2); err != nil {
		t.Fatalf("EnsureGraph after rebuild: %v", err)
	}

	if got := m.Volume(); got != 0.35 {
		t.Errorf("volume after rebuild = %v, want 0.35", got)
	}
}

func TestVolumeClamped(t *testing.T) {
	m := newTestManager()
	h := newTestHandle(t)
	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}

	m.SetVolume(1.5)
	if got := m.Volume(); got != 1 {
		t.Errorf("volume = %v, want clamped to 1", got)
	}
	m.SetVolume(-0.5)
	if got := m.Volume(); got != 0 {
		t.Errorf("volume = %v, want clamped to 0", got)
	}
}

func TestResumeClearsSuspension(t *testing.T) {
	m := newTestManager()
	h := newTestHandle(t)
	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}

	m.Suspend()
	if !m.Suspended() {
		t.Fatal("Suspend did not suspend")
	}
	m.Resume()
	if m.Suspended() {
		t.Fatal("Resume did not clear suspension")
	}
	// resume with nothing suspended stays harmless
	m.Resume()
	if m.Suspended() {
		t.Fatal("redundant Resume changed state")
	}
}

func TestLevelToExponent(t *testing.T) {
	tests := []struct {
		level float64
		want  float64
	}{
		{0, minVolumeDB},
		{1, 0},
		{1.2, 0},
	}
	for _, tt := range tests {
		if got := levelToExponent(tt.level); got != tt.want {
			t.Errorf("levelToExponent(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
	// mid levels attenuate but never below the floor
	mid := levelToExponent(0.5)
	if mid >= 0 || mid <= minVolumeDB {
		t.Errorf("levelToExponent(0.5) = %v, want within (%v, 0)", mid, minVolumeDB)
	}
}

func TestDriverFailureSurfacesAndDriverIsReplaced(t *testing.T) {
	// undecodable bytes, then the upstream goes away: the decoder hits
	// the closed buffer and errors out
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 512))
	}))
	t.Cleanup(srv.Close)
	h := resource.NewHandle(proxy.NewClient(srv.URL), 256)
	if err := h.Prepare(context.Background(), "test-source"); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	t.Cleanup(func() { h.Teardown(true) })

	m := newTestManager()
	failures := make(chan error, 8)
	m.OnFailure = func(gen uuid.UUID, err error) {
		if gen != m.GenerationID() {
			t.Errorf("failure tagged generation %v, current is %v", gen, m.GenerationID())
		}
		failures <- err
	}

	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}
	if err := m.StartFlow(); err != nil {
		t.Fatalf("StartFlow: %v", err)
	}

	select {
	case err := <-failures:
		if err == nil {
			t.Fatal("failure callback fired with nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("decode failure never surfaced")
	}

	// with the driver dead, StartFlow must put a live one in its place;
	// a live replacement hits the same dead stream and reports again
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := m.StartFlow(); err != nil {
			t.Fatalf("StartFlow after failure: %v", err)
		}
		select {
		case err := <-failures:
			if err == nil {
				t.Fatal("failure callback fired with nil error")
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no failure after restarting flow on a dead driver")
		}
	}
}
