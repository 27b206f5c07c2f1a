package visual

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rvirk/etherwave/internal/graph"
	"github.com/rvirk/etherwave/internal/proxy"
	"github.com/rvirk/etherwave/internal/resource"
)

type discardSink struct{}

func (discardSink) Push([]int16) {}

func newTestAnalyser(t *testing.T) *graph.AnalyserNode {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	h := resource.NewHandle(proxy.NewClient(srv.URL), 256)
	if err := h.Prepare(context.Background(), "test-source"); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	t.Cleanup(func() { h.Teardown(true) })

	m := graph.NewManager(discardSink{}, 64, 1, 0)
	if err := m.EnsureGraph(h); err != nil {
		t.Fatalf("EnsureGraph: %v", err)
	}
	t.Cleanup(func() { m.TeardownGraph(true) })
	return m.Analyser()
}

func TestFeedDeliversSnapshots(t *testing.T) {
	analyser := newTestAnalyser(t)

	var mu sync.Mutex
	var got [][]byte
	delivered := make(chan struct{}, 16)

	f := NewFeed(analyser, time.Millisecond, func(b []byte) {
		mu.Lock()
		got = append(got, append([]byte(nil), b...))
		mu.Unlock()
		select {
		case delivered <- struct{}{}:
		default:
		}
	})
	f.Start()
	defer f.Stop()

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("no snapshot within a second")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) == 0 {
		t.Fatal("no snapshots recorded")
	}
	if len(got[0]) != analyser.Bins() {
		t.Errorf("snapshot has %d bins, want %d", len(got[0]), analyser.Bins())
	}
}

func TestFeedSnapshotRetained(t *testing.T) {
	analyser := newTestAnalyser(t)

	f := NewFeed(analyser, time.Millisecond, nil)
	if f.Snapshot() != nil {
		t.Fatal("snapshot before first tick must be nil")
	}
	f.Start()
	defer f.Stop()

	deadline := time.After(time.Second)
	for f.Snapshot() == nil {
		select {
		case <-deadline:
			t.Fatal("no retained snapshot within a second")
		case <-time.After(time.Millisecond):
		}
	}
	if got := f.Snapshot(); len(got) != analyser.Bins() {
		t.Errorf("retained snapshot has %d bins, want %d", len(got), analyser.Bins())
	}
}

func TestFeedStartStopIdempotent(t *testing.T) {
	analyser := newTestAnalyser(t)
	f := NewFeed(analyser, time.Millisecond, nil)

	if f.Running() {
		t.Fatal("new feed reports running")
	}
	f.Stop() // stopping a stopped feed is a no-op

	f.Start()
	f.Start()
	if !f.Running() {
		t.Fatal("feed not running after Start")
	}

	f.Stop()
	f.Stop()
	if f.Running() {
		t.Fatal("feed still running after Stop")
	}
}
