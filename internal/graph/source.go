package graph

import (
	"fmt"
	"io"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"

	"github.com/rvirk/etherwave/internal/audio"
	"github.com/rvirk/etherwave/internal/resource"
)

// SourceNode decodes the handle's byte stream into samples. It is created
// at most once per resource handle; the binding is recorded on the handle
// itself and lasts for the handle's whole lifetime.
type SourceNode struct {
	gen    *Generation
	handle *resource.Handle

	mu       sync.Mutex
	streamer beep.Streamer
	closer   io.Closer
	err      error
}

func newSourceNode(gen *Generation, h *resource.Handle) *SourceNode {
	return &SourceNode{gen: gen, handle: h}
}

// Generation returns the generation that owns this node.
func (n *SourceNode) Generation() *Generation {
	return n.gen
}

// Handle returns the resource this node is permanently bound to.
func (n *SourceNode) Handle() *resource.Handle {
	return n.handle
}

// ensureDecoder initializes the MP3 decoder on first use. Decoding starts
// lazily because parsing the stream header blocks until buffered bytes
// arrive, and the graph is built before buffering completes.
func (n *SourceNode) ensureDecoder() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.streamer != nil || n.err != nil {
		return n.err
	}

	streamer, format, err := mp3.Decode(io.NopCloser(n.handle))
	if err != nil {
		n.err = fmt.Errorf("decode stream: %w", err)
		return n.err
	}

	n.closer = streamer
	if format.SampleRate != beep.SampleRate(audio.SampleRate) {
		n.streamer = beep.Resample(4, format.SampleRate, beep.SampleRate(audio.SampleRate), streamer)
	} else {
		n.streamer = streamer
	}
	return nil
}

// Stream implements beep.Streamer. Before the decoder exists it emits
// silence so downstream nodes always have something to pull.
func (n *SourceNode) Stream(samples [][2]float64) (int, bool) {
	n.mu.Lock()
	s := n.streamer
	n.mu.Unlock()

	if s == nil {
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}
	return s.Stream(samples)
}

// Err implements beep.Streamer.
func (n *SourceNode) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	if n.streamer != nil {
		return n.streamer.Err()
	}
	return nil
}

// resetDecoder discards a dead decoder so the next ensureDecoder starts
// over on the handle's current bytes. The node itself stays bound; only
// its internal decode state is replaced.
func (n *SourceNode) resetDecoder() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closer != nil {
		n.closer.Close()
	}
	n.closer = nil
	n.streamer = nil
	n.err = nil
}

func (n *SourceNode) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closer != nil {
		n.closer.Close()
	}
}
