package graph

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/gopxl/beep/v2"
)

// Web-Audio-style decibel range for byte-scaled magnitudes.
const (
	minDecibels = -100.0
	maxDecibels = -30.0
)

// AnalyserNode taps the sample stream and serves frequency-magnitude
// snapshots. It passes audio through unchanged.
type AnalyserNode struct {
	gen *Generation
	src beep.Streamer

	fftSize int
	window  []float64
	winGain float64
	plan    *algofft.Plan[complex128]

	mu   sync.Mutex
	ring []float64 // mono mix of the most recent samples
	pos  int
}

func newAnalyserNode(gen *Generation, src beep.Streamer, fftSize int) (*AnalyserNode, error) {
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("analyser fft plan: %w", err)
	}

	win := make([]float64, fftSize)
	sum := 0.0
	for i := range win {
		win[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
		sum += win[i]
	}

	return &AnalyserNode{
		gen:     gen,
		src:     src,
		fftSize: fftSize,
		window:  win,
		winGain: sum / 2, // coherent gain for magnitude normalization
		plan:    plan,
		ring:    make([]float64, fftSize),
	}, nil
}

// Generation returns the generation that owns this node.
func (n *AnalyserNode) Generation() *Generation {
	return n.gen
}

// Bins returns the number of frequency bins in one snapshot.
func (n *AnalyserNode) Bins() int {
	return n.fftSize / 2
}

// Stream implements beep.Streamer: pass samples through while mixing them
// down into the analysis ring.
func (n *AnalyserNode) Stream(samples [][2]float64) (int, bool) {
	count, ok := n.src.Stream(samples)

	n.mu.Lock()
	for i := 0; i < count; i++ {
		n.ring[n.pos] = (samples[i][0] + samples[i][1]) / 2
		n.pos = (n.pos + 1) % n.fftSize
	}
	n.mu.Unlock()

	return count, ok
}

// Err implements beep.Streamer.
func (n *AnalyserNode) Err() error {
	return n.src.Err()
}

// ByteFrequencyData writes the current byte-scaled frequency magnitudes
// into dst and returns how many bins were written. Values map the
// [-100, -30] dBFS range onto 0..255.
func (n *AnalyserNode) ByteFrequencyData(dst []byte) int {
	in := make([]complex128, n.fftSize)
	out := make([]complex128, n.fftSize)

	n.mu.Lock()
	for i := 0; i < n.fftSize; i++ {
		// oldest sample first
		s := n.ring[(n.pos+i)%n.fftSize]
		in[i] = complex(s*n.window[i], 0)
	}
	n.mu.Unlock()

	if err := n.plan.Forward(out, in); err != nil {
		return 0
	}

	bins := n.Bins()
	if len(dst) < bins {
		bins = len(dst)
	}
	for i := 0; i < bins; i++ {
		mag := cmplx.Abs(out[i]) / n.winGain
		db := -math.MaxFloat64
		if mag > 0 {
			db = 20 * math.Log10(mag)
		}
		scaled := (db - minDecibels) / (maxDecibels - minDecibels) * 255
		switch {
		case scaled < 0:
			dst[i] = 0
		case scaled > 255:
			dst[i] = 255
		default:
			dst[i] = byte(scaled)
		}
	}
	return bins
}
