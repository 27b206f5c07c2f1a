package graph

import (
	"math"
	"testing"
)

// sineStreamer emits a mono sine at a fixed frequency on both channels.
type sineStreamer struct {
	freq float64
	amp  float64
	pos  int
}

func (s *sineStreamer) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		v := s.amp * math.Sin(2*math.Pi*s.freq*float64(s.pos)/48000)
		samples[i][0] = v
		samples[i][1] = v
		s.pos++
	}
	return len(samples), true
}

func (s *sineStreamer) Err() error { return nil }

func TestAnalyserPeakBin(t *testing.T) {
	const fftSize = 256
	const bin = 32
	// a frequency landing exactly on a bin center leaks minimally
	freq := float64(bin) * 48000 / fftSize

	gen := newGeneration()
	n, err := newAnalyserNode(gen, &sineStreamer{freq: freq, amp: 0.5}, fftSize)
	if err != nil {
		t.Fatalf("newAnalyserNode: %v", err)
	}

	buf := make([][2]float64, fftSize)
	if _, ok := n.Stream(buf); !ok {
		t.Fatal("Stream reported exhaustion")
	}

	dst := make([]byte, n.Bins())
	if got := n.ByteFrequencyData(dst); got != n.Bins() {
		t.Fatalf("ByteFrequencyData wrote %d bins, want %d", got, n.Bins())
	}

	peak := 0
	for i := range dst {
		if dst[i] > dst[peak] {
			peak = i
		}
	}
	if peak != bin {
		t.Errorf("peak at bin %d, want %d", peak, bin)
	}
	if dst[bin] == 0 {
		t.Error("tone bin scaled to zero")
	}
	// far-away bins sit near the floor
	if dst[bin] <= dst[n.Bins()-1] {
		t.Errorf("tone bin %d not above far bin %d", dst[bin], dst[n.Bins()-1])
	}
}

func TestAnalyserSilenceIsZero(t *testing.T) {
	gen := newGeneration()
	n, err := newAnalyserNode(gen, &sineStreamer{freq: 440, amp: 0}, 128)
	if err != nil {
		t.Fatalf("newAnalyserNode: %v", err)
	}

	buf := make([][2]float64, 128)
	n.Stream(buf)

	dst := make([]byte, n.Bins())
	n.ByteFrequencyData(dst)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("bin %d = %d for silence, want 0", i, v)
		}
	}
}

func TestAnalyserShortBuffer(t *testing.T) {
	gen := newGeneration()
	n, err := newAnalyserNode(gen, &sineStreamer{freq: 440, amp: 0.5}, 128)
	if err != nil {
		t.Fatalf("newAnalyserNode: %v", err)
	}

	dst := make([]byte, 10)
	if got := n.ByteFrequencyData(dst); got != 10 {
		t.Errorf("ByteFrequencyData wrote %d bins into a short buffer, want 10", got)
	}
}
