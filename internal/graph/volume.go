package graph

import (
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

const (
	minVolumeDB         = -10.0
	volumeCurveExponent = 0.5
)

// VolumeNode applies the session volume. The numeric level survives graph
// rebuilds: the manager carries it from one generation to the next.
type VolumeNode struct {
	gen *Generation

	mu    sync.Mutex
	vol   *effects.Volume
	level float64
}

func newVolumeNode(gen *Generation, src beep.Streamer, level float64) *VolumeNode {
	n := &VolumeNode{gen: gen, level: level}
	n.vol = &effects.Volume{
		Streamer: src,
		Base:     2,
		Volume:   levelToExponent(level),
		Silent:   level <= 0,
	}
	return n
}

// Generation returns the generation that owns this node.
func (n *VolumeNode) Generation() *Generation {
	return n.gen
}

// Stream implements beep.Streamer.
func (n *VolumeNode) Stream(samples [][2]float64) (int, bool) {
	n.mu.Lock()
	v := n.vol
	n.mu.Unlock()
	return v.Stream(samples)
}

// Err implements beep.Streamer.
func (n *VolumeNode) Err() error {
	return n.vol.Err()
}

// SetLevel updates the volume level in [0, 1].
func (n *VolumeNode) SetLevel(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	n.mu.Lock()
	n.level = level
	n.vol.Volume = levelToExponent(level)
	n.vol.Silent = level <= 0
	n.mu.Unlock()
}

// Level returns the current volume level in [0, 1].
func (n *VolumeNode) Level() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.level
}

// levelToExponent maps a linear 0..1 level onto a perceptual dB-style
// exponent for effects.Volume.
func levelToExponent(level float64) float64 {
	if level <= 0 {
		return minVolumeDB
	}
	if level >= 1 {
		return 0
	}
	adjusted := math.Pow(level, volumeCurveExponent)
	return (1.0 - adjusted) * minVolumeDB
}
