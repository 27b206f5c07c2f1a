package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// FadeGain returns the gain for sample position pos within a fade-in of
// total samples. A short fade-in masks the click when playback commits.
func FadeGain(pos, total int) float64 {
	if total <= 0 {
		return 1
	}
	return Smoothstep(float64(pos) / float64(total))
}
