package audio

import "encoding/binary"

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// FrameToInt16 converts stereo float samples in [-1, 1] to interleaved
// int16 samples, clipping anything outside the representable range.
func FrameToInt16(frame [][2]float64) []int16 {
	out := make([]int16, len(frame)*Channels)
	for i, s := range frame {
		out[i*2] = clip16(s[0] * 32767)
		out[i*2+1] = clip16(s[1] * 32767)
	}
	return out
}

func clip16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
