package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Frame is a short slice of mono PCM16 audio as delivered by the transport.
type Frame struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return samplesDuration(len(f.Samples), f.SampleRate)
}

// Segment is a contiguous utterance of mono PCM16 audio.
type Segment struct {
	Samples    []int16
	SampleRate int
}

// Append adds a frame; the first frame fixes the segment sample rate.
func (s *Segment) Append(f Frame) {
	if s.SampleRate == 0 {
		s.SampleRate = f.SampleRate
	}
	s.Samples = append(s.Samples, f.Samples...)
}

// Duration returns the playback length of the segment.
func (s Segment) Duration() time.Duration {
	return samplesDuration(len(s.Samples), s.SampleRate)
}

// Empty reports whether the segment carries no samples.
func (s Segment) Empty() bool { return len(s.Samples) == 0 }

// PCM16LE encodes samples as little-endian bytes.
func PCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// SamplesFromPCM16LE decodes little-endian PCM16 bytes. A trailing odd byte is dropped.
func SamplesFromPCM16LE(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// RMS returns the root-mean-square level normalised to [0,1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Resample converts mono PCM16 between sample rates with linear interpolation.
func Resample(samples []int16, from, to int) []int16 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	if n <= 0 {
		return nil
	}
	out := make([]int16, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		if lo >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(lo)
		v := float64(samples[lo])*(1-frac) + float64(samples[lo+1])*frac
		out[i] = int16(math.Round(v))
	}
	return out
}

func samplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}
