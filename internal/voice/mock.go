package voice

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/ent0n29/voiceagent/internal/audio"
)

// MockRecognizer is a local stand-in used when no STT provider is configured.
// It returns the queued transcripts in order, then Fallback for every
// non-silent segment.
type MockRecognizer struct {
	mu       sync.Mutex
	queue    []string
	Fallback string
}

func NewMockRecognizer(transcripts ...string) *MockRecognizer {
	return &MockRecognizer{queue: transcripts, Fallback: "simulated voice input"}
}

func (r *MockRecognizer) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]
		return next, nil
	}
	if audio.RMS(seg.Samples) == 0 {
		return "", nil
	}
	return r.Fallback, nil
}

// MockVAD treats any frame with a non-zero sample as speech and emits a
// boundary on every voiced/unvoiced transition.
type MockVAD struct {
	speaking bool
}

func NewMockVAD() *MockVAD { return &MockVAD{} }

func (v *MockVAD) Process(frame audio.Frame) Activity {
	voiced := false
	for _, s := range frame.Samples {
		if s != 0 {
			voiced = true
			break
		}
	}
	switch {
	case voiced && !v.speaking:
		v.speaking = true
		return ActivitySpeechStart
	case !voiced && v.speaking:
		v.speaking = false
		return ActivitySpeechEnd
	default:
		return ActivityNone
	}
}

func (v *MockVAD) Reset() { v.speaking = false }

// MockSynthesizer renders a quiet tone whose length scales with the text,
// 40ms per word.
type MockSynthesizer struct {
	SampleRate int
}

func NewMockSynthesizer(sampleRate int) *MockSynthesizer {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &MockSynthesizer{SampleRate: sampleRate}
}

func (s *MockSynthesizer) Synthesize(ctx context.Context, text string) (audio.Segment, error) {
	if err := ctx.Err(); err != nil {
		return audio.Segment{}, err
	}
	words := len(strings.Fields(text))
	n := words * s.SampleRate / 25
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(2000 * math.Sin(2*math.Pi*440*float64(i)/float64(s.SampleRate)))
	}
	return audio.Segment{Samples: samples, SampleRate: s.SampleRate}, nil
}
