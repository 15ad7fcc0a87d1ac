package voice

import (
	"context"

	"github.com/ent0n29/voiceagent/internal/audio"
)

// Recognizer turns one finished utterance into text. An empty transcript
// with a nil error means nothing intelligible was said.
type Recognizer interface {
	Transcribe(ctx context.Context, seg audio.Segment) (string, error)
}

type Activity int

const (
	ActivityNone Activity = iota
	ActivitySpeechStart
	ActivitySpeechEnd
)

func (a Activity) String() string {
	switch a {
	case ActivitySpeechStart:
		return "speech_start"
	case ActivitySpeechEnd:
		return "speech_end"
	default:
		return "none"
	}
}

// ActivityDetector marks speech boundaries in a stream of frames.
// It is stateful and owned by one session.
type ActivityDetector interface {
	Process(frame audio.Frame) Activity
	Reset()
}

// Synthesizer renders text as mono PCM16 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Segment, error)
}
