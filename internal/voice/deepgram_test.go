package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	omnistt "github.com/agentplexus/omnivoice/stt"
	"github.com/ent0n29/voiceagent/internal/audio"
	"github.com/ent0n29/voiceagent/internal/reliability"
)

// fakeStream plays the provider side of a transcription stream: it buffers
// the written audio and, on Close, emits the scripted events.
type fakeStream struct {
	mu      sync.Mutex
	config  omnistt.TranscriptionConfig
	audio   bytes.Buffer
	writes  int
	script  []omnistt.StreamEvent
	hold    bool
	closed  bool
	openErr error
	events  chan omnistt.StreamEvent
}

func (f *fakeStream) TranscribeStream(_ context.Context, cfg omnistt.TranscriptionConfig) (io.WriteCloser, <-chan omnistt.StreamEvent, error) {
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	f.mu.Lock()
	f.config = cfg
	f.mu.Unlock()
	f.events = make(chan omnistt.StreamEvent, len(f.script))
	return f, f.events, nil
}

func (f *fakeStream) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return f.audio.Write(p)
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	done := f.hold || f.closed
	f.closed = true
	f.mu.Unlock()
	if done {
		return nil
	}
	for _, ev := range f.script {
		f.events <- ev
	}
	close(f.events)
	return nil
}

func TestDeepgramRecognizerJoinsFinalTranscripts(t *testing.T) {
	stream := &fakeStream{script: []omnistt.StreamEvent{
		{Transcript: "what's", IsFinal: false},
		{Transcript: " what's the ", IsFinal: true},
		{Transcript: "", IsFinal: true},
		{Transcript: "weather", IsFinal: true},
	}}
	rec := newDeepgramRecognizer(DeepgramConfig{Model: "nova-2"}, stream)

	seg := audio.Segment{Samples: make([]int16, 4000), SampleRate: 16000}
	text, err := rec.Transcribe(context.Background(), seg)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "what's the weather" {
		t.Fatalf("text = %q, want %q", text, "what's the weather")
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	if stream.config.Model != "nova-2" || stream.config.Language != "en" {
		t.Fatalf("config model/language = %q/%q, want nova-2/en", stream.config.Model, stream.config.Language)
	}
	if stream.config.Encoding != "linear16" || stream.config.SampleRate != 16000 || stream.config.Channels != 1 {
		t.Fatalf("config = %+v, want linear16 mono 16000", stream.config)
	}
	if stream.audio.Len() != 8000 {
		t.Fatalf("streamed bytes = %d, want 8000", stream.audio.Len())
	}
	// 4000 samples in 100ms chunks of 1600.
	if stream.writes != 3 {
		t.Fatalf("writes = %d, want 3", stream.writes)
	}
}

func TestDeepgramRecognizerEmptySegmentSkipsProvider(t *testing.T) {
	stream := &fakeStream{openErr: errors.New("should not be called")}
	rec := newDeepgramRecognizer(DeepgramConfig{}, stream)
	text, err := rec.Transcribe(context.Background(), audio.Segment{SampleRate: 16000})
	if err != nil || text != "" {
		t.Fatalf("Transcribe() = (%q, %v), want empty and nil", text, err)
	}
}

func TestDeepgramRecognizerStreamErrorIsProviderError(t *testing.T) {
	stream := &fakeStream{script: []omnistt.StreamEvent{
		{Transcript: "partial", IsFinal: true},
		{Error: errors.New("invalid credentials")},
	}}
	rec := newDeepgramRecognizer(DeepgramConfig{}, stream)
	_, err := rec.Transcribe(context.Background(), audio.Segment{Samples: []int16{1, 2}, SampleRate: 16000})
	var pe *reliability.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if pe.Provider != "deepgram" || pe.Stage != "stt" {
		t.Fatalf("ProviderError = %+v, want deepgram stt", pe)
	}
}

func TestDeepgramRecognizerOpenFailure(t *testing.T) {
	rec := newDeepgramRecognizer(DeepgramConfig{}, &fakeStream{openErr: errors.New("dial refused")})
	_, err := rec.Transcribe(context.Background(), audio.Segment{Samples: []int16{1}, SampleRate: 16000})
	var pe *reliability.ProviderError
	if !errors.As(err, &pe) || !pe.Retryable {
		t.Fatalf("error = %v, want retryable ProviderError", err)
	}
}

func TestDeepgramRecognizerHonoursCancellation(t *testing.T) {
	// hold keeps the event stream open after the audio is written.
	stream := &fakeStream{hold: true}
	rec := newDeepgramRecognizer(DeepgramConfig{}, stream)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := rec.Transcribe(ctx, audio.Segment{Samples: []int16{1}, SampleRate: 16000})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestDeepgramSynthesizerReturnsPCM(t *testing.T) {
	var req struct {
		Text string `json:"text"`
	}
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speak" {
			t.Errorf("path = %q, want /v1/speak", r.URL.Path)
		}
		query = r.URL.Query()
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write(audio.PCM16LE([]int16{100, -100, 200, -200}))
	}))
	defer srv.Close()

	syn := NewDeepgramSynthesizer(DeepgramConfig{APIKey: "k", BaseURL: srv.URL, Model: "aura-luna-en", SampleRate: 24000})
	seg, err := syn.Synthesize(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if req.Text != "Hello there" {
		t.Fatalf("text = %q, want %q", req.Text, "Hello there")
	}
	if query["encoding"][0] != "linear16" || query["sample_rate"][0] != "24000" || query["container"][0] != "none" {
		t.Fatalf("query = %v, want linear16/24000/none", query)
	}
	if seg.SampleRate != 24000 || len(seg.Samples) != 4 || seg.Samples[2] != 200 {
		t.Fatalf("segment = %+v, want 4 samples at 24000", seg)
	}
}
