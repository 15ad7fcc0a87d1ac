package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	deepgramstt "github.com/agentplexus/omnivoice-deepgram/omnivoice/stt"
	omnistt "github.com/agentplexus/omnivoice/stt"
	"github.com/ent0n29/voiceagent/internal/audio"
	"github.com/ent0n29/voiceagent/internal/reliability"
)

const providerDeepgram = "deepgram"

type DeepgramConfig struct {
	APIKey  string
	BaseURL string
	// Model is the recognition model for a recognizer and the voice for a synthesizer.
	Model      string
	Language   string
	SampleRate int
	Timeout    time.Duration
}

func (c DeepgramConfig) withDefaults() DeepgramConfig {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "https://api.deepgram.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// streamingTranscriber is the part of the omnivoice STT provider the
// recognizer drives: a writer for raw audio and a stream of events that
// closes once the provider has flushed its results.
type streamingTranscriber interface {
	TranscribeStream(ctx context.Context, config omnistt.TranscriptionConfig) (io.WriteCloser, <-chan omnistt.StreamEvent, error)
}

// DeepgramRecognizer streams a closed utterance through the omnivoice
// Deepgram provider and joins the final transcripts.
type DeepgramRecognizer struct {
	cfg      DeepgramConfig
	provider streamingTranscriber
}

func NewDeepgramRecognizer(cfg DeepgramConfig) (*DeepgramRecognizer, error) {
	provider, err := deepgramstt.New(deepgramstt.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create deepgram stt provider: %w", err)
	}
	return newDeepgramRecognizer(cfg, provider), nil
}

func newDeepgramRecognizer(cfg DeepgramConfig, provider streamingTranscriber) *DeepgramRecognizer {
	cfg = cfg.withDefaults()
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &DeepgramRecognizer{cfg: cfg, provider: provider}
}

// streamChunk is 100ms of audio at the segment rate.
func streamChunk(sampleRate int) int {
	if sampleRate <= 0 {
		return 1600
	}
	return sampleRate / 10
}

func (r *DeepgramRecognizer) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	if seg.Empty() {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	w, events, err := r.provider.TranscribeStream(ctx, omnistt.TranscriptionConfig{
		Model:      r.cfg.Model,
		Language:   r.cfg.Language,
		Encoding:   "linear16",
		SampleRate: seg.SampleRate,
		Channels:   1,
	})
	if err != nil {
		return "", reliability.TransportError(providerDeepgram, "stt", fmt.Errorf("open stream: %w", err))
	}

	written := make(chan error, 1)
	go func() {
		written <- writeSegment(w, seg, streamChunk(seg.SampleRate))
	}()

	var finals []string
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return "", ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := <-written; err != nil {
					return "", reliability.TransportError(providerDeepgram, "stt", fmt.Errorf("write audio: %w", err))
				}
				return strings.Join(finals, " "), nil
			}
			if ev.Error != nil {
				_ = w.Close()
				return "", &reliability.ProviderError{Provider: providerDeepgram, Stage: "stt", Err: ev.Error}
			}
			if !ev.IsFinal {
				continue
			}
			if text := strings.TrimSpace(ev.Transcript); text != "" {
				finals = append(finals, text)
			}
		}
	}
}

// writeSegment sends seg as little-endian PCM16 chunks and closes w, which
// tells the provider no more audio follows.
func writeSegment(w io.WriteCloser, seg audio.Segment, chunk int) error {
	for off := 0; off < len(seg.Samples); off += chunk {
		end := min(off+chunk, len(seg.Samples))
		if _, err := w.Write(audio.PCM16LE(seg.Samples[off:end])); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// DeepgramSynthesizer renders speech with the /v1/speak REST API as raw
// linear16 PCM. The omnivoice Deepgram module is used for recognition only.
type DeepgramSynthesizer struct {
	cfg    DeepgramConfig
	client *http.Client
}

func NewDeepgramSynthesizer(cfg DeepgramConfig) *DeepgramSynthesizer {
	cfg = cfg.withDefaults()
	if cfg.Model == "" {
		cfg.Model = "aura-luna-en"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	return &DeepgramSynthesizer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (s *DeepgramSynthesizer) Synthesize(ctx context.Context, text string) (audio.Segment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Segment{SampleRate: s.cfg.SampleRate}, nil
	}
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return audio.Segment{}, fmt.Errorf("marshal request: %w", err)
	}

	q := url.Values{}
	q.Set("model", s.cfg.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(s.cfg.SampleRate))
	q.Set("container", "none")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/speak?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return audio.Segment{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := doProviderRequest(s.client, req, providerDeepgram, "tts")
	if err != nil {
		return audio.Segment{}, err
	}
	return audio.Segment{Samples: audio.SamplesFromPCM16LE(body), SampleRate: s.cfg.SampleRate}, nil
}

// doProviderRequest sends req and returns the body of a 2xx response.
func doProviderRequest(client *http.Client, req *http.Request, provider, stage string) ([]byte, error) {
	res, err := client.Do(req)
	if err != nil {
		return nil, reliability.TransportError(provider, stage, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, reliability.HTTPError(provider, stage, res.StatusCode, strings.TrimSpace(string(body)))
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, reliability.TransportError(provider, stage, fmt.Errorf("read response: %w", err))
	}
	return body, nil
}
