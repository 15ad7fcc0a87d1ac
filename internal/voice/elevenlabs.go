package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/ent0n29/voiceagent/internal/audio"
	"github.com/ent0n29/voiceagent/internal/reliability"
	"github.com/gorilla/websocket"
)

const providerElevenLabs = "elevenlabs"

type ElevenLabsConfig struct {
	APIKey     string
	WSBaseURL  string
	VoiceID    string
	ModelID    string
	SampleRate int
	Settings   VoiceSettings
}

type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Speed           float64
}

// ElevenLabsSynthesizer renders speech over the stream-input websocket, one
// connection per utterance, with raw PCM output.
type ElevenLabsSynthesizer struct {
	cfg    ElevenLabsConfig
	dialer *websocket.Dialer
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig) *ElevenLabsSynthesizer {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_flash_v2_5"
	}
	switch cfg.SampleRate {
	case 16000, 22050, 24000, 44100:
	default:
		cfg.SampleRate = 24000
	}
	cfg.Settings = cfg.Settings.clamped()
	return &ElevenLabsSynthesizer{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (v VoiceSettings) clamped() VoiceSettings {
	if v.Stability <= 0 {
		v.Stability = 0.42
	}
	v.Stability = clamp(v.Stability, 0, 1)
	if v.SimilarityBoost <= 0 {
		v.SimilarityBoost = 0.85
	}
	v.SimilarityBoost = clamp(v.SimilarityBoost, 0, 1)
	if v.Speed <= 0 {
		v.Speed = 1.0
	}
	v.Speed = clamp(v.Speed, 0.7, 1.2)
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (s *ElevenLabsSynthesizer) streamURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(s.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model_id", s.cfg.ModelID)
	q.Set("output_format", "pcm_"+strconv.Itoa(s.cfg.SampleRate))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type elevenMessage struct {
	Audio       string `json:"audio"`
	IsFinal     bool   `json:"isFinal"`
	Error       string `json:"error"`
	MessageType string `json:"message_type"`
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (audio.Segment, error) {
	text = strings.TrimSpace(text)
	out := audio.Segment{SampleRate: s.cfg.SampleRate}
	if text == "" {
		return out, nil
	}
	if strings.TrimSpace(s.cfg.VoiceID) == "" {
		return out, errors.New("elevenlabs voice_id is required")
	}

	endpoint, err := s.streamURL()
	if err != nil {
		return out, err
	}
	headers := http.Header{}
	headers.Set("xi-api-key", s.cfg.APIKey)

	conn, res, err := s.dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if res != nil {
			return out, reliability.HTTPError(providerElevenLabs, "tts", res.StatusCode, err.Error())
		}
		return out, reliability.TransportError(providerElevenLabs, "tts", fmt.Errorf("dial tts websocket: %w", err))
	}

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer closeConn()
	stop := context.AfterFunc(ctx, closeConn)
	defer stop()

	// The first message must carry a single space and the voice settings.
	messages := []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        s.cfg.Settings.Stability,
				"similarity_boost": s.cfg.Settings.SimilarityBoost,
				"speed":            s.cfg.Settings.Speed,
			},
		},
		{"text": text + " ", "try_trigger_generation": true},
		{"text": ""},
	}
	for _, m := range messages {
		if err := conn.WriteJSON(m); err != nil {
			return out, s.streamErr(ctx, fmt.Errorf("write: %w", err))
		}
	}

	var pcm []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				break
			}
			return out, s.streamErr(ctx, fmt.Errorf("read: %w", err))
		}
		var msg elevenMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return out, &reliability.ProviderError{
				Provider:  providerElevenLabs,
				Stage:     "tts",
				Retryable: reliability.IsRetryableRealtimeMessageType(msg.MessageType),
				Err:       errors.New(msg.Error),
			}
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return out, &reliability.ProviderError{Provider: providerElevenLabs, Stage: "tts", Err: fmt.Errorf("decode audio: %w", err)}
			}
			pcm = append(pcm, chunk...)
		}
		if msg.IsFinal {
			break
		}
	}
	out.Samples = audio.SamplesFromPCM16LE(pcm)
	return out, nil
}

func (s *ElevenLabsSynthesizer) streamErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return reliability.TransportError(providerElevenLabs, "tts", err)
}
