// Package pipeline assembles the speech capabilities a voice session needs.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/ent0n29/voiceagent/internal/llm"
	"github.com/ent0n29/voiceagent/internal/voice"
)

// Capability names, in construction order.
const (
	ComponentSTT = "stt"
	ComponentVAD = "vad"
	ComponentTTS = "tts"
	ComponentLLM = "llm"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrUnknownProvider   = errors.New("unknown provider")
)

// ConfigError reports a capability that could not be constructed.
type ConfigError struct {
	Component string
	Provider  string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configure %s (%s): %v", e.Component, e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Pipeline is the fully constructed capability set. It is never partially populated.
type Pipeline struct {
	STT voice.Recognizer
	VAD voice.ActivityDetector
	TTS voice.Synthesizer
	LLM llm.Completer

	Providers Providers
}

// Providers names the implementation behind each capability.
type Providers struct {
	STT string `json:"stt"`
	VAD string `json:"vad"`
	TTS string `json:"tts"`
	LLM string `json:"llm"`
}

type Selection struct {
	STT STTSelection
	VAD VADSelection
	TTS TTSSelection
	LLM LLMSelection
}

type STTSelection struct {
	Provider string
	Model    string
	Language string
	APIKey   string
	Timeout  time.Duration
}

type VADSelection struct {
	Provider   string
	Threshold  float64
	MinSpeech  time.Duration
	MinSilence time.Duration
}

type TTSSelection struct {
	Provider   string
	Model      string
	VoiceID    string
	SampleRate int
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	// Settings applies to ElevenLabs only.
	Settings voice.VoiceSettings
}

type LLMSelection struct {
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Stream      bool
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
}
