package pipeline

import (
	"fmt"
	"strings"

	"github.com/ent0n29/voiceagent/internal/llm"
	"github.com/ent0n29/voiceagent/internal/voice"
)

// Builders construct one capability each. Zero fields fall back to the defaults.
type Builders struct {
	STT func(STTSelection) (voice.Recognizer, error)
	VAD func(VADSelection) (voice.ActivityDetector, error)
	TTS func(TTSSelection) (voice.Synthesizer, error)
	LLM func(LLMSelection) (llm.Completer, error)
}

func (b Builders) withDefaults() Builders {
	if b.STT == nil {
		b.STT = BuildRecognizer
	}
	if b.VAD == nil {
		b.VAD = BuildDetector
	}
	if b.TTS == nil {
		b.TTS = BuildSynthesizer
	}
	if b.LLM == nil {
		b.LLM = BuildCompleter
	}
	return b
}

func BuildRecognizer(sel STTSelection) (voice.Recognizer, error) {
	switch sel.Provider {
	case "deepgram":
		if err := requireCredential(sel.APIKey, "DEEPGRAM_API_KEY"); err != nil {
			return nil, err
		}
		return voice.NewDeepgramRecognizer(voice.DeepgramConfig{
			APIKey:   sel.APIKey,
			Model:    sel.Model,
			Language: sel.Language,
			Timeout:  sel.Timeout,
		})
	case "mock":
		return voice.NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, sel.Provider)
	}
}

func BuildDetector(sel VADSelection) (voice.ActivityDetector, error) {
	switch sel.Provider {
	case "energy":
		return voice.NewEnergyVAD(voice.EnergyVADConfig{
			Threshold:  sel.Threshold,
			MinSpeech:  sel.MinSpeech,
			MinSilence: sel.MinSilence,
		}), nil
	case "mock":
		return voice.NewMockVAD(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, sel.Provider)
	}
}

func BuildSynthesizer(sel TTSSelection) (voice.Synthesizer, error) {
	switch sel.Provider {
	case "deepgram":
		if err := requireCredential(sel.APIKey, "DEEPGRAM_API_KEY"); err != nil {
			return nil, err
		}
		return voice.NewDeepgramSynthesizer(voice.DeepgramConfig{
			APIKey:     sel.APIKey,
			BaseURL:    sel.BaseURL,
			Model:      sel.Model,
			SampleRate: sel.SampleRate,
			Timeout:    sel.Timeout,
		}), nil
	case "elevenlabs":
		if err := requireCredential(sel.APIKey, "ELEVENLABS_API_KEY"); err != nil {
			return nil, err
		}
		if strings.TrimSpace(sel.VoiceID) == "" {
			return nil, fmt.Errorf("%w: ELEVENLABS_TTS_VOICE_ID", ErrMissingCredential)
		}
		return voice.NewElevenLabsSynthesizer(voice.ElevenLabsConfig{
			APIKey:     sel.APIKey,
			WSBaseURL:  sel.BaseURL,
			VoiceID:    sel.VoiceID,
			ModelID:    sel.Model,
			SampleRate: sel.SampleRate,
			Settings:   sel.Settings,
		}), nil
	case "mock":
		return voice.NewMockSynthesizer(sel.SampleRate), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, sel.Provider)
	}
}

func BuildCompleter(sel LLMSelection) (llm.Completer, error) {
	switch sel.Provider {
	case "groq":
		if err := requireCredential(sel.APIKey, "GROQ_API_KEY"); err != nil {
			return nil, err
		}
		return llm.NewGroqCompleter(llm.GroqConfig{
			APIKey:      sel.APIKey,
			BaseURL:     sel.BaseURL,
			Model:       sel.Model,
			Temperature: sel.Temperature,
			MaxTokens:   sel.MaxTokens,
			Stream:      sel.Stream,
			Timeout:     sel.Timeout,
		}), nil
	case "mock":
		return llm.NewMockCompleter(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, sel.Provider)
	}
}

func requireCredential(value, name string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", ErrMissingCredential, name)
	}
	return nil
}
