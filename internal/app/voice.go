package app

import (
	"github.com/ent0n29/voiceagent/internal/config"
	"github.com/ent0n29/voiceagent/internal/pipeline"
	"github.com/ent0n29/voiceagent/internal/session"
	"github.com/ent0n29/voiceagent/internal/voice"
)

// Selection maps configuration onto the four capability choices. Provider
// specific credentials follow the chosen provider.
func Selection(cfg config.Config) pipeline.Selection {
	sel := pipeline.Selection{
		STT: pipeline.STTSelection{
			Provider: cfg.STTProvider,
			Model:    cfg.STTModel,
			Language: cfg.STTLanguage,
			APIKey:   cfg.DeepgramAPIKey,
			Timeout:  cfg.ProviderTimeout,
		},
		VAD: pipeline.VADSelection{
			Provider:   cfg.VADProvider,
			Threshold:  cfg.VADThreshold,
			MinSpeech:  cfg.VADMinSpeech,
			MinSilence: cfg.VADMinSilence,
		},
		TTS: pipeline.TTSSelection{
			Provider:   cfg.TTSProvider,
			Model:      cfg.TTSModel,
			SampleRate: cfg.TTSSampleRate,
			APIKey:     cfg.DeepgramAPIKey,
			BaseURL:    cfg.DeepgramBaseURL,
			Timeout:    cfg.ProviderTimeout,
		},
		LLM: pipeline.LLMSelection{
			Provider:    cfg.LLMProvider,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
			Stream:      cfg.LLMStream,
			APIKey:      cfg.GroqAPIKey,
			BaseURL:     cfg.GroqBaseURL,
			Timeout:     cfg.ProviderTimeout,
		},
	}
	if cfg.TTSProvider == "elevenlabs" {
		sel.TTS.Model = cfg.ElevenLabsModelID
		sel.TTS.VoiceID = cfg.ElevenLabsVoiceID
		sel.TTS.APIKey = cfg.ElevenLabsAPIKey
		sel.TTS.BaseURL = cfg.ElevenLabsWSBaseURL
		sel.TTS.Settings = voice.VoiceSettings{
			Stability:       cfg.ElevenLabsStability,
			SimilarityBoost: cfg.ElevenLabsSimilarity,
			Speed:           cfg.ElevenLabsSpeed,
		}
	}
	return sel
}

func Persona(cfg config.Config) session.Persona {
	return session.WithOverrides(cfg.AgentInstructions, cfg.AgentGreeting, cfg.AgentFarewell)
}
