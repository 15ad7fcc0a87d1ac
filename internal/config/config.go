package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the token service and the voice worker.
type Config struct {
	TokenBindAddr    string
	WorkerBindAddr   string
	ShutdownTimeout  time.Duration
	SessionRetention time.Duration
	MetricsNamespace string

	LogLevel  string
	LogFormat string

	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string
	Room             string
	AgentIdentity    string
	AgentAutoJoin    bool

	STTProvider     string
	STTModel        string
	STTLanguage     string
	DeepgramAPIKey  string
	DeepgramBaseURL string

	VADProvider   string
	VADThreshold  float64
	VADMinSpeech  time.Duration
	VADMinSilence time.Duration

	TTSProvider          string
	TTSModel             string
	TTSSampleRate        int
	ElevenLabsAPIKey     string
	ElevenLabsWSBaseURL  string
	ElevenLabsVoiceID    string
	ElevenLabsModelID    string
	ElevenLabsStability  float64
	ElevenLabsSimilarity float64
	ElevenLabsSpeed      float64

	LLMProvider    string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMStream      bool
	GroqAPIKey     string
	GroqBaseURL    string

	ProviderTimeout time.Duration

	AgentGreeting     string
	AgentFarewell     string
	AgentInstructions string
}

// Load reads an optional .env file, then environment variables, and applies defaults.
// Credentials are not required here; the components that need them report their absence.
func Load() (Config, error) {
	// Real environment variables take precedence over .env entries.
	_ = godotenv.Load()

	cfg := Config{
		TokenBindAddr:    envOrDefault("TOKEN_BIND_ADDR", ":5000"),
		WorkerBindAddr:   envOrDefault("WORKER_BIND_ADDR", ":8081"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voiceagent"),
		LogLevel:         strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("LOG_FORMAT", "console")),

		LiveKitURL:       envOrDefault("LIVEKIT_URL", "ws://localhost:7880"),
		LiveKitAPIKey:    stringsTrimSpace("LIVEKIT_API_KEY"),
		LiveKitAPISecret: stringsTrimSpace("LIVEKIT_API_SECRET"),
		Room:             envOrDefault("ROOM", "test-room"),
		AgentIdentity:    envOrDefault("AGENT_IDENTITY", "voice-agent"),

		STTProvider:     strings.ToLower(envOrDefault("STT_PROVIDER", "deepgram")),
		STTModel:        envOrDefault("STT_MODEL", "nova-2"),
		STTLanguage:     envOrDefault("STT_LANGUAGE", "en"),
		DeepgramAPIKey:  stringsTrimSpace("DEEPGRAM_API_KEY"),
		DeepgramBaseURL: envOrDefault("DEEPGRAM_BASE_URL", "https://api.deepgram.com"),

		VADProvider:   strings.ToLower(envOrDefault("VAD_PROVIDER", "energy")),
		VADThreshold:  0.015,
		VADMinSpeech:  120 * time.Millisecond,
		VADMinSilence: 550 * time.Millisecond,

		TTSProvider: strings.ToLower(envOrDefault("TTS_PROVIDER", "deepgram")),
		// Natural, expressive Deepgram Aura voice.
		TTSModel:             envOrDefault("TTS_MODEL", "aura-luna-en"),
		TTSSampleRate:        24000,
		ElevenLabsAPIKey:     stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL:  envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsVoiceID:    envOrDefault("ELEVENLABS_TTS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsModelID:    envOrDefault("ELEVENLABS_TTS_MODEL_ID", "eleven_flash_v2_5"),
		ElevenLabsStability:  0.42,
		ElevenLabsSimilarity: 0.85,
		ElevenLabsSpeed:      1.0,

		LLMProvider:    strings.ToLower(envOrDefault("LLM_PROVIDER", "groq")),
		LLMModel:       envOrDefault("LLM_MODEL", "llama-3.1-8b-instant"),
		LLMTemperature: 0.7,
		LLMMaxTokens:   256,
		GroqAPIKey:     stringsTrimSpace("GROQ_API_KEY"),
		GroqBaseURL:    envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),

		AgentGreeting:     stringsTrimSpace("AGENT_GREETING"),
		AgentFarewell:     stringsTrimSpace("AGENT_FAREWELL"),
		AgentInstructions: stringsTrimSpace("AGENT_INSTRUCTIONS"),

		ShutdownTimeout:  15 * time.Second,
		SessionRetention: 10 * time.Minute,
		ProviderTimeout:  30 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionRetention, err = durationFromEnv("APP_SESSION_RETENTION", cfg.SessionRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout, err = durationFromEnv("PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.VADMinSpeech, err = durationFromEnv("VAD_MIN_SPEECH", cfg.VADMinSpeech)
	if err != nil {
		return Config{}, err
	}
	cfg.VADMinSilence, err = durationFromEnv("VAD_MIN_SILENCE", cfg.VADMinSilence)
	if err != nil {
		return Config{}, err
	}
	cfg.VADThreshold, err = floatFromEnv("VAD_THRESHOLD", cfg.VADThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSSampleRate, err = intFromEnv("TTS_SAMPLE_RATE", cfg.TTSSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.ElevenLabsStability, err = floatFromEnv("ELEVENLABS_STABILITY", cfg.ElevenLabsStability)
	if err != nil {
		return Config{}, err
	}
	cfg.ElevenLabsSimilarity, err = floatFromEnv("ELEVENLABS_SIMILARITY_BOOST", cfg.ElevenLabsSimilarity)
	if err != nil {
		return Config{}, err
	}
	cfg.ElevenLabsSpeed, err = floatFromEnv("ELEVENLABS_SPEED", cfg.ElevenLabsSpeed)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMStream, err = boolFromEnv("LLM_STREAM", cfg.LLMStream)
	if err != nil {
		return Config{}, err
	}
	cfg.AgentAutoJoin, err = boolFromEnv("AGENT_AUTO_JOIN", cfg.AgentAutoJoin)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.Room) == "" {
		return fmt.Errorf("ROOM must not be empty")
	}
	if !oneOf(c.STTProvider, "deepgram", "mock") {
		return fmt.Errorf("invalid STT_PROVIDER: %q (expected deepgram|mock)", c.STTProvider)
	}
	if !oneOf(c.VADProvider, "energy", "mock") {
		return fmt.Errorf("invalid VAD_PROVIDER: %q (expected energy|mock)", c.VADProvider)
	}
	if !oneOf(c.TTSProvider, "deepgram", "elevenlabs", "mock") {
		return fmt.Errorf("invalid TTS_PROVIDER: %q (expected deepgram|elevenlabs|mock)", c.TTSProvider)
	}
	if !oneOf(c.LLMProvider, "groq", "mock") {
		return fmt.Errorf("invalid LLM_PROVIDER: %q (expected groq|mock)", c.LLMProvider)
	}
	if !oneOf(c.LogFormat, "console", "json") {
		return fmt.Errorf("invalid LOG_FORMAT: %q (expected console|json)", c.LogFormat)
	}
	if c.VADThreshold <= 0 || c.VADThreshold >= 1 {
		return fmt.Errorf("VAD_THRESHOLD must be in (0,1)")
	}
	if c.VADMinSpeech < 0 || c.VADMinSilence <= 0 {
		return fmt.Errorf("VAD_MIN_SPEECH must be >= 0 and VAD_MIN_SILENCE must be positive")
	}
	if c.TTSSampleRate < 8000 || c.TTSSampleRate > 48000 {
		return fmt.Errorf("TTS_SAMPLE_RATE must be between 8000 and 48000")
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	return nil
}

// HasLiveKitKeys reports whether both halves of the signing key pair are present.
func (c Config) HasLiveKitKeys() bool {
	return c.LiveKitAPIKey != "" && c.LiveKitAPISecret != ""
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
