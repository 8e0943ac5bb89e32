package config

// Backend names accepted in configuration.
const (
	BackendWhisper    = "whisper"
	BackendGoogle     = "google"
	BackendOpenAI     = "openai"
	BackendGemini     = "gemini"
	BackendElevenLabs = "elevenlabs"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Input:            "default",
			Fallback:         "default",
			SampleRate:       16000,
			MaxRecordSeconds: 120,
		},
		STT: STTConfig{
			Backend:  BackendWhisper,
			Language: "auto",
			VAD:      true,
			Google:   GoogleSTTConfig{LanguageCode: "en-US"},
		},
		Translation: TranslationConfig{
			Enable:         true,
			Backend:        BackendOpenAI,
			TargetLanguage: "en",
		},
		TTS: TTSConfig{
			Backend: BackendOpenAI,
			Speed:   1.0,
		},
		Playback: PlaybackConfig{
			SampleRate: 48000,
			QueueSize:  64,
		},
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "parley",
			ErrorTimeoutMS: 1600,
			SoundEnable:    true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// defaultKeyEnv maps a hosted backend to the environment variable holding
// its API key.
func defaultKeyEnv(backend string) string {
	switch backend {
	case BackendOpenAI:
		return "OPENAI_API_KEY"
	case BackendGemini:
		return "GEMINI_API_KEY"
	case BackendElevenLabs:
		return "ELEVENLABS_API_KEY"
	default:
		return ""
	}
}

// TranslationKeyEnv returns the variable the translator key is read from.
func (c Config) TranslationKeyEnv() string {
	if c.Translation.APIKeyEnv != "" {
		return c.Translation.APIKeyEnv
	}
	return defaultKeyEnv(c.Translation.Backend)
}

// TTSKeyEnv returns the variable the synthesizer key is read from.
func (c Config) TTSKeyEnv() string {
	if c.TTS.APIKeyEnv != "" {
		return c.TTS.APIKeyEnv
	}
	return defaultKeyEnv(c.TTS.Backend)
}

// MaxRecordSamples converts the recording ceiling into a sample count.
// Zero means unbounded.
func (c Config) MaxRecordSamples() int {
	if c.Audio.MaxRecordSeconds <= 0 {
		return 0
	}
	return c.Audio.MaxRecordSeconds * c.Audio.SampleRate
}
