// Package config resolves, parses, validates, and defaults parley configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by parley.
type Config struct {
	Audio       AudioConfig       `yaml:"audio"`
	STT         STTConfig         `yaml:"stt"`
	Translation TranslationConfig `yaml:"translation"`
	TTS         TTSConfig         `yaml:"tts"`
	Playback    PlaybackConfig    `yaml:"playback"`
	Engines     EnginesConfig     `yaml:"engines"`
	Indicator   IndicatorConfig   `yaml:"indicator"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Debug       DebugConfig       `yaml:"debug"`
	Log         LogConfig         `yaml:"log"`
}

// AudioConfig controls capture, mute and playback device selection.
type AudioConfig struct {
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
	// MuteSource is the source muted while recording. Empty disables muting.
	MuteSource       string `yaml:"mute_source"`
	Output           string `yaml:"output"`
	SampleRate       int    `yaml:"sample_rate"`
	MaxRecordSeconds int    `yaml:"max_record_seconds"`
}

// STTConfig selects and tunes the recognizer.
type STTConfig struct {
	Backend   string          `yaml:"backend"`
	ModelPath string          `yaml:"model_path"`
	Language  string          `yaml:"language"`
	VAD       bool            `yaml:"vad"`
	Threads   int             `yaml:"threads"`
	Google    GoogleSTTConfig `yaml:"google"`
}

// GoogleSTTConfig configures the Cloud Speech backend.
type GoogleSTTConfig struct {
	LanguageCode    string `yaml:"language_code"`
	CredentialsFile string `yaml:"credentials_file"`
}

// TranslationConfig selects and tunes the translator.
type TranslationConfig struct {
	Enable         bool   `yaml:"enable"`
	Backend        string `yaml:"backend"`
	TargetLanguage string `yaml:"target_language"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
}

// TTSConfig selects and tunes the synthesizer.
type TTSConfig struct {
	Backend   string   `yaml:"backend"`
	Model     string   `yaml:"model"`
	Voices    []string `yaml:"voices"`
	VoiceID   int      `yaml:"voice_id"`
	Speed     float64  `yaml:"speed"`
	BaseURL   string   `yaml:"base_url"`
	APIKeyEnv string   `yaml:"api_key_env"`
}

// PlaybackConfig controls the output stream and delivery queue.
type PlaybackConfig struct {
	SampleRate int `yaml:"sample_rate"`
	QueueSize  int `yaml:"queue_size"`
}

// EnginesConfig bounds every engine call. Zero disables the bound.
type EnginesConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable            bool   `yaml:"enable"`
	DesktopAppName    string `yaml:"desktop_app_name"`
	ErrorTimeoutMS    int    `yaml:"error_timeout_ms"`
	SoundEnable       bool   `yaml:"sound_enable"`
	SoundSink         string `yaml:"sound_sink"`
	SoundStartFile    string `yaml:"sound_start_file"`
	SoundStopFile     string `yaml:"sound_stop_file"`
	SoundCompleteFile string `yaml:"sound_complete_file"`
	SoundErrorFile    string `yaml:"sound_error_file"`
}

// MetricsConfig controls the Prometheus listener. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	AudioDump bool   `yaml:"audio_dump"`
	Dir       string `yaml:"dir"`
}

// LogConfig controls the runtime log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
