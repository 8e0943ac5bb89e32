package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	sttBackends         = []string{BackendWhisper, BackendGoogle}
	translationBackends = []string{BackendOpenAI, BackendGemini}
	ttsBackends         = []string{BackendOpenAI, BackendElevenLabs}
	logLevels           = []string{"debug", "info", "warn", "error"}
)

const (
	minSpeed   = 0.1
	maxSpeed   = 2.5
	maxVoiceID = 1000
)

// Validate enforces config invariants. It returns every violation joined into
// one error, plus non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	var (
		errs     []error
		warnings []Warning
	)
	warn := func(format string, args ...any) {
		warnings = append(warnings, Warning{Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be > 0"))
	}
	if cfg.Audio.MaxRecordSeconds < 0 {
		errs = append(errs, fmt.Errorf("audio.max_record_seconds must be >= 0"))
	}
	mute := strings.TrimSpace(cfg.Audio.MuteSource)
	if mute != "" && (strings.EqualFold(mute, strings.TrimSpace(cfg.Audio.Input)) || strings.EqualFold(mute, "default")) {
		warn("audio.mute_source %q is also the capture source; recordings will be silent while muted", mute)
	}

	if !slices.Contains(sttBackends, cfg.STT.Backend) {
		errs = append(errs, fmt.Errorf("stt.backend %q is invalid; valid values: %s", cfg.STT.Backend, strings.Join(sttBackends, ", ")))
	}
	if cfg.STT.Threads < 0 {
		errs = append(errs, fmt.Errorf("stt.threads must be >= 0"))
	}
	if cfg.STT.Backend == BackendWhisper && strings.TrimSpace(cfg.STT.ModelPath) == "" {
		warn("stt.model_path is empty; recognition fails until a whisper model is configured")
	}
	if cfg.STT.Backend == BackendGoogle && strings.TrimSpace(cfg.STT.Google.LanguageCode) == "" {
		errs = append(errs, fmt.Errorf("stt.google.language_code must not be empty"))
	}

	if cfg.Translation.Enable {
		if !slices.Contains(translationBackends, cfg.Translation.Backend) {
			errs = append(errs, fmt.Errorf("translation.backend %q is invalid; valid values: %s", cfg.Translation.Backend, strings.Join(translationBackends, ", ")))
		}
		target := strings.TrimSpace(cfg.Translation.TargetLanguage)
		if target == "" || strings.EqualFold(target, "auto") {
			errs = append(errs, fmt.Errorf("translation.target_language must name a language when translation.enable=true"))
		}
	}

	if !slices.Contains(ttsBackends, cfg.TTS.Backend) {
		errs = append(errs, fmt.Errorf("tts.backend %q is invalid; valid values: %s", cfg.TTS.Backend, strings.Join(ttsBackends, ", ")))
	}
	if cfg.TTS.Speed < minSpeed || cfg.TTS.Speed > maxSpeed {
		errs = append(errs, fmt.Errorf("tts.speed %.2f is out of range [%.1f, %.1f]", cfg.TTS.Speed, minSpeed, maxSpeed))
	}
	if cfg.TTS.VoiceID < 0 || cfg.TTS.VoiceID > maxVoiceID {
		errs = append(errs, fmt.Errorf("tts.voice_id %d is out of range [0, %d]", cfg.TTS.VoiceID, maxVoiceID))
	} else if len(cfg.TTS.Voices) > 0 && cfg.TTS.VoiceID >= len(cfg.TTS.Voices) {
		errs = append(errs, fmt.Errorf("tts.voice_id %d has no entry in tts.voices (%d configured)", cfg.TTS.VoiceID, len(cfg.TTS.Voices)))
	}
	if cfg.TTS.Backend == BackendElevenLabs && len(cfg.TTS.Voices) == 0 {
		errs = append(errs, fmt.Errorf("tts.voices must list at least one voice id when tts.backend=elevenlabs"))
	}

	if cfg.Playback.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("playback.sample_rate must be > 0"))
	}
	if cfg.Playback.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("playback.queue_size must be > 0"))
	}
	if cfg.Engines.Timeout < 0 {
		errs = append(errs, fmt.Errorf("engines.timeout must be >= 0"))
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("indicator.error_timeout_ms must be >= 0"))
	}
	if cfg.Log.Level != "" && !slices.Contains(logLevels, strings.ToLower(cfg.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: %s", cfg.Log.Level, strings.Join(logLevels, ", ")))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return warnings, nil
}
