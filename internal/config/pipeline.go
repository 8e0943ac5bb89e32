package config

import (
	"slices"

	"github.com/rbright/parley/internal/pipeline"
)

// Pipeline projects the per-session pipeline settings.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		STTModelPath:       c.STT.ModelPath,
		Language:           c.STT.Language,
		VADEnabled:         c.STT.VAD,
		TranslationEnabled: c.Translation.Enable,
		TargetLanguage:     c.Translation.TargetLanguage,
		TTSVoiceID:         c.TTS.VoiceID,
		TTSSpeed:           c.TTS.Speed,
	}
}

// RestartRequired reports whether moving from old to new changes settings
// that are only read at daemon start.
func RestartRequired(old, new Config) []string {
	var keys []string
	add := func(changed bool, key string) {
		if changed {
			keys = append(keys, key)
		}
	}
	add(old.Audio.Input != new.Audio.Input || old.Audio.Fallback != new.Audio.Fallback, "audio.input")
	add(old.Audio.MuteSource != new.Audio.MuteSource, "audio.mute_source")
	add(old.Audio.Output != new.Audio.Output, "audio.output")
	add(old.Audio.SampleRate != new.Audio.SampleRate, "audio.sample_rate")
	add(old.Audio.MaxRecordSeconds != new.Audio.MaxRecordSeconds, "audio.max_record_seconds")
	add(old.STT.Backend != new.STT.Backend || old.STT.Google != new.STT.Google || old.STT.Threads != new.STT.Threads, "stt.backend")
	add(old.Translation.Backend != new.Translation.Backend || old.Translation.Model != new.Translation.Model ||
		old.Translation.BaseURL != new.Translation.BaseURL || old.Translation.APIKeyEnv != new.Translation.APIKeyEnv, "translation.backend")
	add(old.TTS.Backend != new.TTS.Backend || old.TTS.Model != new.TTS.Model || old.TTS.BaseURL != new.TTS.BaseURL ||
		old.TTS.APIKeyEnv != new.TTS.APIKeyEnv || !slices.Equal(old.TTS.Voices, new.TTS.Voices), "tts.backend")
	add(old.Playback != new.Playback, "playback")
	add(old.Engines != new.Engines, "engines.timeout")
	add(old.Indicator != new.Indicator, "indicator")
	add(old.Metrics != new.Metrics, "metrics.listen")
	add(old.Debug != new.Debug, "debug")
	add(old.Log != new.Log, "log.level")
	return keys
}
