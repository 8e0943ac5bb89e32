// Package vad implements a short-window energy voice activity detector used
// ahead of speech recognition.
package vad

import "math"

// Config controls the detector. A window is considered voiced when its RMS
// energy meets Threshold; speech is present once MinSpeechMillis of voiced
// windows have been seen.
type Config struct {
	Threshold       float64
	FrameMillis     int
	MinSpeechMillis int
}

// Default returns the tuning used when nothing is configured.
func Default() Config {
	return Config{
		Threshold:       0.01,
		FrameMillis:     30,
		MinSpeechMillis: 150,
	}
}

// RMS returns the root-mean-square energy of normalized float samples.
// Returns 0 for an empty buffer.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Detect reports whether samples contain speech under cfg. Zero fields in cfg
// take their defaults.
func Detect(samples []float32, sampleRate int, cfg Config) bool {
	if len(samples) == 0 || sampleRate <= 0 {
		return false
	}
	def := Default()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.FrameMillis <= 0 {
		cfg.FrameMillis = def.FrameMillis
	}
	if cfg.MinSpeechMillis <= 0 {
		cfg.MinSpeechMillis = def.MinSpeechMillis
	}

	frame := sampleRate * cfg.FrameMillis / 1000
	if frame <= 0 {
		frame = 1
	}

	voicedMillis := 0
	for start := 0; start < len(samples); start += frame {
		end := min(start+frame, len(samples))
		if RMS(samples[start:end]) < cfg.Threshold {
			continue
		}
		voicedMillis += (end - start) * 1000 / sampleRate
		if voicedMillis >= cfg.MinSpeechMillis {
			return true
		}
	}
	return false
}
