package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/parley/internal/pcm"
)

// DebugOptions controls per-session debug artifacts.
type DebugOptions struct {
	AudioDump bool
	// Dir overrides the default $XDG_STATE_HOME/parley/debug location.
	Dir string
}

type debugRecord struct {
	Session             string  `json:"session"`
	Generation          uint64  `json:"generation"`
	Status              Status  `json:"status"`
	Stage               Stage   `json:"stage"`
	Transcript          string  `json:"transcript,omitempty"`
	Text                string  `json:"text,omitempty"`
	TranslationFallback bool    `json:"translation_fallback,omitempty"`
	Error               string  `json:"error,omitempty"`
	Samples             int     `json:"samples"`
	SampleRate          int     `json:"sample_rate"`
	Truncated           bool    `json:"truncated,omitempty"`
	Config              Config  `json:"config"`
	DurationSeconds     float64 `json:"duration_seconds"`
}

// dumpDebug writes the snapshot as WAV plus a JSON record when enabled.
func (o *Orchestrator) dumpDebug(job Job, out Outcome) {
	if !o.debug.AudioDump || len(job.Samples) == 0 {
		return
	}

	prefix := "session"
	if job.Session != "" {
		prefix = job.Session
	}

	wav, err := createDebugFile(o.debug.Dir, prefix, "wav")
	if err != nil {
		o.logger.Warn("unable to create debug audio dump", "error", err.Error())
		return
	}
	defer wav.Close()

	if err := pcm.WriteWAV(wav, pcm.FromFloat32(job.Samples), job.SampleRate, 1); err != nil {
		o.logger.Warn("unable to write debug audio dump", "error", err.Error())
		return
	}

	record := debugRecord{
		Session:             job.Session,
		Generation:          job.Generation,
		Status:              out.Status,
		Stage:               out.Stage,
		Transcript:          out.Transcript,
		Text:                out.Text,
		TranslationFallback: out.TranslationFallback,
		Error:               errString(out.Err),
		Samples:             len(job.Samples),
		SampleRate:          job.SampleRate,
		Truncated:           job.Truncated,
		Config:              job.Config,
	}
	if job.SampleRate > 0 {
		record.DurationSeconds = float64(len(job.Samples)) / float64(job.SampleRate)
	}

	meta, err := createDebugFile(o.debug.Dir, prefix, "json")
	if err != nil {
		o.logger.Warn("unable to create debug record", "error", err.Error())
		return
	}
	defer meta.Close()

	enc := json.NewEncoder(meta)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		o.logger.Warn("unable to write debug record", "error", err.Error())
	}
}

// createDebugFile creates a timestamped artifact under dir, or under
// state/parley/debug when dir is empty.
func createDebugFile(dir string, prefix string, extension string) (*os.File, error) {
	if dir == "" {
		stateDir, err := resolveStateDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(stateDir, "parley", "debug")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

// resolveStateDir returns XDG_STATE_HOME or its ~/.local/state fallback.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
