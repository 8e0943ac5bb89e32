// Package doctor runs readiness diagnostics for config, audio routing, engine
// models and credentials.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/indicator"
)

const checkTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// lookups are the host queries the checks depend on; tests swap in fakes.
type lookups struct {
	listDevices func(context.Context) ([]audio.Device, error)
	selectInput func(context.Context, string, string) (audio.Selection, error)
	sinkExists  func(context.Context, string) error
	getenv      func(string) string
	lookPath    func(string) (string, error)
	loadCue     func(string) error
}

func hostLookups() lookups {
	return lookups{
		listDevices: audio.ListDevices,
		selectInput: audio.SelectDevice,
		sinkExists:  audio.SinkExists,
		getenv:      os.Getenv,
		lookPath:    exec.LookPath,
		loadCue: func(path string) error {
			_, err := indicator.LoadCueFile(path)
			return err
		},
	}
}

// Run executes environment, config and device checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	return run(ctx, cfg, hostLookups())
}

func run(ctx context.Context, loaded config.Loaded, p lookups) Report {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	selection, err := p.selectInput(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		checks = append(checks, Check{Name: "audio.input", Pass: false, Message: err.Error()})
	} else {
		message := fmt.Sprintf("selected %q", selection.Device.ID)
		if selection.Warning != "" {
			message += " (" + selection.Warning + ")"
		}
		checks = append(checks, Check{Name: "audio.input", Pass: true, Message: message})
	}

	checks = append(checks, checkMuteSource(ctx, cfg.Audio.MuteSource, selection.Device.ID, p))
	checks = append(checks, checkSink(ctx, "audio.output", cfg.Audio.Output, p))
	checks = append(checks, checkRecognizer(cfg, p))

	if cfg.Translation.Enable {
		checks = append(checks, checkKey("translation.api_key", cfg.TranslationKeyEnv(), p))
	}
	checks = append(checks, checkKey("tts.api_key", cfg.TTSKeyEnv(), p))

	if cfg.Indicator.Enable {
		checks = append(checks, checkBinary(p, "busctl", "desktop notifications"))
	}
	if cfg.Indicator.SoundEnable {
		checks = append(checks, checkSink(ctx, "indicator.sound_sink", cfg.Indicator.SoundSink, p))
	}
	checks = append(checks, checkCueFiles(cfg.Indicator, p)...)

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found, using defaults", loaded.Path)}
	}
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if n := len(loaded.Warnings); n > 0 {
		message += fmt.Sprintf(" with %d warning(s)", n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkMuteSource verifies the upstream source exists and is not the capture
// input; muting the capture input would silence the user mid-utterance.
func checkMuteSource(ctx context.Context, source string, inputID string, p lookups) Check {
	const name = "audio.mute_source"
	source = strings.TrimSpace(source)
	if source == "" {
		return Check{Name: name, Pass: true, Message: "not configured; upstream muting disabled"}
	}
	if source == inputID {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%q is also the capture input", source)}
	}

	devices, err := p.listDevices(ctx)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	for _, device := range devices {
		if device.ID != source {
			continue
		}
		state := "unmuted"
		if device.Muted {
			state = "muted"
		}
		return Check{Name: name, Pass: true, Message: fmt.Sprintf("%q found (%s)", source, state)}
	}
	return Check{Name: name, Pass: false, Message: fmt.Sprintf("source %q not found", source)}
}

func checkSink(ctx context.Context, name string, sink string, p lookups) Check {
	if strings.TrimSpace(sink) == "" {
		sink = "default"
	}
	if err := p.sinkExists(ctx, sink); err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("sink %q available", sink)}
}

func checkRecognizer(cfg config.Config, p lookups) Check {
	switch cfg.STT.Backend {
	case config.BackendWhisper:
		path := strings.TrimSpace(cfg.STT.ModelPath)
		if path == "" {
			return Check{Name: "stt.model_path", Pass: false, Message: "whisper backend needs stt.model_path"}
		}
		info, err := os.Stat(path)
		if err != nil {
			return Check{Name: "stt.model_path", Pass: false, Message: err.Error()}
		}
		if info.IsDir() {
			return Check{Name: "stt.model_path", Pass: false, Message: fmt.Sprintf("%q is a directory", path)}
		}
		return Check{Name: "stt.model_path", Pass: true, Message: fmt.Sprintf("%q (%d MiB)", path, info.Size()>>20)}
	case config.BackendGoogle:
		if file := strings.TrimSpace(cfg.STT.Google.CredentialsFile); file != "" {
			if _, err := os.Stat(file); err != nil {
				return Check{Name: "stt.google.credentials_file", Pass: false, Message: err.Error()}
			}
			return Check{Name: "stt.google.credentials_file", Pass: true, Message: fmt.Sprintf("%q", file)}
		}
		if p.getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
			return Check{Name: "stt.google.credentials_file", Pass: true, Message: "relying on application default credentials"}
		}
		return Check{Name: "stt.google.credentials_file", Pass: true, Message: "using GOOGLE_APPLICATION_CREDENTIALS"}
	default:
		return Check{Name: "stt.backend", Pass: false, Message: fmt.Sprintf("unknown backend %q", cfg.STT.Backend)}
	}
}

func checkKey(name string, env string, p lookups) Check {
	if env == "" {
		return Check{Name: name, Pass: true, Message: "no key required"}
	}
	if strings.TrimSpace(p.getenv(env)) == "" {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is empty", env)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is set", env)}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(p lookups, bin string, purpose string) Check {
	path, err := p.lookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s (%s)", bin, purpose)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, purpose)}
}

// checkCueFiles decodes each configured cue file.
func checkCueFiles(cfg config.IndicatorConfig, p lookups) []Check {
	if !cfg.SoundEnable {
		return nil
	}
	files := []struct{ key, path string }{
		{"indicator.sound_start_file", cfg.SoundStartFile},
		{"indicator.sound_stop_file", cfg.SoundStopFile},
		{"indicator.sound_complete_file", cfg.SoundCompleteFile},
		{"indicator.sound_error_file", cfg.SoundErrorFile},
	}
	var checks []Check
	for _, f := range files {
		if strings.TrimSpace(f.path) == "" {
			continue
		}
		if err := p.loadCue(f.path); err != nil {
			checks = append(checks, Check{Name: f.key, Pass: false, Message: err.Error()})
			continue
		}
		checks = append(checks, Check{Name: f.key, Pass: true, Message: fmt.Sprintf("decoded %q", f.path)})
	}
	return checks
}
