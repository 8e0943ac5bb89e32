// Package backend builds the configured engine set.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/engine"
	"github.com/rbright/parley/internal/engine/elevenlabs"
	"github.com/rbright/parley/internal/engine/gemini"
	"github.com/rbright/parley/internal/engine/gspeech"
	"github.com/rbright/parley/internal/engine/openai"
	"github.com/rbright/parley/internal/engine/whisper"
	"github.com/rbright/parley/internal/pipeline"
)

// Deps are the runtime collaborators engines are wired to.
type Deps struct {
	Logger *slog.Logger
	// Sink receives synthesized audio.
	Sink engine.Sink
	// Getenv reads API keys. Defaults to os.Getenv.
	Getenv func(string) string
}

// Set holds the built engines and releases them on Close.
type Set struct {
	Recognizer  engine.Recognizer
	Translator  engine.Translator
	Synthesizer engine.Synthesizer

	// SynthesisRate is the sample rate of chunks the synthesizer delivers.
	SynthesisRate int

	closers []io.Closer
}

// Stages exposes the set to the pipeline orchestrator.
func (s *Set) Stages() pipeline.Stages {
	return pipeline.Stages{
		Recognizer:  s.Recognizer,
		Translator:  s.Translator,
		Synthesizer: s.Synthesizer,
	}
}

// Close releases engines in reverse construction order.
func (s *Set) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Set) track(v any) {
	if c, ok := v.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
}

// Build constructs the recognizer, translator and synthesizer named by cfg.
// A translator is always attempted so translation can be enabled by a config
// reload; its absence is only fatal while translation is enabled.
func Build(ctx context.Context, cfg config.Config, deps Deps) (*Set, error) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	if deps.Sink == nil {
		return nil, errors.New("build engines: sink is required")
	}

	set := &Set{}
	fail := func(err error) (*Set, error) {
		_ = set.Close()
		return nil, err
	}

	recognizer, err := buildRecognizer(ctx, cfg, deps)
	if err != nil {
		return fail(fmt.Errorf("build recognizer: %w", err))
	}
	set.Recognizer = recognizer
	set.track(recognizer)

	translator, err := buildTranslator(ctx, cfg, deps)
	switch {
	case err != nil && cfg.Translation.Enable:
		return fail(fmt.Errorf("build translator: %w", err))
	case err != nil:
		deps.Logger.Debug("translator unavailable while translation is disabled", "error", err.Error())
	default:
		set.Translator = translator
		set.track(translator)
	}

	synthesizer, rate, err := buildSynthesizer(cfg, deps)
	if err != nil {
		return fail(fmt.Errorf("build synthesizer: %w", err))
	}
	set.Synthesizer = synthesizer
	set.SynthesisRate = rate
	set.track(synthesizer)

	deps.Logger.Info("engines ready",
		"stt", cfg.STT.Backend,
		"translation", cfg.Translation.Backend,
		"translation_enabled", cfg.Translation.Enable,
		"tts", cfg.TTS.Backend,
	)
	return set, nil
}

func buildRecognizer(ctx context.Context, cfg config.Config, deps Deps) (engine.Recognizer, error) {
	switch cfg.STT.Backend {
	case config.BackendWhisper:
		return whisper.New(deps.Logger, whisper.Options{
			ModelPath: cfg.STT.ModelPath,
			Language:  cfg.STT.Language,
			Threads:   cfg.STT.Threads,
		})
	case config.BackendGoogle:
		return gspeech.New(ctx, deps.Logger, gspeech.Options{
			LanguageCode:    cfg.STT.Google.LanguageCode,
			CredentialsFile: cfg.STT.Google.CredentialsFile,
		})
	default:
		return nil, fmt.Errorf("unknown stt backend %q", cfg.STT.Backend)
	}
}

func buildTranslator(ctx context.Context, cfg config.Config, deps Deps) (engine.Translator, error) {
	key, err := apiKey(deps.Getenv, cfg.TranslationKeyEnv())
	if err != nil {
		return nil, err
	}
	switch cfg.Translation.Backend {
	case config.BackendOpenAI:
		return openai.NewTranslator(deps.Logger, openai.ClientOptions{
			APIKey:  key,
			BaseURL: cfg.Translation.BaseURL,
		}, cfg.Translation.Model)
	case config.BackendGemini:
		return gemini.New(ctx, deps.Logger, gemini.Options{
			APIKey:  key,
			Model:   cfg.Translation.Model,
			BaseURL: cfg.Translation.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown translation backend %q", cfg.Translation.Backend)
	}
}

func buildSynthesizer(cfg config.Config, deps Deps) (engine.Synthesizer, int, error) {
	key, err := apiKey(deps.Getenv, cfg.TTSKeyEnv())
	if err != nil {
		return nil, 0, err
	}
	switch cfg.TTS.Backend {
	case config.BackendOpenAI:
		s, err := openai.NewSynthesizer(deps.Logger, openai.SynthesizerOptions{
			ClientOptions: openai.ClientOptions{APIKey: key, BaseURL: cfg.TTS.BaseURL},
			Model:         cfg.TTS.Model,
			Voices:        cfg.TTS.Voices,
		}, deps.Sink)
		return s, openai.SampleRate, err
	case config.BackendElevenLabs:
		s, err := elevenlabs.New(deps.Logger, elevenlabs.Options{
			APIKey:   key,
			Model:    cfg.TTS.Model,
			Voices:   cfg.TTS.Voices,
			Endpoint: cfg.TTS.BaseURL,
		}, deps.Sink)
		return s, elevenlabs.SampleRate, err
	default:
		return nil, 0, fmt.Errorf("unknown tts backend %q", cfg.TTS.Backend)
	}
}

func apiKey(getenv func(string) string, name string) (string, error) {
	if name == "" {
		return "", errors.New("no api key variable configured")
	}
	key := strings.TrimSpace(getenv(name))
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return key, nil
}
