// Package pipeline runs recognition, translation and synthesis over one
// captured utterance.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/parley/internal/engine"
	"github.com/rbright/parley/internal/observe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Stages are the engines a run calls, in order. Translator may be nil when
// translation is never enabled.
type Stages struct {
	Recognizer  engine.Recognizer
	Translator  engine.Translator
	Synthesizer engine.Synthesizer
}

// Options tune orchestrator side behavior.
type Options struct {
	Metrics *observe.Metrics
	// StageTimeout bounds each engine call. Zero means no timeout.
	StageTimeout time.Duration
	Debug        DebugOptions
}

// Orchestrator runs the recognize, translate, synthesize sequence.
// Run is safe for use by one worker at a time.
type Orchestrator struct {
	logger  *slog.Logger
	stages  Stages
	metrics *observe.Metrics
	timeout time.Duration
	debug   DebugOptions
}

// New constructs an orchestrator.
func New(logger *slog.Logger, stages Stages, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		logger:  logger,
		stages:  stages,
		metrics: opts.Metrics,
		timeout: opts.StageTimeout,
		debug:   opts.Debug,
	}
}

// Run processes one job and always returns. Engine failures and panics are
// captured in the Outcome and never escape to the caller.
func (o *Orchestrator) Run(ctx context.Context, job Job) Outcome {
	ctx, span := observe.StartSpan(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("session", job.Session),
		attribute.Int("samples", len(job.Samples)),
	))

	out := o.run(ctx, job)

	span.SetAttributes(attribute.String("status", string(out.Status)))
	observe.EndSpan(span, out.Err)
	o.metrics.RecordOutcome(ctx, string(out.Status))
	o.logOutcome(job, out)
	o.dumpDebug(job, out)
	return out
}

func (o *Orchestrator) run(ctx context.Context, job Job) Outcome {
	cfg := job.Config
	out := Outcome{Durations: make(map[Stage]time.Duration, 4)}

	if o.stages.Recognizer == nil {
		out.Stage = StageRecognize
		out.Status = StatusFailed
		out.Err = engine.Errorf(engine.KindUnavailable, string(StageRecognize), "no recognizer configured")
		return out
	}

	if cfg.VADEnabled {
		out.Stage = StageDetect
		var speech bool
		err := o.stage(ctx, &out, StageDetect, func(ctx context.Context) error {
			var err error
			speech, err = o.stages.Recognizer.DetectSpeech(ctx, job.Samples, job.SampleRate)
			return err
		})
		if err != nil {
			out.Status = StatusFailed
			out.Err = err
			return out
		}
		if !speech {
			out.Status = StatusNoSpeech
			return out
		}
	}

	out.Stage = StageRecognize
	var recognition engine.Recognition
	err := o.stage(ctx, &out, StageRecognize, func(ctx context.Context) error {
		var err error
		recognition, err = o.stages.Recognizer.Recognize(ctx, engine.RecognizeRequest{
			Samples:    job.Samples,
			SampleRate: job.SampleRate,
			VAD:        cfg.VADEnabled,
			ModelPath:  cfg.STTModelPath,
			Language:   cfg.Language,
		})
		return err
	})
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	if cfg.VADEnabled && !recognition.IsSpeech {
		out.Status = StatusNoSpeech
		return out
	}

	out.Transcript = strings.TrimSpace(recognition.Text)
	if out.Transcript == "" {
		out.Status = StatusEmptyTranscript
		return out
	}

	out.Text = out.Transcript
	if cfg.TranslationEnabled {
		out.Stage = StageTranslate
		translated, err := o.translate(ctx, &out, out.Transcript, cfg.TargetLanguage)
		switch {
		case err != nil:
			out.TranslationFallback = true
			out.TranslationErr = err
		case translated == "":
			out.TranslationFallback = true
			out.TranslationErr = errors.New("translator returned empty text")
		default:
			out.Text = translated
		}
	}

	if out.Text == "" {
		out.Status = StatusEmptyTranscript
		return out
	}

	out.Stage = StageSynthesize
	err = o.stage(ctx, &out, StageSynthesize, func(ctx context.Context) error {
		if o.stages.Synthesizer == nil {
			return engine.Errorf(engine.KindUnavailable, string(StageSynthesize), "no synthesizer configured")
		}
		return o.stages.Synthesizer.Synthesize(ctx, engine.SynthesisRequest{
			Text:    out.Text,
			VoiceID: cfg.TTSVoiceID,
			Speed:   cfg.TTSSpeed,
		})
	})
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}

	out.Status = StatusCompleted
	return out
}

func (o *Orchestrator) translate(ctx context.Context, out *Outcome, text, target string) (string, error) {
	var translated string
	err := o.stage(ctx, out, StageTranslate, func(ctx context.Context) error {
		if o.stages.Translator == nil {
			return engine.Errorf(engine.KindUnavailable, string(StageTranslate), "no translator configured")
		}
		var err error
		translated, err = o.stages.Translator.Translate(ctx, text, engine.AutoDetect, target)
		return err
	})
	return strings.TrimSpace(translated), err
}

// stage runs fn inside a span with the configured timeout and converts
// panics into tagged engine errors.
func (o *Orchestrator) stage(ctx context.Context, out *Outcome, stage Stage, fn func(context.Context) error) (err error) {
	ctx, span := observe.StartSpan(ctx, "pipeline."+string(stage))
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &engine.Error{Kind: engine.KindInternal, Op: string(stage), Err: fmt.Errorf("panic: %v", r)}
		}
		elapsed := time.Since(started)
		out.Durations[stage] = elapsed
		o.metrics.RecordStage(ctx, string(stage), elapsed)
		observe.EndSpan(span, err)
	}()

	return engine.Wrap(engine.KindEngine, string(stage), fn(ctx))
}

func (o *Orchestrator) logOutcome(job Job, out Outcome) {
	fields := []any{
		"session", job.Session,
		"generation", job.Generation,
		"status", out.Status,
		"stage", out.Stage,
		"samples", len(job.Samples),
		"sample_rate", job.SampleRate,
		"transcript_length", len(out.Transcript),
		"text_length", len(out.Text),
	}
	for stage, d := range out.Durations {
		fields = append(fields, string(stage)+"_ms", d.Milliseconds())
	}

	if out.TranslationFallback {
		o.logger.Warn("translation failed, using transcript",
			"session", job.Session,
			"target_language", job.Config.TargetLanguage,
			"error", errString(out.TranslationErr),
		)
	}

	if out.Status == StatusFailed {
		o.logger.Error("pipeline failed", append(fields,
			"kind", engine.KindOf(out.Err),
			"error", errString(out.Err),
		)...)
		return
	}
	o.logger.Info("pipeline finished", fields...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
