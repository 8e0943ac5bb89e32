package session

import (
	"context"

	"github.com/rbright/parley/internal/pipeline"
)

// MuteControl toggles the upstream microphone source.
type MuteControl interface {
	IsMuted(context.Context) (bool, error)
	SetMuted(context.Context, bool) error
}

// Runner executes the pipeline for one finished recording.
type Runner interface {
	Run(context.Context, pipeline.Job) pipeline.Outcome
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(context.Context, pipeline.Job) pipeline.Outcome

func (f RunnerFunc) Run(ctx context.Context, job pipeline.Job) pipeline.Outcome {
	return f(ctx, job)
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowRecording(context.Context)
	ShowProcessing(context.Context)
	ShowError(context.Context, string)
	CueStop(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)     {}
func (noopIndicator) ShowProcessing(context.Context)    {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) Hide(context.Context)              {}

// noMute is used when no mute source is configured; the source always reads
// as already muted so the controller never touches it.
type noMute struct{}

func (noMute) IsMuted(context.Context) (bool, error) { return true, nil }
func (noMute) SetMuted(context.Context, bool) error  { return nil }

// discardRunner completes every job without running any stage.
type discardRunner struct{}

func (discardRunner) Run(context.Context, pipeline.Job) pipeline.Outcome {
	return pipeline.Outcome{Status: pipeline.StatusNoSpeech}
}
