// Package session owns the push-to-talk lifecycle: capture windows, the
// upstream mute guard and the handoff of recordings to the pipeline worker.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/observe"
	"github.com/rbright/parley/internal/pipeline"
)

var (
	// ErrBusy rejects a press while the previous utterance is still processing.
	ErrBusy = errors.New("previous utterance still processing")
	// ErrClosed rejects transitions after Close.
	ErrClosed = errors.New("session controller closed")
)

const defaultMuteTimeout = 750 * time.Millisecond

// MaxTransitionMuteTime bounds the mute calls of one transition under default
// options: Press reads and then sets the source.
const MaxTransitionMuteTime = 2 * defaultMuteTimeout

// Options wires the controller collaborators. Nil collaborators fall back to
// no-op implementations.
type Options struct {
	Mute      MuteControl
	Runner    Runner
	Indicator Indicator
	Metrics   *observe.Metrics

	Config     pipeline.Config
	SampleRate int
	// MaxSamples caps one recording. Zero means unbounded.
	MaxSamples int
	// MuteTimeout bounds each mute control call.
	MuteTimeout time.Duration
}

// Controller is the single source of truth for whether a session is active.
type Controller struct {
	logger      *slog.Logger
	mute        MuteControl
	runner      Runner
	indicator   Indicator
	metrics     *observe.Metrics
	sampleRate  int
	muteTimeout time.Duration

	buf *frameBuffer

	mu         sync.RWMutex
	state      fsm.State
	mutedByUs  bool
	generation uint64
	session    string
	startedAt  time.Time
	cfg        pipeline.Config
	closed     bool

	jobs         chan pipeline.Job
	workerCtx    context.Context
	cancelWorker context.CancelFunc
	done         chan struct{}
}

// NewController constructs a controller in Idle and starts its pipeline worker.
func NewController(logger *slog.Logger, opts Options) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Mute == nil {
		opts.Mute = noMute{}
	}
	if opts.Runner == nil {
		opts.Runner = discardRunner{}
	}
	if opts.Indicator == nil {
		opts.Indicator = noopIndicator{}
	}
	if opts.MuteTimeout <= 0 {
		opts.MuteTimeout = defaultMuteTimeout
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		logger:       logger,
		mute:         opts.Mute,
		runner:       opts.Runner,
		indicator:    opts.Indicator,
		metrics:      opts.Metrics,
		sampleRate:   opts.SampleRate,
		muteTimeout:  opts.MuteTimeout,
		buf:          newFrameBuffer(opts.MaxSamples),
		state:        fsm.StateIdle,
		cfg:          opts.Config,
		jobs:         make(chan pipeline.Job, 1),
		workerCtx:    workerCtx,
		cancelWorker: cancel,
		done:         make(chan struct{}),
	}
	go c.work()
	return c
}

// State returns the current state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// MutedByUs reports whether this controller currently holds the upstream mute.
func (c *Controller) MutedByUs() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mutedByUs
}

// Config returns the pipeline configuration the next session will use.
func (c *Controller) Config() pipeline.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetConfig replaces the pipeline configuration. A session already past
// Release keeps the snapshot it was started with.
func (c *Controller) SetConfig(cfg pipeline.Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Intake is the real-time capture entry point. It appends block while
// Recording and always returns it unmodified.
func (c *Controller) Intake(block []float32, sampleRate int) []float32 {
	c.buf.append(block, sampleRate)
	return block
}

// Press handles a key-press edge and returns the resulting state. A press
// while Recording is a no-op.
func (c *Controller) Press(ctx context.Context) (fsm.State, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fsm.StateIdle, ErrClosed
	}
	switch c.state {
	case fsm.StateRecording:
		c.mu.Unlock()
		return fsm.StateRecording, nil
	case fsm.StateProcessing:
		c.mu.Unlock()
		return fsm.StateProcessing, ErrBusy
	}

	next, err := fsm.Transition(c.state, fsm.EventPress)
	if err != nil {
		state := c.state
		c.mu.Unlock()
		return state, err
	}

	c.buf.stop()
	c.mutedByUs = c.muteIfUnmuted(ctx)
	c.state = next
	c.generation++
	c.session = uuid.NewString()
	c.startedAt = time.Now()
	c.buf.start(c.sampleRate)

	session := c.session
	muted := c.mutedByUs
	c.mu.Unlock()

	c.logger.Info("recording started", "session", session, "muted_by_us", muted)
	c.indicator.ShowRecording(ctx)
	return next, nil
}

// Release handles a key-release edge and returns the resulting state. It
// returns once the recording has been handed to the pipeline worker and never
// waits for the pipeline. A release while Idle or Processing is a no-op.
func (c *Controller) Release(ctx context.Context) (fsm.State, error) {
	c.mu.Lock()
	if c.state != fsm.StateRecording {
		state := c.state
		c.mu.Unlock()
		return state, nil
	}

	next, err := fsm.Transition(c.state, fsm.EventRelease)
	if err != nil {
		state := c.state
		c.mu.Unlock()
		return state, err
	}

	c.unmuteIfOwned(ctx)
	snap := c.buf.snapshotAndClear()
	c.state = next

	job := pipeline.Job{
		Session:    c.session,
		Generation: c.generation,
		Samples:    snap.samples,
		SampleRate: snap.sampleRate,
		Truncated:  snap.truncated,
		Config:     c.cfg,
	}
	held := time.Since(c.startedAt)

	select {
	case c.jobs <- job:
	default:
		c.state = fsm.StateIdle
		c.mu.Unlock()
		c.logger.Error("pipeline worker unavailable, dropping recording", "session", job.Session)
		return fsm.StateIdle, fmt.Errorf("hand off session %s: worker busy", job.Session)
	}
	c.mu.Unlock()

	c.metrics.RecordRecording(ctx, held)
	if job.Truncated {
		c.logger.Warn("recording exceeded maximum duration and was truncated",
			"session", job.Session,
			"samples", len(job.Samples),
		)
	}
	c.logger.Info("recording finished",
		"session", job.Session,
		"generation", job.Generation,
		"samples", len(job.Samples),
		"held_ms", held.Milliseconds(),
	)

	c.indicator.CueStop(ctx)
	c.indicator.ShowProcessing(ctx)
	return next, nil
}

// Toggle presses when Idle and releases when Recording.
func (c *Controller) Toggle(ctx context.Context) (fsm.State, error) {
	if c.State() == fsm.StateRecording {
		return c.Release(ctx)
	}
	return c.Press(ctx)
}

// Close tears the controller down. The mute guard runs first so a source
// muted by this controller is restored even mid-recording. In-flight pipeline
// work is cancelled; Close waits for the worker until ctx is done.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.unmuteIfOwned(ctx)
	c.buf.stop()
	c.state, _ = fsm.Transition(c.state, fsm.EventReset)
	close(c.jobs)
	c.mu.Unlock()

	c.cancelWorker()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for pipeline worker: %w", ctx.Err())
	}
}

// work runs queued jobs until the job channel is closed.
func (c *Controller) work() {
	defer close(c.done)
	for job := range c.jobs {
		out := c.runner.Run(c.workerCtx, job)
		c.complete(job, out)
	}
}

// complete moves Processing to Idle for the current generation. Completions
// from an older generation are discarded.
func (c *Controller) complete(job pipeline.Job, out pipeline.Outcome) {
	c.mu.Lock()
	if job.Generation != c.generation || c.state != fsm.StateProcessing {
		c.mu.Unlock()
		c.logger.Debug("discarding stale pipeline completion",
			"session", job.Session,
			"generation", job.Generation,
		)
		return
	}
	c.state, _ = fsm.Transition(c.state, fsm.EventComplete)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	switch out.Status {
	case pipeline.StatusFailed:
		c.indicator.ShowError(ctx, failureMessage(out))
	default:
		c.indicator.Hide(ctx)
	}
}

// muteIfUnmuted mutes the upstream source when it is currently live and
// reports whether this controller now owns the mute. A mute request that
// timed out may still be applied by the host, so it counts as owned and
// Release restores the source. Caller holds c.mu.
func (c *Controller) muteIfUnmuted(ctx context.Context) bool {
	muteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.muteTimeout)
	defer cancel()

	muted, err := c.mute.IsMuted(muteCtx)
	if err != nil {
		c.logger.Warn("unable to read upstream mute state", "error", err.Error())
		c.metrics.RecordMute(ctx, "error")
		return false
	}
	if muted {
		c.metrics.RecordMute(ctx, "skip")
		return false
	}
	if err := c.mute.SetMuted(muteCtx, true); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			c.logger.Warn("mute request unconfirmed, restoring on release", "error", err.Error())
			c.metrics.RecordMute(ctx, "mute")
			return true
		}
		c.logger.Warn("unable to mute upstream source", "error", err.Error())
		c.metrics.RecordMute(ctx, "error")
		return false
	}
	c.metrics.RecordMute(ctx, "mute")
	return true
}

// unmuteIfOwned restores the upstream source only when this controller muted
// it. The flag is cleared even when the host call fails. Caller holds c.mu.
func (c *Controller) unmuteIfOwned(ctx context.Context) {
	if !c.mutedByUs {
		return
	}
	c.mutedByUs = false

	muteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.muteTimeout)
	defer cancel()
	if err := c.mute.SetMuted(muteCtx, false); err != nil {
		c.logger.Error("unable to restore upstream source", "session", c.session, "error", err.Error())
		c.metrics.RecordMute(ctx, "error")
		return
	}
	c.metrics.RecordMute(ctx, "unmute")
}

func failureMessage(out pipeline.Outcome) string {
	switch out.Stage {
	case pipeline.StageDetect, pipeline.StageRecognize:
		return "Speech recognition failed"
	case pipeline.StageSynthesize:
		return "Speech synthesis failed"
	default:
		return "Relay failed"
	}
}
