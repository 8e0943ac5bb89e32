// Package indicator handles desktop notifications and audio cue playback for
// session state changes.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/engine"
)

const dispatchTimeout = 400 * time.Millisecond

// Notifier is the session-facing indicator. It routes state through
// replaceable freedesktop notifications and plays short audio cues on a local
// cue output, never the relay output listeners hear.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	sink     engine.Sink
	cues     *cueBank

	mu             sync.Mutex
	notificationID uint32
}

// NewNotifier creates an indicator from config. Cues are delivered to sink,
// which should not be the relay output; a nil sink disables them.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger, sink engine.Sink) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
		sink:     sink,
		cues:     newCueBank(cfg, logger),
	}
}

// ShowRecording signals recording start and emits the start cue.
func (n *Notifier) ShowRecording(ctx context.Context) {
	n.playCue(cueStart)
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, 300000, n.messages.recording)
	})
}

// ShowProcessing signals the post-capture relay state.
func (n *Notifier) ShowProcessing(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, 300000, n.messages.processing)
	})
}

// ShowError displays an error message and emits the error cue.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	n.playCue(cueError)
	if !n.cfg.Enable {
		return
	}
	if text == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, timeout, text)
	})
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

// CueComplete emits the relay-finished cue. It is meant to run after the last
// synthesized chunk has rendered.
func (n *Notifier) CueComplete(context.Context) {
	n.playCue(cueComplete)
}

// Hide dismisses the active notification.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

// notify sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notify(ctx context.Context, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.notificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "parley"
	}

	id, err := sendNotification(ctx, notification{
		app:       appName,
		replaces:  replaceID,
		summary:   text,
		timeoutMS: timeoutMS,
	})
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.notificationID = id
	n.mu.Unlock()
	return nil
}

// dismiss closes the current notification ID when present.
func (n *Notifier) dismiss(ctx context.Context) error {
	n.mu.Lock()
	id := n.notificationID
	n.notificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return closeNotification(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.logger.Debug("indicator dispatch failed", "error", err.Error())
	}
}

// playCue hands a cue to the cue output.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable || n.sink == nil {
		return
	}
	n.sink.Deliver(n.cues.chunk(kind))
}
