package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/engine"
	"github.com/rbright/parley/internal/engine/backend"
	"github.com/rbright/parley/internal/indicator"
	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/observe"
	"github.com/rbright/parley/internal/pipeline"
	"github.com/rbright/parley/internal/playback"
	"github.com/rbright/parley/internal/session"
	"github.com/rbright/parley/internal/version"
)

const (
	shutdownTimeout = 5 * time.Second
	cueSampleRate   = 48000
	cueQueueSize    = 8
)

// captureHandle is the running capture stream.
type captureHandle interface {
	Stop() error
	Done() <-chan struct{}
}

// output is the playback device.
type output interface {
	playback.Renderer
	io.Closer
}

// relayIndicator is the session indicator plus the completion cue, which the
// playback worker fires once the last synthesized chunk has rendered.
type relayIndicator interface {
	session.Indicator
	CueComplete(context.Context)
}

// host builds the device and engine side of the daemon.
type host struct {
	selectInput  func(ctx context.Context, input, fallback string) (audio.Selection, error)
	startCapture func(ctx context.Context, device audio.Device, sampleRate int, onBlock audio.BlockFunc) (captureHandle, error)
	newOutput    func(logger *slog.Logger, opts audio.PlayerOptions) (output, error)
	newCueOutput func(logger *slog.Logger, opts audio.PlayerOptions) (output, error)
	newMute      func(name string) (session.MuteControl, error)
	buildEngines func(ctx context.Context, cfg config.Config, deps backend.Deps) (*backend.Set, error)
	newIndicator func(cfg config.IndicatorConfig, logger *slog.Logger, cues engine.Sink) relayIndicator
	watchConfig  bool
}

func hostRuntime() *host {
	return &host{
		selectInput: audio.SelectDevice,
		startCapture: func(ctx context.Context, device audio.Device, sampleRate int, onBlock audio.BlockFunc) (captureHandle, error) {
			return audio.StartCapture(ctx, device, sampleRate, onBlock)
		},
		newOutput: func(logger *slog.Logger, opts audio.PlayerOptions) (output, error) {
			return audio.NewPlayer(logger, opts)
		},
		newCueOutput: func(logger *slog.Logger, opts audio.PlayerOptions) (output, error) {
			return audio.NewPlayer(logger, opts)
		},
		newMute: func(name string) (session.MuteControl, error) {
			return audio.NewSourceMute(name)
		},
		buildEngines: backend.Build,
		newIndicator: func(cfg config.IndicatorConfig, logger *slog.Logger, cues engine.Sink) relayIndicator {
			return indicator.NewNotifier(cfg, logger, cues)
		},
		watchConfig: true,
	}
}

// runDaemon owns the runtime socket and runs the relay until ctx is done or
// a component fails.
func runDaemon(ctx context.Context, loaded config.Loaded, logger *slog.Logger, socketPath string, h *host) (err error) {
	cfg := loaded.Config

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		PingTimeout: 180 * time.Millisecond,
		Retries:     8,
		OnStale: func(path string) {
			logger.Info("removed stale daemon socket", "socket", path)
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "parley",
		ServiceVersion: version.Version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownWith(logger, "telemetry", provider.Shutdown)
	metrics := provider.Metrics

	out, err := h.newOutput(logger, audio.PlayerOptions{Sink: cfg.Audio.Output, SampleRate: cfg.Playback.SampleRate})
	if err != nil {
		return fmt.Errorf("open playback: %w", err)
	}
	defer closeWith(logger, "playback device", out)

	cues, stopCues := startCues(ctx, cfg.Indicator, logger, h)
	defer stopCues()
	notifier := h.newIndicator(cfg.Indicator, logger, cues)

	var onStreamEnd func()
	if notifier != nil {
		onStreamEnd = func() { notifier.CueComplete(ctx) }
	}
	delivery := playback.New(out, logger, playback.Options{
		QueueSize:   cfg.Playback.QueueSize,
		Metrics:     metrics,
		OnStreamEnd: onStreamEnd,
	})
	delivery.Start(ctx)
	defer closeWith(logger, "delivery", delivery)

	engines, err := h.buildEngines(ctx, cfg, backend.Deps{Logger: logger, Sink: delivery})
	if err != nil {
		return fmt.Errorf("build engines: %w", err)
	}
	defer closeWith(logger, "engines", engines)
	// Streams blocked on a full queue return once delivery is closed.
	defer closeWith(logger, "delivery", delivery)

	orchestrator := pipeline.New(logger, engines.Stages(), pipeline.Options{
		Metrics:      metrics,
		StageTimeout: cfg.Engines.Timeout,
		Debug:        pipeline.DebugOptions{AudioDump: cfg.Debug.AudioDump, Dir: cfg.Debug.Dir},
	})

	var mute session.MuteControl
	if cfg.Audio.MuteSource != "" {
		mute, err = h.newMute(cfg.Audio.MuteSource)
		if err != nil {
			return fmt.Errorf("mute source: %w", err)
		}
	}

	controller := session.NewController(logger, session.Options{
		Mute:       mute,
		Runner:     orchestrator,
		Indicator:  notifier,
		Metrics:    metrics,
		Config:     cfg.Pipeline(),
		SampleRate: cfg.Audio.SampleRate,
		MaxSamples: cfg.MaxRecordSamples(),
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if cerr := controller.Close(closeCtx); cerr != nil {
			logger.Warn("session controller close failed", "error", cerr.Error())
		}
	}()

	selection, err := h.selectInput(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return fmt.Errorf("select input: %w", err)
	}
	if selection.Warning != "" {
		logger.Warn("audio input fallback", "warning", selection.Warning)
	}

	capture, err := h.startCapture(ctx, selection.Device, cfg.Audio.SampleRate, controller.Intake)
	if err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	defer func() { _ = capture.Stop() }()

	if h.watchConfig && loaded.Exists {
		watcher := config.NewWatcher(loaded.Path, cfg, func(old, updated config.Config) {
			controller.SetConfig(updated.Pipeline())
			if keys := config.RestartRequired(old, updated); len(keys) > 0 {
				logger.Warn("config change needs a daemon restart", "keys", keys)
			}
		}, config.WithLogger(logger))
		defer watcher.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ipc.Serve(gctx, listener, controller)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-capture.Done():
			return errors.New("audio capture stopped")
		}
	})
	if addr := cfg.Metrics.Listen; addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, addr, provider.Handler(), logger)
		})
	}

	logger.Info("relay ready",
		"socket", socketPath,
		"input", selection.Device.ID,
		"mute_source", cfg.Audio.MuteSource,
		"output", cfg.Audio.Output,
		"stt", cfg.STT.Backend,
		"translation", cfg.Translation.Backend,
		"tts", cfg.TTS.Backend,
	)

	err = g.Wait()
	logger.Info("relay stopping")
	return err
}

// startCues opens the local cue output. Cues stay off the relay output so
// listeners only hear speech. A cue device that cannot be opened disables
// cues rather than the relay.
func startCues(ctx context.Context, cfg config.IndicatorConfig, logger *slog.Logger, h *host) (engine.Sink, func()) {
	if !cfg.SoundEnable {
		return nil, func() {}
	}
	out, err := h.newCueOutput(logger, audio.PlayerOptions{Sink: cfg.SoundSink, SampleRate: cueSampleRate, MediaName: "parley cues"})
	if err != nil {
		logger.Warn("cue playback unavailable", "sink", cfg.SoundSink, "error", err.Error())
		return nil, func() {}
	}
	cues := playback.New(out, logger, playback.Options{QueueSize: cueQueueSize, DropWhenFull: true})
	cues.Start(ctx)
	return cues, func() {
		closeWith(logger, "cue delivery", cues)
		closeWith(logger, "cue device", out)
	}
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func closeWith(logger *slog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "component", what, "error", err.Error())
	}
}

func shutdownWith(logger *slog.Logger, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("shutdown failed", "component", what, "error", err.Error())
	}
}
