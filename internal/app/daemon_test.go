package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/engine"
	"github.com/rbright/parley/internal/engine/backend"
	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/session"
	"github.com/stretchr/testify/require"
)

type fakeCapture struct {
	onBlock audio.BlockFunc
	rate    int
	done    chan struct{}
	once    sync.Once
}

func (c *fakeCapture) Stop() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeCapture) Done() <-chan struct{} { return c.done }

type fakeOutput struct {
	rendered chan []float32
	closed   atomic.Bool
}

func (o *fakeOutput) Render(_ context.Context, samples []float32, _ int) error {
	o.rendered <- samples
	return nil
}

func (o *fakeOutput) Close() error {
	o.closed.Store(true)
	return nil
}

type fakeMute struct {
	muted atomic.Bool
	calls atomic.Int32
	delay time.Duration
}

func (m *fakeMute) IsMuted(context.Context) (bool, error) {
	time.Sleep(m.delay)
	return m.muted.Load(), nil
}

func (m *fakeMute) SetMuted(_ context.Context, v bool) error {
	time.Sleep(m.delay)
	m.calls.Add(1)
	m.muted.Store(v)
	return nil
}

type fakeRecognizer struct{}

func (fakeRecognizer) DetectSpeech(context.Context, []float32, int) (bool, error) { return true, nil }

func (fakeRecognizer) Recognize(context.Context, engine.RecognizeRequest) (engine.Recognition, error) {
	return engine.Recognition{Text: "hola mundo", IsSpeech: true}, nil
}

type fakeTranslator struct {
	got chan string
}

func (f fakeTranslator) Translate(_ context.Context, text, _, _ string) (string, error) {
	f.got <- text
	return "hello world", nil
}

type fakeSynthesizer struct {
	sink engine.Sink
	text chan string
}

func (f fakeSynthesizer) Synthesize(_ context.Context, req engine.SynthesisRequest) error {
	f.text <- req.Text
	f.sink.Deliver(engine.Chunk{Samples: make([]float32, 480), SampleRate: 24000})
	f.sink.Deliver(engine.Chunk{SampleRate: 24000, Last: true})
	return nil
}

type quietIndicator struct{}

func (quietIndicator) ShowRecording(context.Context)     {}
func (quietIndicator) ShowProcessing(context.Context)    {}
func (quietIndicator) ShowError(context.Context, string) {}
func (quietIndicator) CueStop(context.Context)           {}
func (quietIndicator) Hide(context.Context)              {}

// fakeNotifier records the cue sink it was built with and completion cues.
type fakeNotifier struct {
	session.Indicator
	cues      engine.Sink
	completed chan struct{}
}

func (n *fakeNotifier) CueComplete(context.Context) {
	select {
	case n.completed <- struct{}{}:
	default:
	}
}

type daemonFixture struct {
	host       *host
	capture    chan *fakeCapture
	output     *fakeOutput
	cueOutput  *fakeOutput
	notifier   *fakeNotifier
	mute       *fakeMute
	translated chan string
	spoken     chan string
}

func newDaemonFixture() *daemonFixture {
	f := &daemonFixture{
		capture:    make(chan *fakeCapture, 1),
		output:     &fakeOutput{rendered: make(chan []float32, 4)},
		cueOutput:  &fakeOutput{rendered: make(chan []float32, 4)},
		mute:       &fakeMute{},
		translated: make(chan string, 1),
		spoken:     make(chan string, 1),
	}
	f.host = &host{
		selectInput: func(context.Context, string, string) (audio.Selection, error) {
			return audio.Selection{Device: audio.Device{ID: "mic"}}, nil
		},
		startCapture: func(_ context.Context, _ audio.Device, rate int, onBlock audio.BlockFunc) (captureHandle, error) {
			c := &fakeCapture{onBlock: onBlock, rate: rate, done: make(chan struct{})}
			f.capture <- c
			return c, nil
		},
		newOutput: func(*slog.Logger, audio.PlayerOptions) (output, error) {
			return f.output, nil
		},
		newCueOutput: func(*slog.Logger, audio.PlayerOptions) (output, error) {
			return f.cueOutput, nil
		},
		newMute: func(string) (session.MuteControl, error) {
			return f.mute, nil
		},
		buildEngines: func(_ context.Context, _ config.Config, deps backend.Deps) (*backend.Set, error) {
			return &backend.Set{
				Recognizer:    fakeRecognizer{},
				Translator:    fakeTranslator{got: f.translated},
				Synthesizer:   fakeSynthesizer{sink: deps.Sink, text: f.spoken},
				SynthesisRate: 24000,
			}, nil
		},
		newIndicator: func(_ config.IndicatorConfig, _ *slog.Logger, cues engine.Sink) relayIndicator {
			f.notifier = &fakeNotifier{Indicator: quietIndicator{}, cues: cues, completed: make(chan struct{}, 1)}
			return f.notifier
		},
	}
	return f
}

func writeDaemonConfig(t *testing.T, paths runnerPaths) {
	t.Helper()
	content := "audio:\n  mute_source: upstream\nstt:\n  model_path: /models/ggml-base.bin\n"
	require.NoError(t, os.WriteFile(paths.configPath, []byte(content), 0o600))
}

func forwardCommand(t *testing.T, paths runnerPaths, command string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	exitCode := Runner{Stdout: &stdout, Stderr: &stderr}.Execute(context.Background(), []string{"--config", paths.configPath, command})
	require.Equal(t, 0, exitCode, stderr.String())
	return stdout.String()
}

func waitForDaemon(t *testing.T, socketPath string) {
	t.Helper()
	require.Eventually(t, func() bool {
		alive, _ := ipc.Ping(context.Background(), socketPath, 100*time.Millisecond)
		return alive
	}, 3*time.Second, 20*time.Millisecond)
}

func TestDaemonRelaysUtteranceEndToEnd(t *testing.T) {
	paths := setupRunnerEnv(t)
	writeDaemonConfig(t, paths)
	fixture := newDaemonFixture()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr, Logger: slog.New(slog.DiscardHandler), host: fixture.host}
	exit := make(chan int, 1)
	go func() {
		exit <- runner.Execute(ctx, []string{"--config", paths.configPath, "run"})
	}()

	var capture *fakeCapture
	select {
	case capture = <-fixture.capture:
	case <-time.After(3 * time.Second):
		t.Fatal("capture never started")
	}
	require.Equal(t, 16000, capture.rate)
	waitForDaemon(t, paths.socketPath())

	require.Equal(t, "recording\n", forwardCommand(t, paths, "press"))
	require.True(t, fixture.mute.muted.Load())

	block := make([]float32, 1600)
	for i := range block {
		block[i] = 0.25
	}
	capture.onBlock(block, 16000)

	require.Equal(t, "processing\n", forwardCommand(t, paths, "release"))
	require.False(t, fixture.mute.muted.Load())

	require.Equal(t, "hola mundo", <-fixture.translated)
	require.Equal(t, "hello world", <-fixture.spoken)
	select {
	case rendered := <-fixture.output.rendered:
		require.Len(t, rendered, 480)
	case <-time.After(3 * time.Second):
		t.Fatal("synthesized audio never reached the output")
	}
	select {
	case <-fixture.notifier.completed:
	case <-time.After(3 * time.Second):
		t.Fatal("completion cue never fired after the spoken audio")
	}

	fixture.notifier.cues.Deliver(engine.Chunk{Samples: []float32{0.5}, SampleRate: 48000})
	select {
	case cue := <-fixture.cueOutput.rendered:
		require.Equal(t, []float32{0.5}, cue)
	case <-time.After(3 * time.Second):
		t.Fatal("cue never reached the cue output")
	}
	require.Empty(t, fixture.output.rendered)

	require.Eventually(t, func() bool {
		var stdout bytes.Buffer
		code := Runner{Stdout: &stdout, Stderr: &bytes.Buffer{}}.Execute(context.Background(), []string{"--config", paths.configPath, "status"})
		return code == 0 && stdout.String() == "idle\n"
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case code := <-exit:
		require.Equal(t, 0, code, stderr.String())
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	require.True(t, fixture.output.closed.Load())
	require.True(t, fixture.cueOutput.closed.Load())
	require.Equal(t, int32(2), fixture.mute.calls.Load())
	_, err := os.Stat(paths.socketPath())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDaemonRestoresMuteOnShutdownMidRecording(t *testing.T) {
	paths := setupRunnerEnv(t)
	writeDaemonConfig(t, paths)
	fixture := newDaemonFixture()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}, Logger: slog.New(slog.DiscardHandler), host: fixture.host}
	exit := make(chan int, 1)
	go func() {
		exit <- runner.Execute(ctx, []string{"--config", paths.configPath, "run"})
	}()
	<-fixture.capture
	waitForDaemon(t, paths.socketPath())

	forwardCommand(t, paths, "press")
	require.True(t, fixture.mute.muted.Load())

	cancel()
	require.Equal(t, 0, <-exit)
	require.False(t, fixture.mute.muted.Load())
}

func TestForwardWaitsOutSlowMuteCalls(t *testing.T) {
	paths := setupRunnerEnv(t)
	writeDaemonConfig(t, paths)
	fixture := newDaemonFixture()
	fixture.mute.delay = 300 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}, Logger: slog.New(slog.DiscardHandler), host: fixture.host}
	exit := make(chan int, 1)
	go func() {
		exit <- runner.Execute(ctx, []string{"--config", paths.configPath, "run"})
	}()
	<-fixture.capture
	waitForDaemon(t, paths.socketPath())

	// Press spends two delayed mute calls before it answers.
	require.Equal(t, "recording\n", forwardCommand(t, paths, "press"))
	require.True(t, fixture.mute.muted.Load())
	require.Equal(t, "processing\n", forwardCommand(t, paths, "release"))
	require.False(t, fixture.mute.muted.Load())

	cancel()
	require.Equal(t, 0, <-exit)
}

func TestDaemonRunsWithoutCueDevice(t *testing.T) {
	paths := setupRunnerEnv(t)
	writeDaemonConfig(t, paths)
	fixture := newDaemonFixture()
	fixture.host.newCueOutput = func(*slog.Logger, audio.PlayerOptions) (output, error) {
		return nil, errors.New("no such sink")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}, Logger: slog.New(slog.DiscardHandler), host: fixture.host}
	exit := make(chan int, 1)
	go func() {
		exit <- runner.Execute(ctx, []string{"--config", paths.configPath, "run"})
	}()
	<-fixture.capture
	waitForDaemon(t, paths.socketPath())

	require.Nil(t, fixture.notifier.cues)
	require.Equal(t, "recording\n", forwardCommand(t, paths, "press"))

	cancel()
	require.Equal(t, 0, <-exit)
}

func TestDaemonExitsWhenCaptureStops(t *testing.T) {
	paths := setupRunnerEnv(t)
	writeDaemonConfig(t, paths)
	fixture := newDaemonFixture()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr, Logger: slog.New(slog.DiscardHandler), host: fixture.host}
	exit := make(chan int, 1)
	go func() {
		exit <- runner.Execute(context.Background(), []string{"--config", paths.configPath, "run"})
	}()

	capture := <-fixture.capture
	require.NoError(t, capture.Stop())

	select {
	case code := <-exit:
		require.Equal(t, 1, code)
		require.Contains(t, stderr.String(), "audio capture stopped")
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not exit after capture stopped")
	}
}

func TestDaemonFailsWhenEnginesCannotBeBuilt(t *testing.T) {
	paths := setupRunnerEnv(t)
	writeDaemonConfig(t, paths)
	fixture := newDaemonFixture()
	fixture.host.buildEngines = func(context.Context, config.Config, backend.Deps) (*backend.Set, error) {
		return nil, errors.New("OPENAI_API_KEY is empty")
	}

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr, Logger: slog.New(slog.DiscardHandler), host: fixture.host}
	code := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run"})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "build engines: OPENAI_API_KEY is empty")
	require.True(t, fixture.output.closed.Load())

	_, err := os.Stat(paths.socketPath())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	paths := setupRunnerEnv(t)
	shutdown := startIPCServerForRunnerTest(t, paths.socketPath(), func(context.Context, ipc.Request) ipc.Response {
		return ipc.Response{OK: true, State: "idle"}
	})
	defer shutdown()

	var stderr bytes.Buffer
	runner := Runner{Stdout: &bytes.Buffer{}, Stderr: &stderr, Logger: slog.New(slog.DiscardHandler), host: newDaemonFixture().host}
	code := runner.Execute(context.Background(), []string{"--config", paths.configPath, "run"})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "already running")
}
