// Package whisper recognizes speech locally with whisper.cpp. The whisper.cpp
// static library and headers must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rbright/parley/internal/engine"
	"github.com/rbright/parley/internal/resample"
	"github.com/rbright/parley/internal/transcript"
	"github.com/rbright/parley/internal/vad"
)

var _ engine.Recognizer = (*Recognizer)(nil)

// modelSampleRate is the only rate whisper.cpp accepts.
const modelSampleRate = 16000

// Options configures the recognizer defaults. Per-request values in
// engine.RecognizeRequest take precedence.
type Options struct {
	ModelPath string
	Language  string
	Threads   int
	VAD       vad.Config
}

// Recognizer runs whisper.cpp inference. The model is loaded once and
// reloaded only when a request names a different model path.
type Recognizer struct {
	logger *slog.Logger
	opts   Options
	load   func(path string) (whisperlib.Model, error)

	mu        sync.Mutex
	model     whisperlib.Model
	modelPath string
}

// New builds a recognizer and loads opts.ModelPath when one is set.
func New(logger *slog.Logger, opts Options) (*Recognizer, error) {
	return newRecognizer(logger, opts, whisperlib.New)
}

func newRecognizer(logger *slog.Logger, opts Options, load func(string) (whisperlib.Model, error)) (*Recognizer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Language == "" {
		opts.Language = engine.AutoDetect
	}
	r := &Recognizer{logger: logger, opts: opts, load: load}
	if opts.ModelPath != "" {
		r.mu.Lock()
		_, err := r.modelFor(opts.ModelPath)
		r.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DetectSpeech runs the energy detector over samples.
func (r *Recognizer) DetectSpeech(_ context.Context, samples []float32, sampleRate int) (bool, error) {
	return vad.Detect(samples, sampleRate, r.opts.VAD), nil
}

// Recognize transcribes one utterance. Inference itself cannot be
// interrupted; when ctx ends first Recognize returns and the result is
// discarded, but the model stays busy until the inference finishes and later
// requests queue behind it.
func (r *Recognizer) Recognize(ctx context.Context, req engine.RecognizeRequest) (engine.Recognition, error) {
	if len(req.Samples) == 0 {
		return engine.Recognition{}, engine.Errorf(engine.KindInvalidInput, "whisper recognize", "no audio")
	}
	if req.VAD && !vad.Detect(req.Samples, req.SampleRate, r.opts.VAD) {
		return engine.Recognition{IsSpeech: false}, nil
	}

	samples, err := resample.Resample(req.Samples, req.SampleRate, modelSampleRate)
	if err != nil {
		return engine.Recognition{}, engine.Wrap(engine.KindInvalidInput, "whisper recognize", err)
	}

	path := req.ModelPath
	if path == "" {
		path = r.opts.ModelPath
	}
	lang := req.Language
	if lang == "" {
		lang = r.opts.Language
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := r.infer(path, lang, samples)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		abandoned := time.Now()
		r.logger.Warn("whisper inference outlived its deadline, model busy until it finishes", "error", ctx.Err().Error())
		go func() {
			<-done
			r.logger.Warn("abandoned whisper inference finished", "overrun", time.Since(abandoned).String())
		}()
		return engine.Recognition{}, engine.Wrap(engine.KindTimeout, "whisper recognize", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return engine.Recognition{}, res.err
		}
		return engine.Recognition{Text: res.text, IsSpeech: true}, nil
	}
}

// Close releases the loaded model.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model == nil {
		return nil
	}
	err := r.model.Close()
	r.model = nil
	r.modelPath = ""
	return err
}

func (r *Recognizer) infer(path, lang string, samples []float32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	model, err := r.modelFor(path)
	if err != nil {
		return "", err
	}

	wctx, err := model.NewContext()
	if err != nil {
		return "", engine.Wrap(engine.KindInternal, "whisper context", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		r.logger.Warn("whisper rejected language, using model default", "language", lang, "error", err.Error())
	}
	if r.opts.Threads > 0 {
		wctx.SetThreads(uint(r.opts.Threads))
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", engine.Wrap(engine.KindEngine, "whisper process", err)
	}

	var segments []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", engine.Wrap(engine.KindEngine, "whisper segment", err)
		}
		segments = append(segments, strings.TrimSpace(segment.Text))
	}
	return transcript.Assemble(segments, transcript.Options{}), nil
}

// modelFor returns the model for path, swapping out the loaded one when the
// path changed. Caller holds r.mu.
func (r *Recognizer) modelFor(path string) (whisperlib.Model, error) {
	if path == "" {
		return nil, engine.Errorf(engine.KindInvalidInput, "whisper load", "model path is empty")
	}
	if r.model != nil && r.modelPath == path {
		return r.model, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, engine.Wrap(engine.KindUnavailable, "whisper load", fmt.Errorf("model %q: %w", path, err))
	}

	model, err := r.load(path)
	if err != nil {
		return nil, engine.Wrap(engine.KindUnavailable, "whisper load", fmt.Errorf("model %q: %w", path, err))
	}
	if r.model != nil {
		if err := r.model.Close(); err != nil {
			r.logger.Warn("closing previous whisper model failed", "path", r.modelPath, "error", err.Error())
		}
		r.logger.Info("whisper model reloaded", "from", r.modelPath, "to", path)
	}
	r.model = model
	r.modelPath = path
	return model, nil
}
