package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/rbright/parley/internal/engine"
	"github.com/rbright/parley/internal/pcm"
)

var _ engine.Synthesizer = (*Synthesizer)(nil)

const (
	// SampleRate is the fixed rate of the API's raw PCM output.
	SampleRate = 24000

	defaultSpeechModel = "gpt-4o-mini-tts"
	minSpeed           = 0.25
	maxSpeed           = 4.0
	// 100ms of 16-bit mono audio.
	readChunkBytes = SampleRate / 10 * 2
)

// DefaultVoices is the stock voice list, addressed by voice id.
var DefaultVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

// SynthesizerOptions configures the speech endpoint.
type SynthesizerOptions struct {
	ClientOptions
	Model  string
	Voices []string
}

// Synthesizer streams raw PCM from the speech endpoint into a sink.
type Synthesizer struct {
	logger *slog.Logger
	client oai.Client
	model  string
	voices []string
	sink   engine.Sink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSynthesizer builds a synthesizer delivering into sink.
func NewSynthesizer(logger *slog.Logger, opts SynthesizerOptions, sink engine.Sink) (*Synthesizer, error) {
	if sink == nil {
		return nil, errors.New("openai synthesizer: sink is required")
	}
	client, err := newClient(opts.ClientOptions)
	if err != nil {
		return nil, err
	}
	model := opts.Model
	if model == "" {
		model = defaultSpeechModel
	}
	voices := opts.Voices
	if len(voices) == 0 {
		voices = DefaultVoices
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synthesizer{
		logger: discardLogger(logger),
		client: client,
		model:  model,
		voices: voices,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Synthesize requests speech for req and returns once the response headers
// arrive. Audio is streamed into the sink in the background.
func (s *Synthesizer) Synthesize(ctx context.Context, req engine.SynthesisRequest) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return engine.Wrap(engine.KindInvalidInput, "openai synthesize", errEmptyText)
	}
	if req.VoiceID < 0 || req.VoiceID >= len(s.voices) {
		return engine.Errorf(engine.KindInvalidInput, "openai synthesize", "voice id %d outside [0, %d)", req.VoiceID, len(s.voices))
	}
	if err := s.ctx.Err(); err != nil {
		return engine.Wrap(engine.KindUnavailable, "openai synthesize", errors.New("synthesizer closed"))
	}

	streamCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)

	resp, err := s.client.Audio.Speech.New(streamCtx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(s.model),
		Voice:          oai.AudioSpeechNewParamsVoice(s.voices[req.VoiceID]),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
		Speed:          param.NewOpt(clampSpeed(req.Speed)),
	})
	detached := stop()
	if err != nil {
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return engine.Wrap(engine.KindTimeout, "openai synthesize", ctxErr)
		}
		return classify("openai synthesize", err)
	}
	if !detached {
		_ = resp.Body.Close()
		cancel()
		return engine.Wrap(engine.KindTimeout, "openai synthesize", ctx.Err())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		cancel()
		return statusError("openai synthesize", resp)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer resp.Body.Close()
		s.stream(resp.Body)
		if s.ctx.Err() == nil {
			s.sink.Deliver(engine.Chunk{SampleRate: SampleRate, Last: true})
		}
	}()
	return nil
}

// Close stops any in-flight stream and waits for it to exit.
func (s *Synthesizer) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Synthesizer) stream(body io.Reader) {
	buf := make([]byte, readChunkBytes)
	var carry []byte
	total := 0
	for {
		n, err := body.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			even := len(data) &^ 1
			if even > 0 {
				s.sink.Deliver(engine.Chunk{Samples: pcm.ToFloat32(data[:even]), SampleRate: SampleRate})
				total += even / 2
			}
			carry = append(carry[:0:0], data[even:]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				s.logger.Warn("openai speech stream ended early", "error", err.Error(), "samples", total)
				return
			}
			s.logger.Debug("openai speech stream finished", "samples", total)
			return
		}
	}
}

func clampSpeed(speed float64) float64 {
	switch {
	case speed <= 0:
		return 1
	case speed < minSpeed:
		return minSpeed
	case speed > maxSpeed:
		return maxSpeed
	default:
		return speed
	}
}
