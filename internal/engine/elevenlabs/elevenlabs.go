// Package elevenlabs synthesizes speech over the ElevenLabs stream-input
// WebSocket API.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/rbright/parley/internal/engine"
	"github.com/rbright/parley/internal/pcm"
)

var _ engine.Synthesizer = (*Synthesizer)(nil)

const (
	defaultEndpoint = "wss://api.elevenlabs.io/v1/text-to-speech"
	defaultModel    = "eleven_flash_v2_5"
	outputFormat    = "pcm_16000"

	// SampleRate matches outputFormat.
	SampleRate = 16000

	readLimit = 1 << 20

	minSpeed = 0.7
	maxSpeed = 1.2
)

// Options configures the synthesizer.
type Options struct {
	APIKey string
	Model  string
	// Voices maps voice ids onto ElevenLabs voice identifiers.
	Voices []string
	// Endpoint overrides the stream-input base URL.
	Endpoint string
}

// Synthesizer opens one WebSocket per utterance and streams decoded PCM into
// its sink.
type Synthesizer struct {
	logger   *slog.Logger
	apiKey   string
	model    string
	voices   []string
	endpoint string
	sink     engine.Sink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// textMessage is sent for the opening handshake, the utterance and the
// closing empty-text flush.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

type audioMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New builds a synthesizer delivering into sink.
func New(logger *slog.Logger, opts Options, sink engine.Sink) (*Synthesizer, error) {
	if opts.APIKey == "" {
		return nil, engine.Errorf(engine.KindUnavailable, "elevenlabs client", "api key is empty")
	}
	if len(opts.Voices) == 0 {
		return nil, engine.Errorf(engine.KindInvalidInput, "elevenlabs client", "at least one voice is required")
	}
	if sink == nil {
		return nil, errors.New("elevenlabs synthesizer: sink is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	endpoint := strings.TrimRight(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Synthesizer{
		logger:   logger,
		apiKey:   opts.APIKey,
		model:    model,
		voices:   opts.Voices,
		endpoint: endpoint,
		sink:     sink,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Synthesize opens the stream, sends req and returns. Audio frames are read
// and delivered in the background.
func (s *Synthesizer) Synthesize(ctx context.Context, req engine.SynthesisRequest) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return engine.Errorf(engine.KindInvalidInput, "elevenlabs synthesize", "text is empty")
	}
	if req.VoiceID < 0 || req.VoiceID >= len(s.voices) {
		return engine.Errorf(engine.KindInvalidInput, "elevenlabs synthesize", "voice id %d outside [0, %d)", req.VoiceID, len(s.voices))
	}
	if s.ctx.Err() != nil {
		return engine.Errorf(engine.KindUnavailable, "elevenlabs synthesize", "synthesizer closed")
	}

	header := http.Header{}
	header.Set("xi-api-key", s.apiKey)
	conn, resp, err := websocket.Dial(ctx, s.streamURL(s.voices[req.VoiceID]), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		kind := engine.KindUnavailable
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			kind = engine.KindForStatus(resp.StatusCode)
		}
		return engine.Wrap(kind, "elevenlabs dial", err)
	}
	conn.SetReadLimit(readLimit)

	messages := []textMessage{
		{Text: " ", VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: clampSpeed(req.Speed)}, XiAPIKey: s.apiKey},
		{Text: text + " "},
		{Text: ""},
	}
	for _, msg := range messages {
		payload, err := json.Marshal(msg)
		if err != nil {
			conn.Close(websocket.StatusInternalError, "encode")
			return engine.Wrap(engine.KindInternal, "elevenlabs send", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			conn.Close(websocket.StatusInternalError, "send failed")
			return engine.Wrap(engine.KindUnavailable, "elevenlabs send", err)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.read(conn)
		if s.ctx.Err() == nil {
			s.sink.Deliver(engine.Chunk{SampleRate: SampleRate, Last: true})
		}
	}()
	return nil
}

// Close aborts in-flight streams and waits for their readers.
func (s *Synthesizer) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Synthesizer) read(conn *websocket.Conn) {
	defer conn.Close(websocket.StatusNormalClosure, "done")

	total := 0
	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.logger.Warn("elevenlabs stream ended early", "error", err.Error(), "samples", total)
			}
			return
		}

		var msg audioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("elevenlabs ignoring undecodable frame", "error", err.Error())
			continue
		}
		if msg.Error != "" {
			s.logger.Warn("elevenlabs stream error", "error", msg.Error, "message", msg.Message)
			return
		}
		if msg.Audio != "" {
			raw, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				s.logger.Debug("elevenlabs ignoring bad audio payload", "error", err.Error())
				continue
			}
			if samples := pcm.ToFloat32(raw); len(samples) > 0 {
				s.sink.Deliver(engine.Chunk{Samples: samples, SampleRate: SampleRate})
				total += len(samples)
			}
		}
		if msg.IsFinal {
			s.logger.Debug("elevenlabs stream finished", "samples", total)
			return
		}
	}
}

func (s *Synthesizer) streamURL(voice string) string {
	q := url.Values{}
	q.Set("model_id", s.model)
	q.Set("output_format", outputFormat)
	return fmt.Sprintf("%s/%s/stream-input?%s", s.endpoint, url.PathEscape(voice), q.Encode())
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
