package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/rbright/parley/internal/resample"
)

// ErrPlayerClosed reports Render after Close.
var ErrPlayerClosed = errors.New("audio player closed")

const (
	playbackLatencySeconds = 0.08
	// aheadMillis bounds how much audio Render lets pile up in front of the
	// device before it starts blocking the caller.
	aheadMillis = 250
)

// PlayerOptions selects the output sink and device rate.
type PlayerOptions struct {
	// Sink is the Pulse sink name; empty or "default" uses the server default.
	Sink       string
	SampleRate int
	// MediaName labels the stream in mixers. Defaults to "parley relay".
	MediaName string
}

// Player keeps one playback stream open on the output sink and renders
// queued samples into it, emitting silence when nothing is queued.
type Player struct {
	logger *slog.Logger
	rate   int

	client *pulse.Client
	stream *pulse.PlaybackStream

	queue *sampleQueue

	mu         sync.Mutex
	resamplers map[int]*resample.Stream
	closeOnce  sync.Once
}

// NewPlayer connects to Pulse and starts the playback stream.
func NewPlayer(logger *slog.Logger, opts PlayerOptions) (*Player, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid playback sample rate %d", opts.SampleRate)
	}

	client, err := newClient("audio-speakers")
	if err != nil {
		return nil, err
	}

	mediaName := opts.MediaName
	if mediaName == "" {
		mediaName = "parley relay"
	}
	streamOpts := []pulse.PlaybackOption{
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(opts.SampleRate),
		pulse.PlaybackLatency(playbackLatencySeconds),
		pulse.PlaybackMediaName(mediaName),
	}
	if !isDefault(opts.Sink) {
		sink, err := client.SinkByID(opts.Sink)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("resolve sink %q: %w", opts.Sink, err)
		}
		streamOpts = append(streamOpts, pulse.PlaybackSink(sink))
	}

	p := &Player{
		logger:     logger,
		rate:       opts.SampleRate,
		client:     client,
		queue:      newSampleQueue(opts.SampleRate * aheadMillis / 1000),
		resamplers: make(map[int]*resample.Stream),
	}

	stream, err := client.NewPlayback(pulse.Float32Reader(p.queue.read), streamOpts...)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse playback stream: %w", err)
	}
	p.stream = stream
	stream.Start()

	logger.Info("playback stream started", "sink", opts.Sink, "sample_rate", opts.SampleRate)
	return p, nil
}

// SampleRate returns the device rate samples are converted to.
func (p *Player) SampleRate() int {
	return p.rate
}

// Render converts samples to the device rate and queues them. It blocks while
// more than the look-ahead window is queued and returns early when ctx is done.
func (p *Player) Render(ctx context.Context, samples []float32, sampleRate int) error {
	out, err := p.convert(samples, sampleRate)
	if err != nil {
		return err
	}
	return p.queue.push(ctx, out)
}

// Close stops the stream and releases the Pulse connection. Queued audio is
// discarded.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.queue.close()
		if p.stream != nil {
			p.stream.Stop()
			p.stream.Close()
		}
		if p.client != nil {
			p.client.Close()
		}
	})
	return nil
}

// convert resamples to the device rate, keeping one stream per source rate so
// filter state carries across chunks of the same utterance.
func (p *Player) convert(samples []float32, sampleRate int) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid chunk sample rate %d", sampleRate)
	}
	if sampleRate == p.rate {
		return samples, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	stream, ok := p.resamplers[sampleRate]
	if !ok {
		var err error
		stream, err = resample.NewStream(sampleRate, p.rate)
		if err != nil {
			return nil, err
		}
		p.resamplers[sampleRate] = stream
	}
	return stream.Process(samples)
}

// sampleQueue hands queued samples to the Pulse reader callback and applies
// back-pressure to producers.
type sampleQueue struct {
	mu      sync.Mutex
	pending []float32
	ahead   int
	closed  bool
	space   chan struct{}
	done    chan struct{}
}

func newSampleQueue(ahead int) *sampleQueue {
	if ahead <= 0 {
		ahead = 1
	}
	return &sampleQueue{
		ahead: ahead,
		space: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// push appends samples, then waits until the backlog drops to the look-ahead
// window.
func (q *sampleQueue) push(ctx context.Context, samples []float32) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrPlayerClosed
	}
	q.pending = append(q.pending, samples...)
	q.mu.Unlock()

	for {
		q.mu.Lock()
		backlog := len(q.pending)
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return ErrPlayerClosed
		}
		if backlog <= q.ahead {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return ErrPlayerClosed
		case <-q.space:
		}
	}
}

// read fills buf from the queue and pads the rest with silence. It never
// blocks.
func (q *sampleQueue) read(buf []float32) (int, error) {
	q.mu.Lock()
	n := copy(buf, q.pending)
	q.pending = q.pending[n:]
	if len(q.pending) == 0 {
		q.pending = nil
	}
	q.mu.Unlock()

	clear(buf[n:])

	if n > 0 {
		select {
		case q.space <- struct{}{}:
		default:
		}
	}
	return len(buf), nil
}

func (q *sampleQueue) backlog() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *sampleQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.pending = nil
	close(q.done)
}
