// Package playback delivers synthesized audio to the output device on a
// dedicated worker, decoupled from the synthesis and capture goroutines.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbright/parley/internal/engine"
	"github.com/rbright/parley/internal/observe"
)

var (
	// ErrQueueFull reports a chunk dropped because the worker is behind.
	ErrQueueFull = errors.New("playback queue full")
	// ErrClosed reports a chunk offered after Close.
	ErrClosed = errors.New("playback closed")
)

const defaultQueueSize = 64

// Renderer writes samples to the output device. Render may block until the
// samples are queued for playback and must return when ctx is cancelled.
type Renderer interface {
	Render(ctx context.Context, samples []float32, sampleRate int) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(context.Context, []float32, int) error

func (f RendererFunc) Render(ctx context.Context, samples []float32, sampleRate int) error {
	return f(ctx, samples, sampleRate)
}

// Options tune the delivery queue.
type Options struct {
	QueueSize int
	Metrics   *observe.Metrics
	// DropWhenFull makes Deliver drop chunks instead of waiting for space.
	DropWhenFull bool
	// OnStreamEnd runs on the worker after a Last chunk, once every chunk
	// queued before it has been rendered.
	OnStreamEnd func()
}

// Delivery is the engine.Sink handed to synthesizers.
type Delivery struct {
	logger   *slog.Logger
	renderer Renderer
	metrics  *observe.Metrics
	chunks   chan engine.Chunk
	dropFull bool
	onEnd    func()

	mu     sync.RWMutex
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	started   atomic.Bool
	done      chan struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

var _ engine.Sink = (*Delivery)(nil)

// New constructs a stopped delivery; call Start to run its worker.
func New(renderer Renderer, logger *slog.Logger, opts Options) *Delivery {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Delivery{
		logger:   logger,
		renderer: renderer,
		metrics:  opts.Metrics,
		chunks:   make(chan engine.Chunk, opts.QueueSize),
		dropFull: opts.DropWhenFull,
		onEnd:    opts.OnStreamEnd,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the render worker. The worker stops when ctx is done or
// Close is called. Calling Start more than once has no effect.
func (d *Delivery) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.started.Store(true)
		go func() {
			select {
			case <-ctx.Done():
				d.cancel()
			case <-d.ctx.Done():
			}
		}()
		go d.work()
	})
}

// Deliver enqueues a chunk, waiting for queue space so a stream longer than
// the queue is rendered whole. It returns early, dropping the chunk, once the
// delivery is closed. With DropWhenFull it never waits.
func (d *Delivery) Deliver(chunk engine.Chunk) {
	var err error
	if d.dropFull {
		err = d.TryDeliver(chunk)
	} else {
		err = d.enqueue(chunk)
	}
	if err != nil {
		d.dropped.Add(1)
		d.metrics.RecordChunk(context.Background(), "dropped")
		d.logger.Debug("dropping synthesized chunk", "samples", len(chunk.Samples), "error", err.Error())
	}
}

// TryDeliver enqueues a copy of chunk or reports why it could not.
func (d *Delivery) TryDeliver(chunk engine.Chunk) error {
	if len(chunk.Samples) == 0 && !chunk.Last {
		return nil
	}
	chunk = copyChunk(chunk)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.chunks <- chunk:
		return nil
	default:
		return ErrQueueFull
	}
}

// enqueue waits for queue space. The lock is not held while waiting so Close
// can proceed and cancel the wait.
func (d *Delivery) enqueue(chunk engine.Chunk) error {
	if len(chunk.Samples) == 0 && !chunk.Last {
		return nil
	}
	chunk = copyChunk(chunk)

	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	select {
	case d.chunks <- chunk:
		return nil
	case <-d.ctx.Done():
		return ErrClosed
	}
}

func copyChunk(chunk engine.Chunk) engine.Chunk {
	samples := make([]float32, len(chunk.Samples))
	copy(samples, chunk.Samples)
	return engine.Chunk{Samples: samples, SampleRate: chunk.SampleRate, Last: chunk.Last}
}

// Close stops the worker and cancels in-flight rendering. Queued chunks are
// discarded.
func (d *Delivery) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	if d.started.Load() {
		<-d.done
	}

	discarded := 0
	for {
		select {
		case <-d.chunks:
			discarded++
		default:
			if discarded > 0 {
				d.logger.Debug("discarded queued chunks on close", "chunks", discarded)
			}
			return nil
		}
	}
}

// Stats returns delivered, dropped and failed chunk counts.
func (d *Delivery) Stats() (delivered, dropped, failed int64) {
	return d.delivered.Load(), d.dropped.Load(), d.failed.Load()
}

func (d *Delivery) work() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			return
		case chunk := <-d.chunks:
			if len(chunk.Samples) > 0 {
				d.render(chunk)
				if d.ctx.Err() != nil {
					return
				}
			}
			if chunk.Last && d.onEnd != nil {
				d.onEnd()
			}
		}
	}
}

func (d *Delivery) render(chunk engine.Chunk) {
	if err := d.renderer.Render(d.ctx, chunk.Samples, chunk.SampleRate); err != nil {
		if d.ctx.Err() != nil {
			return
		}
		d.failed.Add(1)
		d.metrics.RecordChunk(d.ctx, "failed")
		d.logger.Warn("render synthesized chunk failed", "error", err.Error())
		return
	}
	d.delivered.Add(1)
	d.metrics.RecordChunk(d.ctx, "delivered")
}
