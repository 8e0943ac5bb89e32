package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/parley/internal/engine"
	"github.com/stretchr/testify/require"
)

type recordingRenderer struct {
	mu      sync.Mutex
	chunks  [][]float32
	rates   []int
	gate    chan struct{}
	entered chan struct{}
	err     error
	calls   atomic.Int32
}

func (r *recordingRenderer) Render(ctx context.Context, samples []float32, rate int) error {
	r.calls.Add(1)
	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, samples)
	r.rates = append(r.rates, rate)
	return nil
}

func (r *recordingRenderer) rendered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

func TestDeliverRendersChunksInOrder(t *testing.T) {
	renderer := &recordingRenderer{}
	d := New(renderer, nil, Options{QueueSize: 8})
	d.Start(context.Background())
	t.Cleanup(func() { _ = d.Close() })

	for i := 0; i < 3; i++ {
		d.Deliver(engine.Chunk{Samples: []float32{float32(i)}, SampleRate: 24000})
	}

	require.Eventually(t, func() bool { return renderer.rendered() == 3 }, 2*time.Second, 5*time.Millisecond)

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	require.Equal(t, [][]float32{{0}, {1}, {2}}, renderer.chunks)
	require.Equal(t, []int{24000, 24000, 24000}, renderer.rates)
}

func TestDeliverCopiesSamples(t *testing.T) {
	renderer := &recordingRenderer{}
	d := New(renderer, nil, Options{})

	samples := []float32{0.25}
	require.NoError(t, d.TryDeliver(engine.Chunk{Samples: samples, SampleRate: 16000}))
	samples[0] = 1

	d.Start(context.Background())
	t.Cleanup(func() { _ = d.Close() })
	require.Eventually(t, func() bool { return renderer.rendered() == 1 }, 2*time.Second, 5*time.Millisecond)

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	require.Equal(t, float32(0.25), renderer.chunks[0][0])
}

func TestDropWhenFullNeverBlocks(t *testing.T) {
	renderer := &recordingRenderer{gate: make(chan struct{}), entered: make(chan struct{}, 16)}
	d := New(renderer, nil, Options{QueueSize: 2, DropWhenFull: true})
	d.Start(context.Background())
	t.Cleanup(func() { _ = d.Close() })

	d.Deliver(engine.Chunk{Samples: []float32{1}, SampleRate: 16000})
	<-renderer.entered

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Deliver(engine.Chunk{Samples: []float32{1}, SampleRate: 16000})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a full queue")
	}

	_, dropped, _ := d.Stats()
	require.Equal(t, int64(8), dropped)
	require.ErrorIs(t, d.TryDeliver(engine.Chunk{Samples: []float32{1}}), ErrQueueFull)
}

// pacedRenderer takes a fixed wall-clock time per chunk, like a device.
type pacedRenderer struct {
	per    time.Duration
	mu     sync.Mutex
	values []float32
}

func (r *pacedRenderer) Render(ctx context.Context, samples []float32, _ int) error {
	select {
	case <-time.After(r.per):
	case <-ctx.Done():
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, samples[0])
	return nil
}

func (r *pacedRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

func TestLongStreamIsDeliveredWhole(t *testing.T) {
	renderer := &pacedRenderer{per: time.Millisecond}
	d := New(renderer, nil, Options{QueueSize: 4})
	d.Start(context.Background())
	t.Cleanup(func() { _ = d.Close() })

	// 150 chunks of 100ms each, offered far faster than they render.
	const total = 150
	for i := 0; i < total; i++ {
		d.Deliver(engine.Chunk{Samples: append([]float32{float32(i)}, make([]float32, 1599)...), SampleRate: 16000})
	}

	require.Eventually(t, func() bool { return renderer.count() == total }, 5*time.Second, 5*time.Millisecond)

	delivered, dropped, failed := d.Stats()
	require.Equal(t, int64(total), delivered)
	require.Zero(t, dropped)
	require.Zero(t, failed)

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	for i, v := range renderer.values {
		require.Equal(t, float32(i), v)
	}
}

func TestBlockedDeliverReturnsOnClose(t *testing.T) {
	renderer := &recordingRenderer{gate: make(chan struct{}), entered: make(chan struct{}, 16)}
	d := New(renderer, nil, Options{QueueSize: 1})
	d.Start(context.Background())

	d.Deliver(engine.Chunk{Samples: []float32{1}, SampleRate: 16000})
	<-renderer.entered
	d.Deliver(engine.Chunk{Samples: []float32{2}, SampleRate: 16000})

	returned := make(chan struct{})
	go func() {
		d.Deliver(engine.Chunk{Samples: []float32{3}, SampleRate: 16000})
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("Deliver returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, d.Close())
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Deliver stayed blocked after Close")
	}
	require.ErrorIs(t, d.TryDeliver(engine.Chunk{Samples: []float32{4}}), ErrClosed)
}

func TestStreamEndRunsAfterLastChunkRenders(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	renderer := RendererFunc(func(_ context.Context, _ []float32, _ int) error {
		time.Sleep(5 * time.Millisecond)
		record("chunk")
		return nil
	})
	d := New(renderer, nil, Options{QueueSize: 8, OnStreamEnd: func() { record("end") }})
	d.Start(context.Background())
	t.Cleanup(func() { _ = d.Close() })

	for i := 0; i < 3; i++ {
		d.Deliver(engine.Chunk{Samples: []float32{1}, SampleRate: 16000})
	}
	d.Deliver(engine.Chunk{SampleRate: 16000, Last: true})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 4
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"chunk", "chunk", "chunk", "end"}, events)

	delivered, _, _ := d.Stats()
	require.Equal(t, int64(3), delivered)
}

func TestCloseCancelsInFlightRender(t *testing.T) {
	renderer := &recordingRenderer{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	d := New(renderer, nil, Options{})
	d.Start(context.Background())

	d.Deliver(engine.Chunk{Samples: []float32{1}, SampleRate: 16000})
	d.Deliver(engine.Chunk{Samples: []float32{2}, SampleRate: 16000})
	<-renderer.entered

	closed := make(chan error, 1)
	go func() { closed <- d.Close() }()

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel in-flight render")
	}

	require.Zero(t, renderer.rendered())
	require.ErrorIs(t, d.TryDeliver(engine.Chunk{Samples: []float32{3}}), ErrClosed)
	require.NoError(t, d.Close())
}

func TestRenderFailureIsCountedAndWorkerContinues(t *testing.T) {
	renderer := &recordingRenderer{err: errors.New("stream gone")}
	d := New(renderer, nil, Options{})
	d.Start(context.Background())
	t.Cleanup(func() { _ = d.Close() })

	d.Deliver(engine.Chunk{Samples: []float32{1}, SampleRate: 16000})
	d.Deliver(engine.Chunk{Samples: []float32{1}, SampleRate: 16000})

	require.Eventually(t, func() bool {
		_, _, failed := d.Stats()
		return failed == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartContextCancellationStopsWorker(t *testing.T) {
	renderer := &recordingRenderer{}
	d := New(renderer, nil, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case <-d.done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Close())
}

func TestEmptyChunkIsIgnored(t *testing.T) {
	d := New(RendererFunc(func(context.Context, []float32, int) error { return nil }), nil, Options{QueueSize: 1})

	require.NoError(t, d.TryDeliver(engine.Chunk{}))
	require.NoError(t, d.TryDeliver(engine.Chunk{Samples: []float32{1}}))
	require.ErrorIs(t, d.TryDeliver(engine.Chunk{Samples: []float32{1}}), ErrQueueFull)
	require.ErrorIs(t, d.TryDeliver(engine.Chunk{Last: true}), ErrQueueFull)
	require.NoError(t, d.Close())
}
