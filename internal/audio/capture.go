package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

// blockFrames is the requested record fragment: 20ms at 16kHz.
const blockFrames = 320

// BlockFunc receives one block of captured mono samples on the Pulse record
// goroutine. It must not block. The returned slice is ignored by Capture, so
// a pass-through tap such as session.Controller.Intake fits directly.
type BlockFunc func(block []float32, sampleRate int) []float32

// Capture streams float32 mono blocks from one selected Pulse source.
type Capture struct {
	device     Device
	sampleRate int
	onBlock    BlockFunc

	client *pulse.Client
	stream *pulse.RecordStream

	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup

	samples atomic.Int64
}

// StartCapture opens a mono float32 record stream on selected and hands every
// block to onBlock until ctx is done or Stop is called.
func StartCapture(ctx context.Context, selected Device, sampleRate int, onBlock BlockFunc) (*Capture, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid capture sample rate %d", sampleRate)
	}
	if onBlock == nil {
		return nil, fmt.Errorf("capture block callback is required")
	}

	client, err := newClient("audio-input-microphone")
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected, sampleRate, onBlock)
	capture.client = client

	stream, err := client.NewRecord(
		pulse.Float32Writer(capture.onFrames),
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(blockFrames*4),
		pulse.RecordMediaName("parley capture"),
	)
	if err != nil {
		_ = capture.Stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = capture.Stop()
		case <-capture.stopCh:
		}
	}()

	return capture, nil
}

func newCapture(device Device, sampleRate int, onBlock BlockFunc) *Capture {
	return &Capture{
		device:     device,
		sampleRate: sampleRate,
		onBlock:    onBlock,
		stopCh:     make(chan struct{}),
	}
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// SampleRate returns the negotiated capture rate.
func (c *Capture) SampleRate() int {
	return c.sampleRate
}

// SamplesCaptured reports total samples accepted from Pulse.
func (c *Capture) SamplesCaptured() int64 {
	return c.samples.Load()
}

// Done is closed once Stop has run.
func (c *Capture) Done() <-chan struct{} {
	return c.stopCh
}

// Stop halts the stream and waits for an in-flight callback to return.
func (c *Capture) Stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		close(c.stopCh)
		c.mu.Unlock()

		if c.stream != nil {
			c.stream.Stop()
			c.stream.Close()
		}
		if c.client != nil {
			c.client.Close()
		}
		c.inflight.Wait()
	})
	return nil
}

// onFrames receives float32 frames from Pulse and forwards them to onBlock.
func (c *Capture) onFrames(frames []float32) (int, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as c.stopped to avoid Add/Wait races.
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	if len(frames) == 0 {
		return 0, nil
	}
	c.samples.Add(int64(len(frames)))
	c.onBlock(frames, c.sampleRate)
	return len(frames), nil
}
