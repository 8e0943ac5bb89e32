package session

import "sync"

// frameBuffer is the capture store for one recording. Appends are accepted
// only between start and snapshotAndClear; the lock is held only for a copy.
type frameBuffer struct {
	mu         sync.Mutex
	samples    []float32
	sampleRate int
	open       bool
	maxSamples int
	truncated  bool
}

type snapshot struct {
	samples    []float32
	sampleRate int
	truncated  bool
}

func newFrameBuffer(maxSamples int) *frameBuffer {
	return &frameBuffer{maxSamples: maxSamples}
}

// start empties the buffer and begins accepting appends.
func (b *frameBuffer) start(sampleRate int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
	b.sampleRate = sampleRate
	b.truncated = false
	b.open = true
}

// append copies block into the buffer and reports whether it was accepted.
// Samples past maxSamples are dropped and the recording is marked truncated.
func (b *frameBuffer) append(block []float32, sampleRate int) bool {
	if len(block) == 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return false
	}
	if len(b.samples) == 0 && sampleRate > 0 {
		b.sampleRate = sampleRate
	}
	if b.maxSamples > 0 {
		room := b.maxSamples - len(b.samples)
		if room <= 0 {
			b.truncated = true
			return false
		}
		if len(block) > room {
			block = block[:room]
			b.truncated = true
		}
	}
	b.samples = append(b.samples, block...)
	return true
}

// snapshotAndClear copies the recording, empties the buffer and stops
// accepting appends, all under one lock acquisition.
func (b *frameBuffer) snapshotAndClear() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := snapshot{
		samples:    make([]float32, len(b.samples)),
		sampleRate: b.sampleRate,
		truncated:  b.truncated,
	}
	copy(snap.samples, b.samples)

	b.samples = b.samples[:0]
	b.truncated = false
	b.open = false
	return snap
}

// stop discards any buffered audio and closes the buffer.
func (b *frameBuffer) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
	b.truncated = false
	b.open = false
}

func (b *frameBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}
