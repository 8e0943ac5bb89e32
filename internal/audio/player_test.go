package audio

import (
	"context"
	"testing"
	"time"

	"github.com/rbright/parley/internal/resample"
	"github.com/stretchr/testify/require"
)

func TestSampleQueueReadPadsWithSilence(t *testing.T) {
	q := newSampleQueue(16)
	require.NoError(t, q.push(context.Background(), []float32{0.5, -0.5}))

	buf := []float32{9, 9, 9, 9}
	n, err := q.read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []float32{0.5, -0.5, 0, 0}, buf)
	require.Zero(t, q.backlog())
}

func TestSampleQueuePushBlocksUntilDrained(t *testing.T) {
	q := newSampleQueue(4)

	done := make(chan error, 1)
	go func() {
		done <- q.push(context.Background(), make([]float32, 10))
	}()

	select {
	case <-done:
		t.Fatal("push returned before backlog drained")
	case <-time.After(30 * time.Millisecond):
	}

	buf := make([]float32, 6)
	_, _ = q.read(buf)
	require.NoError(t, <-done)
	require.Equal(t, 4, q.backlog())
}

func TestSampleQueuePushHonorsContext(t *testing.T) {
	q := newSampleQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.push(ctx, make([]float32, 8))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSampleQueueCloseReleasesPushers(t *testing.T) {
	q := newSampleQueue(1)

	done := make(chan error, 1)
	go func() {
		done <- q.push(context.Background(), make([]float32, 8))
	}()
	time.Sleep(10 * time.Millisecond)
	q.close()
	q.close()

	require.ErrorIs(t, <-done, ErrPlayerClosed)
	require.ErrorIs(t, q.push(context.Background(), []float32{1}), ErrPlayerClosed)
	require.Zero(t, q.backlog())
}

func TestPlayerConvertResamplesPerRate(t *testing.T) {
	p := &Player{rate: 48000, queue: newSampleQueue(4800), resamplers: map[int]*resample.Stream{}}

	same, err := p.convert([]float32{0.1, 0.2}, 48000)
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2}, same)

	_, err = p.convert(make([]float32, 2400), 24000)
	require.NoError(t, err)
	require.Len(t, p.resamplers, 1)

	_, err = p.convert(make([]float32, 2400), 24000)
	require.NoError(t, err)
	require.Len(t, p.resamplers, 1)

	_, err = p.convert([]float32{1}, 0)
	require.Error(t, err)
}

func TestNewPlayerValidatesRate(t *testing.T) {
	_, err := NewPlayer(nil, PlayerOptions{SampleRate: 0})
	require.Error(t, err)
}
