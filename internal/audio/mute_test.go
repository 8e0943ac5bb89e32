package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSourceMuteRequiresName(t *testing.T) {
	_, err := NewSourceMute("  ")
	require.Error(t, err)

	mute, err := NewSourceMute(" alsa_input.usb-mic ")
	require.NoError(t, err)
	require.Equal(t, "alsa_input.usb-mic", mute.Name())
}

func TestSourceMuteFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	mute, err := NewSourceMute("mic")
	require.NoError(t, err)

	_, err = mute.IsMuted(context.Background())
	require.Error(t, err)
	require.Error(t, mute.SetMuted(context.Background(), true))
}

func TestWithDeadlineReturnsResult(t *testing.T) {
	v, err := withDeadline(context.Background(), func() (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, v)

	boom := errors.New("boom")
	_, err = withDeadline(context.Background(), func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
}

func TestWithDeadlineAbandonsStalledCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := withDeadline(ctx, func() (bool, error) {
		<-release
		return true, nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestAbandonedRequestStillRunsBeforeLaterOne(t *testing.T) {
	order := make(chan struct{}, 1)
	release := make(chan struct{})
	var applied []string
	var mu sync.Mutex
	record := func(v string) {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := withDeadline(ctx, inOrder(order, func() (bool, error) {
		<-release
		record("mute")
		return true, nil
	}))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() {
		_, err := withDeadline(context.Background(), inOrder(order, func() (bool, error) {
			record("unmute")
			return false, nil
		}))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("later request overtook the abandoned one")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"mute", "unmute"}, applied)
}
