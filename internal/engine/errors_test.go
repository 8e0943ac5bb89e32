package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := Errorf(KindInvalidInput, "recognize", "empty audio")
	wrapped := Wrap(KindEngine, "pipeline", fmt.Errorf("stage: %w", inner))

	require.Equal(t, KindInvalidInput, KindOf(wrapped))
}

func TestWrapClassifiesContextErrorsAsTimeout(t *testing.T) {
	err := Wrap(KindEngine, "translate", fmt.Errorf("post: %w", context.DeadlineExceeded))

	require.Equal(t, KindTimeout, KindOf(err))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Contains(t, err.Error(), "translate: timeout")
}

func TestKindOfUntaggedDefaultsToEngine(t *testing.T) {
	require.Equal(t, KindEngine, KindOf(errors.New("boom")))
	require.Equal(t, Kind(""), KindOf(nil))
	require.NoError(t, Wrap(KindEngine, "noop", nil))
}

func TestSinkFuncDelivers(t *testing.T) {
	var got []Chunk
	sink := SinkFunc(func(c Chunk) { got = append(got, c) })

	sink.Deliver(Chunk{Samples: []float32{0.1}, SampleRate: 16000})

	require.Len(t, got, 1)
	require.Equal(t, 16000, got[0].SampleRate)
}

func TestKindForStatus(t *testing.T) {
	cases := map[int]Kind{
		400: KindInvalidInput,
		401: KindUnavailable,
		408: KindTimeout,
		429: KindUnavailable,
		503: KindUnavailable,
		504: KindTimeout,
		418: KindEngine,
	}
	for code, want := range cases {
		require.Equal(t, want, KindForStatus(code), "status %d", code)
	}
}
