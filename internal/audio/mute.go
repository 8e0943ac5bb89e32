package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pulseproto "github.com/jfreymuth/pulse/proto"
)

// SourceMute reads and toggles the mute flag of one named Pulse source: the
// upstream microphone parley silences while the user is speaking.
//
// Requests are applied one at a time in call order. A request abandoned at
// its deadline still runs, and later requests queue behind it, so the last
// call made always decides the final state.
type SourceMute struct {
	name  string
	order chan struct{}
}

// NewSourceMute returns a mute control for the named source.
func NewSourceMute(name string) (*SourceMute, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("mute source name is required")
	}
	return &SourceMute{name: name, order: make(chan struct{}, 1)}, nil
}

// Name returns the source this control acts on.
func (m *SourceMute) Name() string {
	return m.name
}

// IsMuted reports the current mute flag of the source.
func (m *SourceMute) IsMuted(ctx context.Context) (bool, error) {
	return withDeadline(ctx, inOrder(m.order, func() (bool, error) {
		client, err := newClient("microphone-sensitivity-muted")
		if err != nil {
			return false, err
		}
		defer client.Close()

		var info pulseproto.GetSourceInfoReply
		err = client.RawRequest(&pulseproto.GetSourceInfo{
			SourceIndex: pulseproto.Undefined,
			SourceName:  m.name,
		}, &info)
		if err != nil {
			return false, fmt.Errorf("read source %q: %w", m.name, err)
		}
		return info.Mute, nil
	}))
}

// SetMuted sets the mute flag of the source.
func (m *SourceMute) SetMuted(ctx context.Context, muted bool) error {
	_, err := withDeadline(ctx, inOrder(m.order, func() (struct{}, error) {
		client, err := newClient("microphone-sensitivity-muted")
		if err != nil {
			return struct{}{}, err
		}
		defer client.Close()

		err = client.RawRequest(&pulseproto.SetSourceMute{
			SourceIndex: pulseproto.Undefined,
			SourceName:  m.name,
			Mute:        muted,
		}, nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("set source %q mute=%t: %w", m.name, muted, err)
		}
		return struct{}{}, nil
	}))
	return err
}

// inOrder wraps fn to run while holding order, queuing behind any earlier
// request that is still in flight.
func inOrder[T any](order chan struct{}, fn func() (T, error)) func() (T, error) {
	return func() (T, error) {
		order <- struct{}{}
		defer func() { <-order }()
		return fn()
	}
}

// withDeadline runs fn on its own goroutine so a stalled Pulse round trip
// cannot outlive ctx. The pulse client has no context support.
func withDeadline[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
