package fsm

import (
	"errors"
	"fmt"
)

type State string

type Event string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
)

const (
	EventPress    Event = "press"
	EventRelease  Event = "release"
	EventComplete Event = "complete"
	EventReset    Event = "reset"
)

// ErrInvalidTransition marks an event that has no edge from the current state.
var ErrInvalidTransition = errors.New("invalid transition")

func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle, StateRecording, StateProcessing:
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}

	if event == EventReset {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		if event == EventPress {
			return StateRecording, nil
		}
	case StateRecording:
		if event == EventRelease {
			return StateProcessing, nil
		}
	case StateProcessing:
		if event == EventComplete {
			return StateIdle, nil
		}
	}
	return current, invalidTransition(current, event)
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("%w: %s --(%s)--> ?", ErrInvalidTransition, state, event)
}
