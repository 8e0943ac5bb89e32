package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbright/parley/internal/fsm"
	"github.com/rbright/parley/internal/ipc"
)

// Handle serves IPC commands from the hotkey shims.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	before := c.State()
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, State: string(before), Message: "status"}
	case ipc.CommandPress:
		state, err := c.Press(ctx)
		return c.respond(before, state, err, "already recording")
	case ipc.CommandRelease:
		state, err := c.Release(ctx)
		return c.respond(before, state, err, "not recording")
	case ipc.CommandToggle:
		state, err := c.Toggle(ctx)
		noop := "already recording"
		if before == fsm.StateRecording {
			noop = "not recording"
		}
		return c.respond(before, state, err, noop)
	default:
		return ipc.Response{OK: false, State: string(before), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// respond maps a transition result to an IPC response. The new state is
// reported when the edge moved the state machine, noop when it was ignored.
func (c *Controller) respond(before, state fsm.State, err error, noop string) ipc.Response {
	if err != nil {
		if errors.Is(err, ErrBusy) {
			c.logger.Info("press ignored while processing")
		}
		return ipc.Response{OK: false, State: string(state), Error: err.Error()}
	}

	message := noop
	if state != before {
		message = string(state)
	}
	return ipc.Response{OK: true, State: string(state), Message: message}
}
