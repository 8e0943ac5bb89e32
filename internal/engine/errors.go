package engine

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies engine failures.
type Kind string

const (
	KindUnavailable  Kind = "unavailable"
	KindTimeout      Kind = "timeout"
	KindInvalidInput Kind = "invalid_input"
	KindEngine       Kind = "engine"
	KindInternal     Kind = "internal"
)

// Error is a tagged engine failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind unless it already carries one.
// Context cancellation and deadline errors are classified as timeouts.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or KindEngine for untagged errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindEngine
}

// KindForStatus classifies an HTTP status returned by a hosted engine.
func KindForStatus(code int) Kind {
	switch {
	case code == 400 || code == 404 || code == 413 || code == 422:
		return KindInvalidInput
	case code == 408 || code == 504:
		return KindTimeout
	case code == 401 || code == 403 || code == 429 || code >= 500:
		return KindUnavailable
	default:
		return KindEngine
	}
}
