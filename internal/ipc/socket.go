package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

var ErrAlreadyRunning = errors.New("parley daemon already running")

// SocketEnv overrides the runtime socket location.
const SocketEnv = "PARLEY_SOCKET"

// RuntimeSocketPath resolves $PARLEY_SOCKET or $XDG_RUNTIME_DIR/parley.sock.
func RuntimeSocketPath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(SocketEnv)); override != "" {
		return override, nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, "parley.sock"), nil
}

// AcquireOptions tune how Acquire treats a socket path that is already bound.
type AcquireOptions struct {
	// PingTimeout bounds the status request sent to a possible live daemon.
	PingTimeout time.Duration
	// Retries is how many more binds are attempted after removing a stale
	// socket.
	Retries int
	// OnStale is told about each stale socket removed.
	OnStale func(path string)
}

// Acquire binds the daemon socket at path with owner-only permissions. A
// socket left behind by a daemon that died is removed and the bind retried.
// When a daemon answers on path Acquire returns ErrAlreadyRunning, and when
// the answer is inconclusive the socket is left alone.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen on %s: %w", path, err)
		}
		if attempt >= opts.Retries+1 {
			return nil, fmt.Errorf("socket %s still in use after %d retries", path, opts.Retries)
		}
		if err := clearStale(ctx, path, opts); err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}
}

// clearStale removes path unless something still answers on it.
func clearStale(ctx context.Context, path string, opts AcquireOptions) error {
	alive, err := Ping(ctx, path, opts.PingTimeout)
	switch {
	case alive:
		return ErrAlreadyRunning
	case err != nil:
		return fmt.Errorf("ping existing socket %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	if opts.OnStale != nil {
		opts.OnStale(path)
	}
	return nil
}
