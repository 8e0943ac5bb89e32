package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and calls onChange when its content changes
// and still validates. Invalid edits are logged and the previous config is
// kept.
type Watcher struct {
	path     string
	interval time.Duration
	logger   *slog.Logger
	onChange func(old, new Config)

	mu        sync.Mutex
	current   Config
	lastMtime time.Time
	lastHash  [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 2 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger routes watcher diagnostics to logger.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher starts polling path. initial is the config already loaded from
// path; a missing file is tolerated until it appears.
func NewWatcher(path string, initial Config, onChange func(old, new Config), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		interval: 2 * time.Second,
		logger:   slog.New(slog.DiscardHandler),
		onChange: onChange,
		current:  initial,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if content, mtime, err := w.read(); err == nil {
		w.lastHash = sha256.Sum256(content)
		w.lastMtime = mtime
	}

	w.wg.Add(1)
	go w.poll()
	return w
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops polling and waits for the poll loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

func (w *Watcher) poll() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	content, mtime, err := w.read()
	if err != nil {
		w.logger.Warn("config reload read failed", "path", w.path, "error", err.Error())
		return
	}
	hash := sha256.Sum256(content)

	w.mu.Lock()
	if hash == w.lastHash {
		w.lastMtime = mtime
		w.mu.Unlock()
		return
	}
	w.lastHash = hash
	w.lastMtime = mtime
	w.mu.Unlock()

	cfg, warnings, err := Parse(content, Default())
	if err != nil {
		w.logger.Warn("config reload rejected; keeping previous config", "path", w.path, "error", err.Error())
		return
	}
	for _, warning := range warnings {
		w.logger.Warn("config warning", "path", w.path, "message", warning.Message)
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	w.logger.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func (w *Watcher) read() ([]byte, time.Time, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, time.Time{}, err
	}
	content, err := os.ReadFile(w.path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read config %q: %w", w.path, err)
	}
	return content, info.ModTime(), nil
}
