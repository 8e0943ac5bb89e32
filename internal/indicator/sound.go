package indicator

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/engine"
	"github.com/rbright/parley/internal/pcm"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueError
)

func (k cueKind) String() string {
	switch k {
	case cueStart:
		return "start"
	case cueStop:
		return "stop"
	case cueComplete:
		return "complete"
	case cueError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	toneRate = 16000
	toneGap  = 22 * time.Millisecond
)

// tone is one enveloped sine segment of a cue.
type tone struct {
	hz   float64
	dur  time.Duration
	gain float64
}

var tonePatterns = map[cueKind][]tone{
	cueStart:    {{hz: 880, dur: 70 * time.Millisecond, gain: 0.18}, {hz: 1175, dur: 70 * time.Millisecond, gain: 0.18}},
	cueStop:     {{hz: 620, dur: 120 * time.Millisecond, gain: 0.18}},
	cueComplete: {{hz: 740, dur: 65 * time.Millisecond, gain: 0.18}, {hz: 988, dur: 90 * time.Millisecond, gain: 0.18}},
	cueError:    {{hz: 480, dur: 90 * time.Millisecond, gain: 0.2}, {hz: 320, dur: 140 * time.Millisecond, gain: 0.2}},
}

// cueBank resolves each cue once: a configured WAV file when it decodes,
// otherwise the built-in tone pattern.
type cueBank struct {
	logger *slog.Logger
	files  map[cueKind]string

	mu     sync.Mutex
	chunks map[cueKind]engine.Chunk
}

func newCueBank(cfg config.IndicatorConfig, logger *slog.Logger) *cueBank {
	return &cueBank{
		logger: logger,
		files: map[cueKind]string{
			cueStart:    expandUserPath(cfg.SoundStartFile),
			cueStop:     expandUserPath(cfg.SoundStopFile),
			cueComplete: expandUserPath(cfg.SoundCompleteFile),
			cueError:    expandUserPath(cfg.SoundErrorFile),
		},
		chunks: make(map[cueKind]engine.Chunk),
	}
}

func (b *cueBank) chunk(kind cueKind) engine.Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.chunks[kind]; ok {
		return c
	}

	c := engine.Chunk{Samples: renderTones(tonePatterns[kind]), SampleRate: toneRate}
	if path := b.files[kind]; path != "" {
		loaded, err := LoadCueFile(path)
		if err != nil {
			b.logger.Warn("cue file unusable, falling back to tone", "cue", kind.String(), "error", err.Error())
		} else {
			c = loaded
		}
	}
	b.chunks[kind] = c
	return c
}

// LoadCueFile decodes a 16-bit PCM WAV cue. A leading "~/" expands to the
// home directory.
func LoadCueFile(path string) (engine.Chunk, error) {
	path = expandUserPath(path)
	f, err := os.Open(path)
	if err != nil {
		return engine.Chunk{}, fmt.Errorf("open cue file: %w", err)
	}
	defer f.Close()

	samples, rate, err := pcm.ReadWAV(f)
	if err != nil {
		return engine.Chunk{}, fmt.Errorf("decode cue file %q: %w", path, err)
	}
	if len(samples) == 0 {
		return engine.Chunk{}, fmt.Errorf("cue file %q has no samples", path)
	}
	return engine.Chunk{Samples: samples, SampleRate: rate}, nil
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw != "~" && !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(raw[1:], "/"))
}

// renderTones concatenates parts with a short silent gap between each.
func renderTones(parts []tone) []float32 {
	var out []float32
	for i, part := range parts {
		if i > 0 {
			out = append(out, make([]float32, toneSamples(toneGap))...)
		}
		out = append(out, renderTone(part)...)
	}
	return out
}

func renderTone(t tone) []float32 {
	n := toneSamples(t.dur)
	if n <= 0 || t.hz <= 0 || t.gain <= 0 {
		return nil
	}

	ramp := max(min(n/10, toneRate/200), 1) // at most 5ms
	out := make([]float32, n)
	for i := range out {
		env := min(1, float64(i)/float64(ramp), float64(n-i-1)/float64(ramp))
		phase := 2 * math.Pi * t.hz * float64(i) / toneRate
		out[i] = float32(math.Sin(phase) * t.gain * env)
	}
	return out
}

func toneSamples(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * toneRate))
}
