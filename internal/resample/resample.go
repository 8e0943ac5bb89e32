// Package resample converts mono float32 audio between sample rates.
package resample

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Stream resamples consecutive blocks of one continuous mono signal, keeping
// filter state between calls. A Stream is not safe for concurrent use.
type Stream struct {
	from, to  int
	resampler resampling.Resampler
}

// NewStream builds a stream converting from -> to. Equal rates pass blocks
// through untouched.
func NewStream(from, to int) (*Stream, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", from, to)
	}
	s := &Stream{from: from, to: to}
	if from == to {
		return s, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	s.resampler = r
	return s, nil
}

// Rates returns the input and output rates.
func (s *Stream) Rates() (from, to int) { return s.from, s.to }

// Process converts one block.
func (s *Stream) Process(block []float32) ([]float32, error) {
	if s.resampler == nil || len(block) == 0 {
		return block, nil
	}
	in := make([]float64, len(block))
	for i, v := range block {
		in[i] = float64(v)
	}
	out, err := s.resampler.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	res := make([]float32, len(out))
	for i, v := range out {
		switch {
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		res[i] = float32(v)
	}
	return res, nil
}

// Resample converts a whole buffer in one pass.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from == to {
		return samples, nil
	}
	s, err := NewStream(from, to)
	if err != nil {
		return nil, err
	}
	return s.Process(samples)
}
