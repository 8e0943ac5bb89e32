// Package pcm converts between float32 samples and 16-bit little-endian PCM
// and reads and writes minimal WAV files.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ToFloat32 converts signed 16-bit little-endian PCM to samples in [-1, 1].
// A trailing odd byte is ignored.
func ToFloat32(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// FromFloat32 converts samples to signed 16-bit little-endian PCM, clipping
// values outside [-1, 1].
func FromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	if s >= 1 {
		return math.MaxInt16
	}
	if s <= -1 {
		return math.MinInt16
	}
	return int16(s * 32767)
}

// WriteWAV writes 16-bit PCM with a minimal RIFF header.
func WriteWAV(w io.Writer, data []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(data)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(data)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ErrUnsupportedWAV reports a RIFF file that is not 16-bit integer PCM.
var ErrUnsupportedWAV = errors.New("unsupported wav encoding")

// ReadWAV decodes a 16-bit PCM RIFF stream into mono samples, averaging
// channels. Chunks other than "fmt " and "data" are skipped.
func ReadWAV(r io.Reader) ([]float32, int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a wave file: %w", ErrUnsupportedWAV)
	}

	var (
		channels   int
		sampleRate int
		haveFormat bool
	)
	for {
		var head [8]byte
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, 0, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(head[0:4])
		size := int64(binary.LittleEndian.Uint32(head[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too short: %w", ErrUnsupportedWAV)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 || bits != 16 {
				return nil, 0, fmt.Errorf("format %d with %d bits: %w", format, bits, ErrUnsupportedWAV)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			if channels <= 0 || sampleRate <= 0 {
				return nil, 0, fmt.Errorf("channels %d rate %d: %w", channels, sampleRate, ErrUnsupportedWAV)
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, 0, fmt.Errorf("data before fmt chunk: %w", ErrUnsupportedWAV)
			}
			data, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, 0, fmt.Errorf("read data chunk: %w", err)
			}
			return downmix(ToFloat32(data), channels), sampleRate, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, 0, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
		if id == "fmt " && size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return nil, 0, fmt.Errorf("skip fmt padding: %w", err)
			}
		}
	}
}

func downmix(interleaved []float32, channels int) []float32 {
	if channels == 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
