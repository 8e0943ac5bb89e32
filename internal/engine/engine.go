// Package engine defines the contracts between the pipeline and the speech
// engines that recognize, translate and synthesize utterances.
package engine

import "context"

// Chunk is one block of synthesized mono audio. Last marks the end of one
// synthesis request's stream and may carry no samples.
type Chunk struct {
	Samples    []float32
	SampleRate int
	Last       bool
}

// Sink receives synthesized audio. Deliver may wait for queue space, so
// synthesizers call it from their own streaming goroutine rather than from
// Synthesize.
type Sink interface {
	Deliver(Chunk)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Chunk)

func (f SinkFunc) Deliver(c Chunk) {
	f(c)
}

// Recognition is the speech-to-text result for one utterance.
type Recognition struct {
	Text     string
	IsSpeech bool
}

// RecognizeRequest carries one snapshot and the per-session recognizer options.
type RecognizeRequest struct {
	Samples    []float32
	SampleRate int
	VAD        bool
	ModelPath  string
	Language   string
}

// Recognizer turns captured audio into text.
type Recognizer interface {
	// DetectSpeech reports whether samples contain voice activity.
	DetectSpeech(ctx context.Context, samples []float32, sampleRate int) (bool, error)
	Recognize(ctx context.Context, req RecognizeRequest) (Recognition, error)
}

// AutoDetect asks a translator to infer the source language.
const AutoDetect = "auto"

// Translator converts text between languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// SynthesisRequest is one text-to-speech request.
type SynthesisRequest struct {
	Text    string
	VoiceID int
	Speed   float64
}

// Synthesizer renders text to audio. Output is delivered asynchronously
// through the Sink the synthesizer was configured with, so a nil return only
// means the request was accepted. ctx bounds the request, not the streaming
// that follows it; streaming stops when the synthesizer is closed.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) error
}
