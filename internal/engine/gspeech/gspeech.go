// Package gspeech recognizes speech with the Google Cloud Speech-to-Text API.
package gspeech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/rbright/parley/internal/engine"
	"github.com/rbright/parley/internal/pcm"
	"github.com/rbright/parley/internal/transcript"
	"github.com/rbright/parley/internal/vad"
)

var _ engine.Recognizer = (*Recognizer)(nil)

const defaultLanguageCode = "en-US"

// Options configures the recognizer.
type Options struct {
	// LanguageCode is used when a request asks for automatic detection.
	LanguageCode    string
	CredentialsFile string
	VAD             vad.Config
}

type recognizeFunc func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Recognizer sends each utterance as one synchronous Recognize call.
type Recognizer struct {
	logger    *slog.Logger
	opts      Options
	recognize recognizeFunc
	close     func() error
}

// New dials the Speech API. Credentials come from opts.CredentialsFile or
// the application default credentials.
func New(ctx context.Context, logger *slog.Logger, opts Options) (*Recognizer, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, engine.Wrap(engine.KindUnavailable, "gspeech client", err)
	}
	r := newRecognizer(logger, opts, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	})
	r.close = client.Close
	return r, nil
}

func newRecognizer(logger *slog.Logger, opts Options, fn recognizeFunc) *Recognizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.LanguageCode == "" {
		opts.LanguageCode = defaultLanguageCode
	}
	return &Recognizer{
		logger:    logger,
		opts:      opts,
		recognize: fn,
		close:     func() error { return nil },
	}
}

// DetectSpeech runs the energy detector over samples.
func (r *Recognizer) DetectSpeech(_ context.Context, samples []float32, sampleRate int) (bool, error) {
	return vad.Detect(samples, sampleRate, r.opts.VAD), nil
}

// Recognize transcribes one utterance. ModelPath is ignored.
func (r *Recognizer) Recognize(ctx context.Context, req engine.RecognizeRequest) (engine.Recognition, error) {
	if len(req.Samples) == 0 || req.SampleRate <= 0 {
		return engine.Recognition{}, engine.Errorf(engine.KindInvalidInput, "gspeech recognize", "no audio")
	}
	if req.VAD && !vad.Detect(req.Samples, req.SampleRate, r.opts.VAD) {
		return engine.Recognition{IsSpeech: false}, nil
	}

	rpc := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(req.SampleRate),
			AudioChannelCount:          1,
			LanguageCode:               r.languageCode(req.Language),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm.FromFloat32(req.Samples)},
		},
	}
	if r.logger.Enabled(ctx, slog.LevelDebug) {
		if raw, err := protojson.Marshal(rpc.Config); err == nil {
			r.logger.Debug("gspeech recognize", "config", string(raw), "samples", len(req.Samples))
		}
	}

	resp, err := r.recognize(ctx, rpc)
	if err != nil {
		return engine.Recognition{}, classify(err)
	}

	var segments []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		segments = append(segments, alts[0].GetTranscript())
	}
	return engine.Recognition{
		Text:     transcript.Assemble(segments, transcript.Options{}),
		IsSpeech: true,
	}, nil
}

// Close releases the gRPC connection.
func (r *Recognizer) Close() error {
	return r.close()
}

func (r *Recognizer) languageCode(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" || strings.EqualFold(lang, engine.AutoDetect) {
		return r.opts.LanguageCode
	}
	return lang
}

func classify(err error) error {
	kind := engine.KindEngine
	switch status.Code(err) {
	case codes.InvalidArgument, codes.OutOfRange:
		kind = engine.KindInvalidInput
	case codes.DeadlineExceeded, codes.Canceled:
		kind = engine.KindTimeout
	case codes.Unavailable, codes.ResourceExhausted, codes.PermissionDenied, codes.Unauthenticated:
		kind = engine.KindUnavailable
	case codes.Internal:
		kind = engine.KindEngine
	}
	return engine.Wrap(kind, "gspeech recognize", fmt.Errorf("recognize: %w", err))
}
