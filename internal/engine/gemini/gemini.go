// Package gemini translates text with Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/rbright/parley/internal/engine"
)

var _ engine.Translator = (*Translator)(nil)

const defaultModel = "gemini-2.5-flash"

// Options configures the translator.
type Options struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// Translator translates through GenerateContent.
type Translator struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// New builds a Gemini translator.
func New(ctx context.Context, logger *slog.Logger, opts Options) (*Translator, error) {
	if opts.APIKey == "" {
		return nil, engine.Errorf(engine.KindUnavailable, "gemini client", "api key is empty")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, engine.Wrap(engine.KindUnavailable, "gemini client", err)
	}
	return &Translator{logger: logger, client: client, model: model}, nil
}

// Translate returns text rendered in target.
func (t *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", engine.Errorf(engine.KindInvalidInput, "gemini translate", "text is empty")
	}
	if strings.TrimSpace(target) == "" || strings.EqualFold(target, engine.AutoDetect) {
		return "", engine.Errorf(engine.KindInvalidInput, "gemini translate", "target language is required")
	}

	temperature := float32(0)
	resp, err := t.client.Models.GenerateContent(ctx, t.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText(text)}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(instruction(source, target))}},
			Temperature:       &temperature,
		},
	)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", engine.Errorf(engine.KindEngine, "gemini translate", "no candidates")
	}

	cand := resp.Candidates[0]
	if cand.FinishReason != "" && cand.FinishReason != genai.FinishReasonStop {
		return "", engine.Errorf(engine.KindEngine, "gemini translate", "unexpected finish reason: %s", cand.FinishReason)
	}
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil && p.Text != "" {
			sb.WriteString(p.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	t.logger.Debug("gemini translation complete", "model", t.model, "chars", len(out))
	return out, nil
}

func instruction(source, target string) string {
	from := "the detected source language"
	if s := strings.TrimSpace(source); s != "" && !strings.EqualFold(s, engine.AutoDetect) {
		from = s
	}
	return fmt.Sprintf("Translate the user's message from %s to %s. Reply with the translation only.", from, target)
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return engine.Wrap(engine.KindForStatus(apiErr.Code), "gemini translate", err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return engine.Wrap(engine.KindForStatus(apiErrPtr.Code), "gemini translate", err)
	}
	return engine.Wrap(engine.KindUnavailable, "gemini translate", err)
}
