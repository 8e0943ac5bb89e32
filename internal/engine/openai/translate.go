package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/rbright/parley/internal/engine"
)

var _ engine.Translator = (*Translator)(nil)

const defaultChatModel = "gpt-4o-mini"

// Translator translates with a chat completion model.
type Translator struct {
	logger *slog.Logger
	client oai.Client
	model  string
}

// NewTranslator builds a chat-completions translator.
func NewTranslator(logger *slog.Logger, opts ClientOptions, model string) (*Translator, error) {
	client, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = defaultChatModel
	}
	return &Translator{logger: discardLogger(logger), client: client, model: model}, nil
}

// Translate returns text rendered in target.
func (t *Translator) Translate(ctx context.Context, text, source, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", engine.Wrap(engine.KindInvalidInput, "openai translate", errEmptyText)
	}
	if languageName(target) == "" {
		return "", engine.Errorf(engine.KindInvalidInput, "openai translate", "target language is required")
	}

	resp, err := t.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt(source, target)),
			oai.UserMessage(text),
		},
	})
	if err != nil {
		return "", classify("openai translate", err)
	}
	if len(resp.Choices) == 0 {
		return "", engine.Errorf(engine.KindEngine, "openai translate", "empty choices in response")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	t.logger.Debug("openai translation complete", "model", t.model, "chars", len(out))
	return out, nil
}

func systemPrompt(source, target string) string {
	from := "the detected source language"
	if name := languageName(source); name != "" {
		from = name
	}
	return fmt.Sprintf(
		"Translate the user's message from %s to %s. Reply with the translation only, without quotes or commentary.",
		from, languageName(target),
	)
}
