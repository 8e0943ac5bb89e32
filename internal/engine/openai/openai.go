// Package openai translates and synthesizes speech through the OpenAI API.
package openai

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rbright/parley/internal/engine"
)

// ClientOptions are shared by the translator and synthesizer.
type ClientOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func newClient(opts ClientOptions) (oai.Client, error) {
	if opts.APIKey == "" {
		return oai.Client{}, engine.Errorf(engine.KindUnavailable, "openai client", "api key is empty")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	return oai.NewClient(reqOpts...), nil
}

// classify maps SDK failures onto engine kinds.
func classify(op string, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return engine.Wrap(engine.KindForStatus(apiErr.StatusCode), op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return engine.Wrap(engine.KindTimeout, op, err)
	}
	return engine.Wrap(engine.KindUnavailable, op, err)
}

// statusError reports a non-2xx raw response.
func statusError(op string, resp *http.Response) error {
	return engine.Errorf(engine.KindForStatus(resp.StatusCode), op, "unexpected status %s", resp.Status)
}

func languageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, engine.AutoDetect) {
		return ""
	}
	return code
}

func discardLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}

var errEmptyText = errors.New("text is empty")
