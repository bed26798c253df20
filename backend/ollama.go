package backend

import (
	"context"
	"strings"

	"github.com/go-resty/resty/v2"
)

// ollamaClient uses Ollama's native /api/chat endpoint, whose "format"
// field constrains output to JSON.
type ollamaClient struct {
	cfg  Config
	http *resty.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaError struct {
	Error string `json:"error"`
}

func newOllama(cfg Config) (Backend, error) {
	client := resty.NewWithClient(makeHTTPClient(cfg.Proxy, cfg.effectiveTimeout())).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return newAdapter(cfg, &ollamaClient{cfg: cfg, http: client}), nil
}

func (o *ollamaClient) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	body := ollamaChatRequest{
		Model: o.cfg.Model,
		Messages: []ollamaMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Options: map[string]any{"temperature": o.cfg.effectiveTemperature()},
	}
	if jsonMode {
		body.Format = "json"
	}

	var out ollamaChatResponse
	var apiErr ollamaError
	resp, err := o.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/chat")
	if err != nil {
		return "", transportError(err)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.String()
		}
		return "", statusError(o.cfg.displayName(), resp.StatusCode(), msg, parseRetryAfter(resp.Header()), jsonMode)
	}
	return out.Message.Content, nil
}
