// Package backend talks to generative-text services that translate
// batches of segments.
//
// All backends share one request/response contract: a batch of
// {id, text} items goes in, a map of id -> translated text comes out.
// Backends differ only in how a prompt pair is delivered:
//
//   - openai, groq, openrouter, custom-openai: chat completions (go-openai)
//   - gemini: generateContent (google genai SDK)
//   - ollama: native /api/chat (resty)
//
// Every adapter asks for structured JSON output first and repeats the
// call once without it if the service rejects the feature.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Item is one segment sent for translation.
type Item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Request is one batch.
type Request struct {
	Items        []Item
	SourceLocale string
	TargetLocale string
	Instructions string
}

// Backend translates batches. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Name is the configured backend identifier (e.g. "openai").
	Name() string
	// Model is the model identifier sent to the service.
	Model() string
	// Endpoint is the base URL in use.
	Endpoint() string
	// TranslateBatch returns translations keyed by item id. Ids the
	// service dropped are absent; ids it invented are discarded.
	TranslateBatch(ctx context.Context, req Request) (map[string]string, error)
}

var (
	// ErrAuth means the service rejected the credentials. Retrying will not help.
	ErrAuth = errors.New("backend authentication failed")
	// ErrUnsupportedFeature means the service rejected structured output mode.
	ErrUnsupportedFeature = errors.New("backend does not support structured output")
	// ErrMalformedOutput means no usable JSON could be recovered from the response.
	ErrMalformedOutput = errors.New("backend returned malformed output")
	// ErrTransport covers network failures and exhausted server-side retries.
	ErrTransport = errors.New("backend transport failure")
	// ErrTimeout means the call ran out of time.
	ErrTimeout = errors.New("backend call timed out")
	// ErrRateLimited means the service kept answering 429.
	ErrRateLimited = errors.New("backend rate limited")
)

// StatusError is a non-2xx answer from a service.
type StatusError struct {
	Backend    string
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Backend, e.Code, truncate(e.Message, 500))
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == 401 || e.Code == 403:
		return ErrAuth
	case e.Code == 429:
		return ErrRateLimited
	case e.Code >= 500:
		return ErrTransport
	}
	return nil
}

// completer delivers one system/user prompt pair and returns raw text.
type completer interface {
	complete(ctx context.Context, system, user string, jsonMode bool) (string, error)
}

// adapter implements Backend on top of a completer.
type adapter struct {
	cfg    Config
	client completer
	rl     *rateLimitState
	// plainOnly is set once the service rejected structured output, so
	// later batches skip the doomed first attempt.
	plainOnly atomic.Bool
}

func newAdapter(cfg Config, c completer) *adapter {
	return &adapter{cfg: cfg, client: c, rl: &rateLimitState{}}
}

func (a *adapter) Name() string     { return a.cfg.ID }
func (a *adapter) Model() string    { return a.cfg.Model }
func (a *adapter) Endpoint() string { return a.cfg.BaseURL }

func (a *adapter) TranslateBatch(ctx context.Context, req Request) (map[string]string, error) {
	if len(req.Items) == 0 {
		return map[string]string{}, nil
	}
	system := SystemPrompt(a.cfg.SystemPrompt, req.TargetLocale)
	user, err := UserPrompt(req)
	if err != nil {
		return nil, err
	}

	var text string
	if a.plainOnly.Load() {
		text, err = a.call(ctx, system, user, false)
	} else {
		text, err = a.call(ctx, system, user, true)
		if errors.Is(err, ErrUnsupportedFeature) {
			a.cfg.log("%s rejected structured output, retrying as plain text", a.cfg.displayName())
			a.plainOnly.Store(true)
			text, err = a.call(ctx, system, user, false)
		}
	}
	if err != nil {
		return nil, err
	}

	items, err := ParseSegments(text)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(req.Items))
	for _, it := range req.Items {
		want[it.ID] = true
	}
	out := make(map[string]string, len(items))
	for _, it := range items {
		if want[it.ID] {
			out[it.ID] = it.Text
		}
	}
	return out, nil
}

func (a *adapter) call(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	return withRetry(ctx, a.cfg, a.rl, func() (string, error) {
		return a.client.complete(ctx, system, user, jsonMode)
	})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
