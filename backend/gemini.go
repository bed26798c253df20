package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// geminiClient calls generateContent through the official SDK.
type geminiClient struct {
	cfg    Config
	client *genai.Client
}

func newGemini(cfg Config) (Backend, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: makeHTTPClient(cfg.Proxy, cfg.effectiveTimeout()),
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: creating client: %w", cfg.displayName(), err)
	}
	return newAdapter(cfg, &geminiClient{cfg: cfg, client: client}), nil
}

func (g *geminiClient) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	temperature := g.cfg.effectiveTemperature()
	gc := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		Temperature:       &temperature,
	}
	if jsonMode {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: user}}}},
		gc,
	)
	if err != nil {
		return "", g.classify(err, jsonMode)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: %s returned no candidates", ErrMalformedOutput, g.cfg.displayName())
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String(), nil
}

func (g *geminiClient) classify(err error, jsonMode bool) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return statusError(g.cfg.displayName(), apiErr.Code, apiErr.Message, 0, jsonMode)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Code != 0 {
		return statusError(g.cfg.displayName(), apiErrPtr.Code, apiErrPtr.Message, 0, jsonMode)
	}
	return transportError(err)
}
