package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// chatClient speaks the OpenAI chat completions protocol. Groq,
// OpenRouter and any compatible server reuse it with another base URL.
type chatClient struct {
	cfg    Config
	client *openai.Client
}

func newOpenAI(cfg Config) (Backend, error) {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = makeHTTPClient(cfg.Proxy, cfg.effectiveTimeout())
	return newAdapter(cfg, &chatClient{cfg: cfg, client: openai.NewClientWithConfig(oc)}), nil
}

func (c *chatClient) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.cfg.effectiveTemperature(),
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.classify(err, jsonMode)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", ErrMalformedOutput, c.cfg.displayName())
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *chatClient) classify(err error, jsonMode bool) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return statusError(c.cfg.displayName(), apiErr.HTTPStatusCode, apiErr.Message, 0, jsonMode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		msg := reqErr.Error()
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return statusError(c.cfg.displayName(), reqErr.HTTPStatusCode, msg, 0, jsonMode)
	}
	return transportError(err)
}
