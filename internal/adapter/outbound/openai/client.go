// Package openai implements the completion port against the OpenAI
// chat completions API. OCR text interpretation, prescription parsing,
// and adherence analysis run through it.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/medicos-health/medigate/internal/port/outbound"
)

const defaultModel = "gpt-4o-mini"

// Client calls the chat completions endpoint with JSON-object response
// formatting so handlers get structured output back.
type Client struct {
	api    openai.Client
	apiKey string
	model  string
}

type clientConfig struct {
	model   string
	reqOpts []option.RequestOption
}

// Option configures a Client.
type Option func(*clientConfig)

// WithBaseURL overrides the API endpoint, for proxies and compatible providers.
func WithBaseURL(u string) Option {
	return func(c *clientConfig) { c.reqOpts = append(c.reqOpts, option.WithBaseURL(u)) }
}

// WithModel sets the default model.
func WithModel(m string) Option {
	return func(c *clientConfig) {
		if m != "" {
			c.model = m
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *clientConfig) { c.reqOpts = append(c.reqOpts, option.WithHTTPClient(hc)) }
}

// NewClient creates a client with the given API key. Retries are
// disabled: a tool call is a single attempt, and the orchestrator
// decides whether to retry the whole call.
func NewClient(apiKey string, opts ...Option) *Client {
	cfg := clientConfig{
		model: defaultModel,
		reqOpts: []option.RequestOption{
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		api:    openai.NewClient(cfg.reqOpts...),
		apiKey: apiKey,
		model:  cfg.model,
	}
}

var _ outbound.Completer = (*Client)(nil)

// CompleteJSON runs one completion and decodes the model output as a
// JSON object.
func (c *Client) CompleteJSON(ctx context.Context, req outbound.CompletionRequest) (map[string]interface{}, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices")
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("model output is not a JSON object: %w", err)
	}
	return out, nil
}
