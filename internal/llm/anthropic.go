package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// anthropicAPIVersion is the required anthropic-version header value.
	anthropicAPIVersion = "2023-06-01"

	defaultAnthropicMaxTokens  = 1024
	defaultAnthropicRetryDelay = time.Second
)

// Anthropic Messages API wire types.
type (
	messagesRequest struct {
		Model       string             `json:"model"`
		MaxTokens   int                `json:"max_tokens"`
		System      string             `json:"system,omitempty"`
		Messages    []anthropicMessage `json:"messages"`
		Temperature float64            `json:"temperature"`
	}

	anthropicMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	contentBlock struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	}

	messagesResponse struct {
		ID         string         `json:"id"`
		Type       string         `json:"type"`
		Role       string         `json:"role"`
		Content    []contentBlock `json:"content"`
		Model      string         `json:"model"`
		StopReason string         `json:"stop_reason"`
		Usage      anthropicUsage `json:"usage"`
	}

	anthropicUsage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	}

	anthropicErrorResponse struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
)

// AnthropicConfig holds the parameters for building an Anthropic provider.
// Defined here so the provider does not depend on the config package.
type AnthropicConfig struct {
	APIKey string
	// Model names the Claude model, e.g. "claude-3-sonnet-20240229".
	Model string
	// BaseURL overrides the API base URL; empty means the public endpoint.
	BaseURL string
}

// AnthropicProvider implements Completer using the Anthropic Messages API.
// Transient failures (429, 5xx, network errors) are retried with
// exponential backoff.
type AnthropicProvider struct {
	transport   apiTransport
	apiKey      string
	model       string
	endpoint    string
	temperature float64
}

// NewAnthropicProvider builds a provider with the given HTTP timeout and
// transient-error retry budget.
func NewAnthropicProvider(cfg AnthropicConfig, temperature float64, timeout time.Duration, maxRetries int) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		transport: apiTransport{
			client:     newHTTPClient(timeout),
			provider:   "anthropic",
			maxRetries: maxRetries,
			backoff:    exponentialBackoff(defaultAnthropicRetryDelay),
			parseError: parseAnthropicAPIError,
		},
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		endpoint:    baseURL + "/v1/messages",
		temperature: temperature,
	}
}

func (p *AnthropicProvider) Provider() string { return "anthropic" }

func (p *AnthropicProvider) Model() string { return p.model }

// Complete sends a prompt to the Messages API and returns the completion
// from the first text content block.
func (p *AnthropicProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	req := messagesRequest{
		Model:       p.model,
		MaxTokens:   defaultAnthropicMaxTokens,
		System:      systemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: userPrompt}},
		Temperature: p.temperature,
	}
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}

	var resp messagesResponse
	err := p.transport.withRetries(ctx, func() error {
		resp = messagesResponse{}
		return p.transport.postJSON(ctx, p.endpoint, headers, req, &resp)
	})
	if err != nil {
		return nil, err
	}

	return completionFromMessages(&resp)
}

// completionFromMessages extracts the first text block of the response.
func completionFromMessages(resp *messagesResponse) (*Completion, error) {
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("anthropic: response contains no content blocks")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("anthropic: response contains no text content blocks")
	}

	return &Completion{
		Content:      text,
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func parseAnthropicAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "anthropic",
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp anthropicErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
	}
	return apiErr
}
