package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultOpenAIMaxTokens  = 1024
	defaultOpenAIRetryDelay = 2 * time.Second
	defaultOpenAITimeout    = 60 * time.Second
)

// OpenAI Chat Completions API wire types.
type (
	chatRequest struct {
		Model          string          `json:"model"`
		Messages       []chatMessage   `json:"messages"`
		Temperature    float64         `json:"temperature"`
		MaxTokens      int             `json:"max_tokens,omitempty"`
		ResponseFormat *responseFormat `json:"response_format,omitempty"`
	}

	chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	responseFormat struct {
		Type string `json:"type"`
	}

	chatResponse struct {
		ID      string       `json:"id"`
		Choices []chatChoice `json:"choices"`
		Usage   chatUsage    `json:"usage"`
	}

	chatChoice struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	}

	chatUsage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	}

	openAIErrorResponse struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
)

// OpenAIConfig holds the parameters for building an OpenAI provider.
// Defined here so the provider does not depend on the config package.
type OpenAIConfig struct {
	APIKey string
	// Model names the chat model, e.g. "gpt-4o-mini".
	Model string
	// BaseURL overrides the API base URL; empty means the public endpoint.
	BaseURL string
}

// OpenAIProvider implements Completer using the OpenAI Chat Completions
// API with JSON response format for structured output. Transient failures
// are retried with linear backoff.
type OpenAIProvider struct {
	transport   apiTransport
	apiKey      string
	model       string
	endpoint    string
	temperature float64
}

// NewOpenAIProvider builds a provider with the given HTTP timeout and
// transient-error retry budget.
func NewOpenAIProvider(cfg OpenAIConfig, temperature float64, timeout time.Duration, maxRetries int) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	if timeout <= 0 {
		timeout = defaultOpenAITimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &OpenAIProvider{
		transport: apiTransport{
			client:     newHTTPClient(timeout),
			provider:   "openai",
			maxRetries: maxRetries,
			backoff:    linearBackoff(defaultOpenAIRetryDelay),
			parseError: parseOpenAIAPIError,
		},
		apiKey:      cfg.APIKey,
		model:       model,
		endpoint:    baseURL + "/chat/completions",
		temperature: temperature,
	}
}

func (p *OpenAIProvider) Provider() string { return "openai" }

func (p *OpenAIProvider) Model() string { return p.model }

// Complete sends a prompt to the Chat Completions API and returns the
// first choice's content.
func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	req := chatRequest{
		Model:          p.model,
		Messages:       messages,
		Temperature:    p.temperature,
		MaxTokens:      defaultOpenAIMaxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	headers := map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}

	var resp chatResponse
	err := p.transport.withRetries(ctx, func() error {
		resp = chatResponse{}
		return p.transport.postJSON(ctx, p.endpoint, headers, req, &resp)
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &Completion{
		Content:      resp.Choices[0].Message.Content,
		Model:        p.model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func parseOpenAIAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "openai",
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp openAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = errResp.Error.Code
	}
	return apiErr
}
