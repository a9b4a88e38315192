// Package llm provides the scoring client used to estimate article relevance.
//
// The package defines two operations backed by large language models (OpenAI,
// Anthropic): key-semantics extraction (topics, entities, keywords) and
// relevance estimation against a research question. Providers implement the
// low-level Completer interface; Client layers prompt construction, JSON
// parsing with a single repair pass, rate limiting, and metrics on top.
//
// Example usage:
//
//	client, err := llm.NewClient(llm.FactoryConfig{
//		Provider: "openai",
//		OpenAI:   llm.OpenAIConfig{APIKey: key, Model: "gpt-4o-mini"},
//	}, metrics, logger)
//	semantics, err := client.ExtractKeySemantics(ctx, article.Content())
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/litscreen/relevance-service/internal/domain"
	"github.com/litscreen/relevance-service/internal/observability"
)

// Operation labels used for metrics and logging.
const (
	opExtractSemantics  = "extract_semantics"
	opEstimateRelevance = "estimate_relevance"
)

// Completion is the raw result of a single LLM call.
type Completion struct {
	// Content is the text of the model's response.
	Content string
	// Model names the model that produced the response.
	Model string
	// InputTokens is the number of input tokens consumed.
	InputTokens int
	// OutputTokens is the number of output tokens produced.
	OutputTokens int
}

// Completer is the low-level provider interface. Implementations handle
// provider-specific API calls, transient-error retries, and error parsing.
type Completer interface {
	// Complete sends a single prompt to the model and returns its response.
	// systemPrompt may be empty, in which case no system message is sent.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)

	// Provider names the backing service ("openai", "anthropic").
	Provider() string

	// Model names the model requests are sent to.
	Model() string
}

// SemanticExtractor extracts key semantics from article content.
type SemanticExtractor interface {
	ExtractKeySemantics(ctx context.Context, content string) (domain.KeySemantics, error)
}

// RelevanceEstimator scores article content against a research question.
type RelevanceEstimator interface {
	EstimateRelevance(ctx context.Context, content, contentType, question string, definitions []string) (domain.Relevance, error)
}

// Client implements SemanticExtractor and RelevanceEstimator on top of a
// Completer. Malformed JSON from the model gets one repair pass through the
// model itself; if the repaired output still does not parse, the operation
// returns an empty result with a nil error. Transport and API failures are
// returned as errors so callers can retry the whole operation.
type Client struct {
	provider    Completer
	limiter     *RateLimiter
	breaker     *CircuitBreaker
	callTimeout time.Duration
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewClientFromCompleter creates a Client on top of an existing provider.
// limiter and metrics may be nil. callTimeout bounds each operation including
// provider-internal retries; zero means no bound beyond the caller's context.
func NewClientFromCompleter(provider Completer, limiter *RateLimiter, callTimeout time.Duration, metrics *observability.Metrics, logger zerolog.Logger) *Client {
	return &Client{
		provider:    provider,
		limiter:     limiter,
		callTimeout: callTimeout,
		metrics:     metrics,
		logger:      logger.With().Str("component", "llm").Str("provider", provider.Provider()).Logger(),
	}
}

// WithCircuitBreaker installs a breaker guarding provider calls and returns
// the client for use during construction. A nil breaker is a no-op.
func (c *Client) WithCircuitBreaker(b *CircuitBreaker) *Client {
	c.breaker = b
	return c
}

// Provider reports the underlying provider's name.
func (c *Client) Provider() string {
	return c.provider.Provider()
}

// Model reports the model the underlying provider targets.
func (c *Client) Model() string {
	return c.provider.Model()
}

// ExtractKeySemantics extracts topics, entities, and keywords from the given
// content. An unparseable model response after the repair pass yields empty
// semantics, not an error.
func (c *Client) ExtractKeySemantics(ctx context.Context, content string) (domain.KeySemantics, error) {
	raw, err := c.complete(ctx, opExtractSemantics, BuildSemanticsPrompt(content))
	if err != nil {
		return domain.KeySemantics{}, fmt.Errorf("extract key semantics: %w", err)
	}

	semantics, err := decodeCompletion[domain.KeySemantics](ctx, c, opExtractSemantics, raw, keySemanticsFormat)
	if err != nil {
		return domain.KeySemantics{}, fmt.Errorf("extract key semantics: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordSemanticsExtracted("topic", len(semantics.Topics))
		c.metrics.RecordSemanticsExtracted("entity", len(semantics.Entities))
		c.metrics.RecordSemanticsExtracted("keyword", len(semantics.Keywords))
	}

	return semantics, nil
}

// EstimateRelevance scores the given content against a research question.
// The model's own boolean verdicts are discarded; IsRelevant and
// IsContributing are recomputed from the scores via ApplyThreshold.
func (c *Client) EstimateRelevance(ctx context.Context, content, contentType, question string, definitions []string) (domain.Relevance, error) {
	raw, err := c.complete(ctx, opEstimateRelevance, BuildRelevancePrompt(content, contentType, question, definitions))
	if err != nil {
		return domain.Relevance{}, fmt.Errorf("estimate relevance: %w", err)
	}

	relevance, err := decodeCompletion[domain.Relevance](ctx, c, opEstimateRelevance, raw, relevanceFormat)
	if err != nil {
		return domain.Relevance{}, fmt.Errorf("estimate relevance: %w", err)
	}

	relevance.Question = question
	relevance.ApplyThreshold()
	return relevance, nil
}

// complete performs one rate-limited provider call and records metrics. When
// the circuit breaker is open the call is rejected before consuming a rate
// limiter token.
func (c *Client) complete(ctx context.Context, operation, prompt string) (string, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		if c.metrics != nil {
			c.metrics.RecordLLMRequestFailed(operation, c.provider.Model(), "circuit_open")
		}
		return "", ErrCircuitOpen
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := c.provider.Complete(ctx, "", prompt)
	if err != nil {
		// Only provider-side transient failures count against the breaker;
		// a cancelled context or a bad request says nothing about provider
		// health.
		if c.breaker != nil && isTransientError(err) {
			c.breaker.RecordFailure()
		}
		if c.metrics != nil {
			c.metrics.RecordLLMRequestFailed(operation, c.provider.Model(), errorTypeLabel(err))
		}
		return "", err
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
	if c.metrics != nil {
		c.metrics.RecordLLMRequest(operation, c.provider.Model(), time.Since(start).Seconds(), completion.InputTokens, completion.OutputTokens)
	}

	return completion.Content, nil
}

// decodeCompletion parses the model's JSON output into T. On a parse failure
// it asks the model once to fix the JSON; if the fixed output still does not
// parse, the zero value of T is returned with a nil error.
func decodeCompletion[T any](ctx context.Context, c *Client, operation, content, format string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(content), &out); err == nil {
		return out, nil
	}

	if c.metrics != nil {
		c.metrics.RecordLLMRepairAttempt(operation)
	}
	c.logger.Warn().Str("operation", operation).Msg("malformed JSON from model, attempting repair")

	fixed, err := c.complete(ctx, operation, BuildRepairPrompt(content, format))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("json repair: %w", err)
	}

	var repaired T
	if err := json.Unmarshal([]byte(fixed), &repaired); err != nil {
		c.logger.Warn().Str("operation", operation).Err(err).Msg("repaired JSON still malformed, using empty result")
		var zero T
		return zero, nil
	}

	return repaired, nil
}

// errorTypeLabel maps an error to a low-cardinality metrics label.
func errorTypeLabel(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type != "" {
			return apiErr.Type
		}
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "unknown"
}
