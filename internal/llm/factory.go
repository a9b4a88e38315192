package llm

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/litscreen/relevance-service/internal/observability"
)

// FactoryConfig holds the parameters needed to create a scoring client.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// Provider is the LLM provider name ("openai" or "anthropic").
	Provider string
	// Temperature is the LLM temperature setting.
	Temperature float64
	// Timeout is the HTTP timeout for a single API attempt.
	Timeout time.Duration
	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int
	// RateLimitRPS is the sustained request rate limit. Zero disables limiting.
	RateLimitRPS float64
	// RateLimitBurst is the burst size for the rate limiter.
	RateLimitBurst int
	// CallTimeout bounds a whole operation including retries. Zero means the
	// caller's context deadline is the only bound.
	CallTimeout time.Duration
	// BreakerThreshold is the consecutive transient-failure count that opens
	// the circuit breaker. Zero disables the breaker.
	BreakerThreshold int
	// BreakerCooldown is how long the breaker stays open before probing.
	BreakerCooldown time.Duration
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig
}

// NewCompleter creates the provider-level Completer based on the configuration.
// Supports "openai" and "anthropic" providers. Returns an error for unsupported
// or empty provider values.
func NewCompleter(cfg FactoryConfig) (Completer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic, cfg.Temperature, cfg.Timeout, cfg.MaxRetries), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

// NewClient creates the full scoring client: the configured provider wrapped
// with rate limiting, per-operation timeouts, JSON repair, and metrics.
// metrics may be nil.
func NewClient(cfg FactoryConfig, metrics *observability.Metrics, logger zerolog.Logger) (*Client, error) {
	provider, err := NewCompleter(cfg)
	if err != nil {
		return nil, err
	}

	var limiter *RateLimiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		limiter = NewRateLimiter(cfg.RateLimitRPS, burst)
	}

	client := NewClientFromCompleter(provider, limiter, cfg.CallTimeout, metrics, logger)
	if cfg.BreakerThreshold > 0 {
		client = client.WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{
			ConsecutiveThreshold: cfg.BreakerThreshold,
			Cooldown:             cfg.BreakerCooldown,
		}))
	}
	return client, nil
}
