// Package config loads and validates service configuration from defaults,
// an optional YAML file, and RELEVANCE_-prefixed environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PostgreSQL sslmode values accepted by DatabaseConfig.SSLMode.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// Config is the root configuration for both the server and worker binaries.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
}

// ServerConfig holds the HTTP and metrics listener settings.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	// ReadTimeout and WriteTimeout bound a single request; ShutdownTimeout
	// bounds the graceful drain on termination.
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPAddress returns the API listener address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the Prometheus listener address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

func (c *ServerConfig) validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	return nil
}

// DatabaseConfig holds the PostgreSQL connection and pool settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	// SSLMode defaults to "require"; set it to "disable" only against a
	// local database.
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath points at the migration files; MigrationAutoRun applies
	// them on startup, which is meant for development setups where no
	// separate migrate step runs.
	MigrationPath          string `mapstructure:"migration_path"`
	MigrationAutoRun       bool   `mapstructure:"migration_auto_run"`
	StatementCacheCapacity int    `mapstructure:"statement_cache_capacity"`
}

// DSN returns the PostgreSQL connection string. Credentials are URL-escaped
// so passwords may contain URL metacharacters.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

func (c *DatabaseConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Port)
	}
	if c.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.MaxConns < c.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}
	return nil
}

// TemporalConfig holds the workflow engine connection settings.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// MaxConcurrentArticles caps concurrent per-article activity executions
	// on a single worker, which bounds concurrent LLM calls.
	MaxConcurrentArticles int `mapstructure:"max_concurrent_articles"`
}

func (c *TemporalConfig) validate() error {
	if c.HostPort == "" {
		return fmt.Errorf("temporal host_port is required")
	}
	if c.TaskQueue == "" {
		return fmt.Errorf("temporal task_queue is required")
	}
	if c.MaxConcurrentArticles <= 0 {
		return fmt.Errorf("temporal max_concurrent_articles must be positive")
	}
	return nil
}

// LoggingConfig holds the zerolog settings. Format is "json", "console",
// or "pretty"; Output is "stdout", "stderr", or a file path.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

func (c *LoggingConfig) validate() error {
	switch strings.ToLower(c.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
		return nil
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LLMConfig holds the scoring client settings shared by both providers,
// plus per-provider credentials and model choices.
type LLMConfig struct {
	// Provider selects "openai" or "anthropic".
	Provider   string        `mapstructure:"provider"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// Temperature is passed through to the provider; scoring wants
	// near-deterministic output.
	Temperature    float64 `mapstructure:"temperature"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	// BreakerThreshold consecutive transient failures open the scoring
	// circuit breaker; zero disables it. BreakerCooldown is how long the
	// breaker stays open before probing.
	BreakerThreshold int             `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration   `mapstructure:"breaker_cooldown"`
	OpenAI           OpenAIConfig    `mapstructure:"openai"`
	Anthropic        AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI credentials and model selection. The API key is
// tagged out of mapstructure so it can only arrive through the environment.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"-"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic credentials and model selection. The API
// key is tagged out of mapstructure so it can only arrive through the
// environment.
type AnthropicConfig struct {
	APIKey  string `mapstructure:"-"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// ModelName returns the model identifier of the active provider. Jobs are
// stamped with it so results stay attributable to the model that scored them.
func (c *LLMConfig) ModelName() string {
	switch c.Provider {
	case "anthropic":
		return c.Anthropic.Model
	default:
		return c.OpenAI.Model
	}
}

func (c *LLMConfig) validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("LLM timeout must be positive")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("LLM rate_limit_rps must be positive")
	}

	// The configured provider must have its key; the other provider's key
	// may be absent.
	switch strings.ToLower(c.Provider) {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires RELEVANCE_LLM_OPENAI_API_KEY to be set", c.Provider)
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires RELEVANCE_LLM_ANTHROPIC_API_KEY to be set", c.Provider)
		}
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}

// KafkaConfig holds the outbox publisher's broker settings.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

func (c *KafkaConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	if c.Topic == "" {
		return fmt.Errorf("kafka topic is required when kafka is enabled")
	}
	return nil
}

// OutboxConfig holds the outbox processor's polling settings. Events that
// fail MaxRetries publish attempts stay unpublished for manual inspection.
type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// Load builds the configuration. A missing config file is not an error;
// defaults plus environment variables are a complete configuration.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RELEVANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/relevance-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets reads API keys from the environment. The fields carry
// mapstructure:"-" so a config file cannot supply them.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv("RELEVANCE_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("RELEVANCE_LLM_ANTHROPIC_API_KEY")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "relevance")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "relevance_service")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 10)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "relevance-estimation")
	v.SetDefault("temporal.task_queue", "relevance-estimation-tasks")
	v.SetDefault("temporal.max_concurrent_articles", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "2s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.rate_limit_rps", 10.0)
	v.SetDefault("llm.rate_limit_burst", 20)
	v.SetDefault("llm.breaker_threshold", 3)
	v.SetDefault("llm.breaker_cooldown", "30s")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-sonnet-20240229")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.outbox.relevance_service")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retries", 5)
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.Server.validate(); err != nil {
		return err
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Temporal.validate(); err != nil {
		return err
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.LLM.validate(); err != nil {
		return err
	}
	return c.Kafka.validate()
}
