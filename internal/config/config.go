// Package config provides environment configuration for the relay and site servers.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `env:"PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`
	AllowedOrigins     []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// LLM settings
	LLMProvider     string `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMModel        string `env:"LLM_MODEL"`
	LLMMaxTokens    int    `env:"LLM_MAX_TOKENS" envDefault:"5000"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// NATS settings; an empty URL disables turn event publishing
	NATSURL      string `env:"NATS_URL"`
	NATSCAFile   string `env:"NATS_CA_FILE"`
	NATSCertFile string `env:"NATS_CERT_FILE"`
	NATSKeyFile  string `env:"NATS_KEY_FILE"`
	NATSToken    string `env:"NATS_TOKEN"`
	NATSSubject  string `env:"NATS_SUBJECT" envDefault:"portfolio.chat.turns"`

	// Site backend settings; COMPLETION_SERVICE_URL points at the relay's PORT
	SitePort             string        `env:"SITE_PORT" envDefault:"3000"`
	CompletionServiceURL string        `env:"COMPLETION_SERVICE_URL" envDefault:"http://localhost:8080"`
	CompletionTimeout    time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s"`
	SessionIdleTimeout   time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	CaptionInterval      time.Duration `env:"CAPTION_INTERVAL" envDefault:"2500ms"`
	CacheProjectScoped   bool          `env:"CACHE_PROJECT_SCOPED" envDefault:"false"`
	IconProbeTimeout     time.Duration `env:"ICON_PROBE_TIMEOUT" envDefault:"3s"`

	// Rate limiting
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"30"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Tracing
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
}

// Load reads configuration from a local .env file, if present, and the environment.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Model returns the configured model or the provider default.
func (c *Config) Model() string {
	if c.LLMModel != "" {
		return c.LLMModel
	}
	if c.LLMProvider == "anthropic" {
		return "claude-3-5-haiku-20241022"
	}
	return "gpt-4o-mini"
}
