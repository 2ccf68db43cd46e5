package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds everything fixed at process start. Memory tuning values are
// validated once here; nothing re-reads them at runtime.
type Config struct {
	// Chat model (OpenAI-compatible endpoint)
	APIKey    string `env:"OPENAI_API_KEY,required"`
	BaseURL   string `env:"OPENAI_BASE_URL"`
	ChatModel string `env:"CHAT_MODEL" envDefault:"gpt-4o-mini"`

	// Summarizer model. May be a smaller model than the chat one.
	SummarizerModel string `env:"SUMMARIZER_MODEL" envDefault:"gpt-4o-mini"`

	// Token-aware memory management
	MaxContextTokens int     `env:"MAX_CONTEXT_TOKENS" envDefault:"3000"`
	SmoothingFactor  float64 `env:"SMOOTHING_FACTOR" envDefault:"0.8"`
	MinInteractions  int     `env:"MIN_INTERACTIONS" envDefault:"2"`
	MaxInteractions  int     `env:"MAX_INTERACTIONS" envDefault:"50"`

	SummarizerTimeout time.Duration `env:"SUMMARIZER_TIMEOUT" envDefault:"30s"`

	// Storage
	DBPath string `env:"DB_PATH" envDefault:"deepthinks.db"`

	// Optional Elasticsearch log/metrics sink. Empty address disables shipping.
	ESAddress  string `env:"ES_ADDRESS"`
	ESUsername string `env:"ES_USERNAME"`
	ESPassword string `env:"ES_PASSWORD"`
}

var (
	ErrMaxContextTokens = errors.New("MAX_CONTEXT_TOKENS must be > 0")
	ErrSmoothingFactor  = errors.New("SMOOTHING_FACTOR must be in (0, 1]")
	ErrInteractionRange = errors.New("MIN_INTERACTIONS must be >= 1 and <= MAX_INTERACTIONS")
	ErrTimeout          = errors.New("SUMMARIZER_TIMEOUT must be > 0")
)

// Load parses the environment and validates it. Any failure here is fatal to
// the process; nothing in turn processing re-checks these values.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxContextTokens <= 0 {
		return ErrMaxContextTokens
	}
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		return ErrSmoothingFactor
	}
	if c.MinInteractions < 1 || c.MinInteractions > c.MaxInteractions {
		return ErrInteractionRange
	}
	if c.SummarizerTimeout <= 0 {
		return ErrTimeout
	}
	return nil
}
