package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	openaimodel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/kelseyhightower/envconfig"

	"github.com/wrenlabs/concierge/backend/internal/store"
	logx "github.com/wrenlabs/concierge/backend/pkg/logger"
)

// Config aggregates every setting the process needs. Values come from the
// environment (SERVER_*, LOG_*, LLM_*, MEMORY_*, ROUTING_*); main loads a
// .env file first so local runs stay simple.
type Config struct {
	Server  ServerConfig
	Log     logx.Config
	LLM     LLMConfig
	Memory  MemoryConfig
	Routing RoutingConfig
}

// Load parses the full configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	sections := []struct {
		prefix string
		target any
	}{
		{"server", &cfg.Server},
		{"log", &cfg.Log},
		{"llm", &cfg.LLM},
		{"memory", &cfg.Memory},
		{"routing", &cfg.Routing},
	}
	for _, s := range sections {
		if err := envconfig.Process(s.prefix, s.target); err != nil {
			return nil, fmt.Errorf("load %s config: %w", s.prefix, err)
		}
	}
	return cfg, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `default:":8080"`
}

// LLMConfig selects and configures the chat model provider shared by the
// intent classifier and the domain handlers.
type LLMConfig struct {
	Provider    string        `default:"ark"` // ark | openai
	Model       string        ``
	APIKey      string        `envconfig:"API_KEY" split_words:"true"`
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true"`
	Region      string        `default:"cn-beijing"`
	AccessKey   string        `split_words:"true"`
	SecretKey   string        `split_words:"true"`
	Temperature *float32      ``
	MaxTokens   *int          `split_words:"true"`
	Timeout     time.Duration `default:"60s"`
}

// Enabled reports whether enough credentials are present to build a model.
// When false the engine still runs: classification degrades to stickiness and
// handlers produce deterministic replies.
func (c LLMConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "openai":
		return c.APIKey != ""
	default:
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
}

// NewChatModel builds the configured provider's chat model. The provider is
// chosen once at startup.
func (c LLMConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("llm credentials or model missing: set LLM_MODEL plus LLM_API_KEY (or AK/SK for ark)")
	}

	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "ark":
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
		})
	case "openai":
		return openaimodel.NewChatModel(ctx, &openaimodel.ChatModelConfig{
			BaseURL:     strings.TrimRight(c.BaseURL, "/"),
			APIKey:      c.APIKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
			Timeout:     c.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", c.Provider)
	}
}

// MemoryConfig selects the session store backend. The choice is fixed for the
// process lifetime; nothing switches backends mid-session.
type MemoryConfig struct {
	Backend      string        `default:"file"` // redis | file
	RedisURL     string        `envconfig:"REDIS_URL" split_words:"true"`
	RedisToken   string        `envconfig:"REDIS_TOKEN" split_words:"true"`
	RedisTimeout time.Duration `split_words:"true" default:"10s"`
	KeyPrefix    string        `split_words:"true"`
	FileDir      string        `split_words:"true" default:"./data/sessions"`
	SessionTTL   time.Duration `envconfig:"SESSION_TTL" split_words:"true" default:"24h"`
}

// NewStore builds the configured backend.
func (c MemoryConfig) NewStore() (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "redis":
		return store.NewRedisStore(store.RedisConfig{
			URL:     c.RedisURL,
			Token:   c.RedisToken,
			Timeout: c.RedisTimeout,
		}, store.WithKeyPrefix(c.KeyPrefix))
	case "file":
		return store.NewFileStore(c.FileDir)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", c.Backend)
	}
}

// RoutingConfig tunes the intent classifier.
type RoutingConfig struct {
	ConfidenceThreshold float64 `split_words:"true" default:"0.6"`
	HistoryLimit        int     `split_words:"true" default:"10"`
	ClassifierEnabled   bool    `split_words:"true" default:"true"`
}
