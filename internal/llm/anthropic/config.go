package anthropic

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/pagescribe/internal/common"
)

// Config for the Anthropic Messages client.
type Config struct {
	APIKey     string        // required; never read from the environment here
	BaseURL    string        // default https://api.anthropic.com
	Version    string        // anthropic-version header, default 2023-06-01
	Model      string        // e.g. "claude-3-5-sonnet-20240620"
	MaxTokens  int           // default 4096
	Timeout    time.Duration // http client timeout
	MaxRetries int           // retries after an HTTP 529 on page requests
	RetryDelay time.Duration // fixed wait between 529 retries
}

// DefaultConfig mirrors common.DefaultConfig without credentials.
func DefaultConfig() Config {
	def := common.DefaultConfig()
	return ConfigFrom(def.LLM, def.Pipeline)
}

// ConfigFrom maps the application configuration onto the client configuration.
func ConfigFrom(llmCfg common.LLMConfig, pipeCfg common.PipelineConfig) Config {
	return Config{
		APIKey:     llmCfg.APIKey,
		BaseURL:    llmCfg.BaseURL,
		Version:    llmCfg.Version,
		Model:      llmCfg.Model,
		MaxTokens:  llmCfg.MaxTokens,
		Timeout:    llmCfg.Timeout,
		MaxRetries: pipeCfg.MaxRetries,
		RetryDelay: pipeCfg.RetryDelay,
	}
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient validates cfg and fills unset fields with defaults.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, common.ConfigError("anthropic api key is required", common.ErrMissingAPIKey)
	}
	def := common.DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.LLM.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Version == "" {
		cfg.Version = def.LLM.Version
	}
	if cfg.Model == "" {
		cfg.Model = def.LLM.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.LLM.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.LLM.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}
