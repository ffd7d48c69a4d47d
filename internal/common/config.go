package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Assembly AssemblyConfig `yaml:"assembly"`
	LogLevel string         `yaml:"log_level"`
}

// LLMConfig holds provider-related configuration
type LLMConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Version   string        `yaml:"version"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PipelineConfig holds the extraction retry and fan-out policy
type PipelineConfig struct {
	Workers    int           `yaml:"workers"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// AssemblyConfig holds the external utilities used for the final PDF
type AssemblyConfig struct {
	QPDF        string `yaml:"qpdf"`
	OCRmyPDF    string `yaml:"ocrmypdf"`
	OCRLanguage string `yaml:"ocr_language"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:   "https://api.anthropic.com",
			Version:   "2023-06-01",
			Model:     "claude-3-5-sonnet-20240620",
			MaxTokens: 4096,
			Timeout:   120 * time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:    1,
			MaxRetries: 5,
			RetryDelay: 200 * time.Millisecond,
		},
		Assembly: AssemblyConfig{
			QPDF:        "qpdf",
			OCRmyPDF:    "ocrmypdf",
			OCRLanguage: "por",
		},
		LogLevel: "info",
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg
}

// LoadConfigFile reads a YAML file on top of the defaults, then applies environment overrides.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, FilesystemError(fmt.Sprintf("read config %q", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, FormatError(fmt.Sprintf("parse config %q", path), err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.APIKey = getEnv("ANTHROPIC_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("ANTHROPIC_BASE_URL", c.LLM.BaseURL)
	c.LLM.Version = getEnv("ANTHROPIC_VERSION", c.LLM.Version)
	c.LLM.Model = getEnv("ANTHROPIC_MODEL", c.LLM.Model)
	c.LLM.MaxTokens = getEnvAsInt("ANTHROPIC_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = getEnvAsDuration("ANTHROPIC_TIMEOUT", c.LLM.Timeout)

	c.Pipeline.Workers = getEnvAsInt("PIPELINE_WORKERS", c.Pipeline.Workers)
	c.Pipeline.MaxRetries = getEnvAsInt("OVERLOAD_MAX_RETRIES", c.Pipeline.MaxRetries)
	c.Pipeline.RetryDelay = getEnvAsDuration("OVERLOAD_RETRY_DELAY", c.Pipeline.RetryDelay)

	c.Assembly.QPDF = getEnv("QPDF_BIN", c.Assembly.QPDF)
	c.Assembly.OCRmyPDF = getEnv("OCRMYPDF_BIN", c.Assembly.OCRmyPDF)
	c.Assembly.OCRLanguage = getEnv("OCR_LANGUAGE", c.Assembly.OCRLanguage)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration. requireKey is false for
// commands that never talk to the provider (rename, assemble, export).
func (c *Config) Validate(requireKey bool) error {
	if requireKey && strings.TrimSpace(c.LLM.APIKey) == "" {
		return ConfigError("ANTHROPIC_API_KEY is required", ErrMissingAPIKey)
	}
	if c.LLM.MaxTokens <= 0 {
		return ConfigError("ANTHROPIC_MAX_TOKENS must be positive", ErrInvalidInput)
	}
	if c.Pipeline.Workers < 1 {
		return ConfigError("PIPELINE_WORKERS must be at least 1", ErrInvalidInput)
	}
	if c.Pipeline.MaxRetries < 0 {
		return ConfigError("OVERLOAD_MAX_RETRIES must not be negative", ErrInvalidInput)
	}
	if c.Assembly.QPDF == "" || c.Assembly.OCRmyPDF == "" {
		return ConfigError("QPDF_BIN and OCRMYPDF_BIN must be set", ErrInvalidInput)
	}
	return nil
}
