// Package config loads process configuration from .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/tluyben/crmflow/backend"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the process configuration.
type Config struct {
	// Backend is validated separately; only commands that call the model
	// need it.
	Backend BackendConfig `validate:"-"`

	FlowsDir    string   `env:"FLOWS_DIR" envDefault:"flows"`
	IndexPath   string   `env:"INDEX_PATH" envDefault:"crmflow.bleve" validate:"required"`
	Addr        string   `env:"ADDR" envDefault:":8080" validate:"required"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" validate:"min=1"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	GinMode     string   `env:"GIN_MODE" envDefault:"release" validate:"oneof=debug release test"`
}

// BackendConfig configures the OpenRouter backend.
type BackendConfig struct {
	APIKey            string        `env:"OR_KEY" validate:"required"`
	BaseURL           string        `env:"OR_BASE_URL" validate:"required,url"`
	ModelHigh         string        `env:"OR_MODEL_HIGH" validate:"required"`
	ModelLow          string        `env:"OR_MODEL_LOW" validate:"required"`
	Timeout           time.Duration `env:"LLM_TIMEOUT" envDefault:"60s" validate:"gt=0"`
	RequestsPerSecond float64       `env:"LLM_RPS" envDefault:"2" validate:"gte=0"`
	Burst             int           `env:"LLM_BURST" envDefault:"4" validate:"gte=0"`
	MaxConcurrent     int64         `env:"LLM_MAX_CONCURRENT" envDefault:"4" validate:"gte=0"`
}

var validate = validator.New()

// Load reads the given .env files, then the environment, and validates the
// result. Missing files are skipped; variables already set in the
// environment win over file values.
func Load(files ...string) (*Config, error) {
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("error reading env file %s: %w", file, err)
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("error loading env file %s: %w", file, err)
		}
	}

	cfg := &Config{Backend: BackendConfig{BaseURL: backend.DefaultOpenRouterURL}}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize trims list entries and lowercases the enumerated settings.
func (c *Config) normalize() {
	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.GinMode = strings.ToLower(strings.TrimSpace(c.GinMode))
}

// Validate checks the general settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidateBackend checks the model backend settings.
func (c *Config) ValidateBackend() error {
	if err := validate.Struct(c.Backend); err != nil {
		return fmt.Errorf("invalid backend configuration (OR_KEY, OR_MODEL_HIGH and OR_MODEL_LOW must be set): %w", err)
	}
	return nil
}

// OpenRouter converts the backend settings for backend.NewOpenRouter.
func (b BackendConfig) OpenRouter() backend.OpenRouterConfig {
	return backend.OpenRouterConfig{
		BaseURL:           b.BaseURL,
		APIKey:            b.APIKey,
		ModelHigh:         b.ModelHigh,
		ModelLow:          b.ModelLow,
		Timeout:           b.Timeout,
		RequestsPerSecond: b.RequestsPerSecond,
		Burst:             b.Burst,
		MaxConcurrent:     b.MaxConcurrent,
		Referer:           "https://github.com/tluyben/crmflow",
		Title:             "CRMFlow",
	}
}

// Logger builds a production zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
