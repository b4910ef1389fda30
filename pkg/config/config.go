// Package config loads InkHarmony configuration from a YAML file with
// environment variable overrides. Environment always wins over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	// StorageDir is the root directory for all book data.
	StorageDir string `yaml:"storage_dir" env:"INKHARMONY_STORAGE_DIR"`

	// Phases is the ordered book-production phase sequence. Workflows advance
	// strictly through this list.
	Phases []string `yaml:"phases" env:"INKHARMONY_PHASES" envSeparator:","`

	LogLevel string `yaml:"log_level" env:"INKHARMONY_LOG_LEVEL"`

	Gateway   GatewayConfig   `yaml:"gateway"`
	Providers ProvidersConfig `yaml:"providers"`
	Retry     RetryConfig     `yaml:"retry"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// GatewayConfig configures the HTTP front end.
type GatewayConfig struct {
	Host string `yaml:"host" env:"INKHARMONY_GATEWAY_HOST"`
	Port int    `yaml:"port" env:"INKHARMONY_GATEWAY_PORT"`
}

// ProvidersConfig holds generation backend credentials and model selection.
type ProvidersConfig struct {
	AnthropicAPIKey string `yaml:"anthropic_api_key" env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `yaml:"anthropic_model" env:"INKHARMONY_ANTHROPIC_MODEL"`
	OpenAIAPIKey    string `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	ImageModel      string `yaml:"image_model" env:"INKHARMONY_IMAGE_MODEL"`
}

// RetryConfig tunes the bounded-backoff wrapper around provider calls.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts" env:"INKHARMONY_RETRY_MAX_ATTEMPTS"`
	BackoffBase       time.Duration `yaml:"backoff_base" env:"INKHARMONY_RETRY_BACKOFF_BASE"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" env:"INKHARMONY_RETRY_BACKOFF_MULTIPLIER"`
	MaxBackoff        time.Duration `yaml:"max_backoff" env:"INKHARMONY_RETRY_MAX_BACKOFF"`
}

// ArchiveConfig controls the SQLite message archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" env:"INKHARMONY_ARCHIVE_ENABLED"`
	Path    string `yaml:"path" env:"INKHARMONY_ARCHIVE_PATH"`
}

// DefaultPhases is the book-production pipeline used when none is configured.
func DefaultPhases() []string {
	return []string{"outline", "drafting", "polish", "cover"}
}

// Default returns the baseline configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		StorageDir: filepath.Join(home, ".inkharmony", "books"),
		Phases:     DefaultPhases(),
		LogLevel:   "info",
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Providers: ProvidersConfig{
			AnthropicModel: "claude-sonnet-4-5",
			ImageModel:     "gpt-image-1",
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			BackoffBase:       2 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        30 * time.Second,
		},
		Archive: ArchiveConfig{
			Path: filepath.Join(home, ".inkharmony", "messages.db"),
		},
	}
}

// Load reads configuration from path (optional, may be empty) and applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("config: storage_dir is required")
	}
	if len(c.Phases) == 0 {
		return fmt.Errorf("config: at least one workflow phase is required")
	}
	seen := make(map[string]bool, len(c.Phases))
	for _, p := range c.Phases {
		if p == "" {
			return fmt.Errorf("config: empty phase name")
		}
		if seen[p] {
			return fmt.Errorf("config: duplicate phase %q", p)
		}
		seen[p] = true
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry max_attempts must be >= 1")
	}
	return nil
}
