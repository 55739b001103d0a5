package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Global configuration structure.
type Global struct {
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel    string  `mapstructure:"default_model" yaml:"default_model"`
	DefaultProvider string  `mapstructure:"default_provider" yaml:"default_provider"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`

	// Token budget
	MaxTokensPerRequest int `mapstructure:"max_tokens_per_request" yaml:"max_tokens_per_request"`
	ReservedTokens      int `mapstructure:"reserved_tokens" yaml:"reserved_tokens"`
	CompletionTokens    int `mapstructure:"completion_tokens" yaml:"completion_tokens"`

	// Traversal and extraction
	Workers          int      `mapstructure:"workers" yaml:"workers"`
	Exclude          []string `mapstructure:"exclude" yaml:"exclude"`
	IncludeTests     bool     `mapstructure:"include_tests" yaml:"include_tests"`
	RespectGitignore bool     `mapstructure:"respect_gitignore" yaml:"respect_gitignore"`
	MaxExcerptChars  int      `mapstructure:"max_excerpt_chars" yaml:"max_excerpt_chars"`
	Output           string   `mapstructure:"output" yaml:"output"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`

	// Models catalog override (JSON file, merged into the built-in table)
	ModelsCatalog string `mapstructure:"models_catalog" yaml:"models_catalog"`
}

// Dir returns ~/.codeloom.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".codeloom"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.codeloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default_model", "openai/gpt-4o-mini")
	v.SetDefault("default_provider", "openrouter")
	v.SetDefault("temperature", 0.3)
	v.SetDefault("max_tokens_per_request", 4000)
	v.SetDefault("reserved_tokens", 500)
	v.SetDefault("completion_tokens", 1500)
	v.SetDefault("workers", 4)
	v.SetDefault("exclude", []string{})
	v.SetDefault("include_tests", false)
	v.SetDefault("respect_gitignore", true)
	v.SetDefault("max_excerpt_chars", 6000)
	v.SetDefault("output", "DOCUMENTATION.md")
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (applied by the caller) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("CODELOOM")
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config must exist; the default location is optional.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Validate checks the values a run depends on.
func (c *Global) Validate() error {
	switch {
	case c.MaxTokensPerRequest <= 0:
		return fmt.Errorf("%w: max_tokens_per_request must be positive (got %d)", ErrInvalid, c.MaxTokensPerRequest)
	case c.ReservedTokens < 0:
		return fmt.Errorf("%w: reserved_tokens must not be negative (got %d)", ErrInvalid, c.ReservedTokens)
	case c.ReservedTokens >= c.MaxTokensPerRequest:
		return fmt.Errorf("%w: reserved_tokens (%d) must be below max_tokens_per_request (%d)", ErrInvalid, c.ReservedTokens, c.MaxTokensPerRequest)
	case c.CompletionTokens < 0:
		return fmt.Errorf("%w: completion_tokens must not be negative (got %d)", ErrInvalid, c.CompletionTokens)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1 (got %d)", ErrInvalid, c.Workers)
	case c.MaxExcerptChars < 1:
		return fmt.Errorf("%w: max_excerpt_chars must be positive (got %d)", ErrInvalid, c.MaxExcerptChars)
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("%w: temperature must be within [0, 2] (got %g)", ErrInvalid, c.Temperature)
	case c.RetryMaxAttempts < 1:
		return fmt.Errorf("%w: retry_max_attempts must be at least 1 (got %d)", ErrInvalid, c.RetryMaxAttempts)
	}
	return nil
}
