package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config carries every setting the API client and the row pipeline need.
// It is assembled once at startup (defaults, then the optional config file,
// then flags) and passed down explicitly; nothing reads package-level state.
type Config struct {
	BaseURL              string  `yaml:"base_url"`
	Input                string  `yaml:"input"`
	Output               string  `yaml:"output"`
	PageSize             int     `yaml:"page_size"`
	MaxRetries           int     `yaml:"max_retries"`
	RetryBackoffSeconds  float64 `yaml:"retry_backoff_seconds"`
	ListTimeoutSeconds   int     `yaml:"list_timeout_seconds"`
	SearchTimeoutSeconds int     `yaml:"search_timeout_seconds"`
	Token                string  `yaml:"-"`
	DeploymentID         string  `yaml:"-"`
	GitHubToken          string  `yaml:"-"`
	Details              bool    `yaml:"-"`
}

func Default() *Config {
	return &Config{
		BaseURL:              "https://semgrep.dev/api/v1",
		Input:                "input.csv",
		Output:               "output.csv",
		PageSize:             100,
		MaxRetries:           3,
		RetryBackoffSeconds:  2.0,
		ListTimeoutSeconds:   30,
		SearchTimeoutSeconds: 60,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}

func MergeFlags(cfg *Config, flags *pflag.FlagSet) *Config {
	if v, err := flags.GetString("input"); err == nil && v != "" {
		cfg.Input = v
	}
	if v, err := flags.GetString("output"); err == nil && v != "" {
		cfg.Output = v
	}
	if v, err := flags.GetString("token"); err == nil && v != "" {
		cfg.Token = v
	}
	if v, err := flags.GetString("deployment"); err == nil && v != "" {
		cfg.DeploymentID = v
	}
	if v, err := flags.GetString("github-token"); err == nil && v != "" {
		cfg.GitHubToken = v
	}
	if v, err := flags.GetInt("page-size"); err == nil && v > 0 {
		cfg.PageSize = v
	}
	if v, err := flags.GetInt("max-retries"); err == nil && v > 0 {
		cfg.MaxRetries = v
	}
	if v, err := flags.GetBool("details"); err == nil {
		cfg.Details = v
	}
	return cfg
}

// RetryBackoff is the base delay between search retries; the actual delay
// grows linearly with the attempt number.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds * float64(time.Second))
}

func (c *Config) ListTimeout() time.Duration {
	return time.Duration(c.ListTimeoutSeconds) * time.Second
}

func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("API token is required: pass --token or set SEMGREP_API_TOKEN")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	return nil
}
