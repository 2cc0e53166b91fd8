// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mail sender.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shineum/sgmail/internal/sender"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = 5 * time.Minute
)

// Config holds the complete application configuration.
type Config struct {
	Provider string        `yaml:"provider"`
	API      APIConfig     `yaml:"api"`
	SES      SESConfig     `yaml:"ses"`
	Fetch    FetchConfig   `yaml:"fetch"`
	Logging  LoggingConfig `yaml:"logging"`
}

// APIConfig holds the mail.send endpoint and account credentials.
type APIConfig struct {
	URL     string        `yaml:"url"`
	User    string        `yaml:"user"`
	Key     string        `yaml:"key"`
	Timeout time.Duration `yaml:"timeout"`
}

// SESConfig holds AWS SES configuration for relaying requests through SES.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// FetchConfig controls remote attachment downloads.
type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Provider = strings.ToLower(cfg.Provider)

	// Environment variables always override YAML values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Credentials returns the mail.send account credentials.
func (c *Config) Credentials() sender.Credentials {
	return sender.Credentials{APIUser: c.API.User, APIKey: c.API.Key}
}

// APIConfigured returns true if both mail.send credentials are set.
func (c *Config) APIConfigured() bool {
	return c.Credentials().Configured()
}

// SESConfigured returns true if the SES region and sender are set.
// Access keys are optional; the default AWS credential chain is used without them.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.API.URL = sender.DefaultEndpoint
	c.API.Timeout = defaultTimeout
	c.Fetch.Timeout = defaultTimeout
	c.Fetch.CacheTTL = defaultCacheTTL
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("SENDGRID_API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("SENDGRID_API_USER"); v != "" {
		c.API.User = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		c.API.Key = v
	}
	if err := durationEnv("SENDGRID_API_TIMEOUT", &c.API.Timeout); err != nil {
		return err
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if err := durationEnv("FETCH_TIMEOUT", &c.Fetch.Timeout); err != nil {
		return err
	}
	if err := durationEnv("FETCH_CACHE_TTL", &c.Fetch.CacheTTL); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}

func durationEnv(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
