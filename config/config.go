// Package config provides configuration management for the mailaction CLI.
// It supports loading configuration from YAML files, environment variables,
// and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultConfigDir  = ".mailaction"
	DefaultConfigFile = "config.yaml"

	DefaultChatDeployment      = "gpt-4"
	DefaultEmbeddingDeployment = "text-embedding-3-small"
	DefaultSearchIndex         = "emails-index"
	DefaultTenantID            = "techcorp"
	DefaultConfidence          = 0.65
	DefaultConcurrency         = 4
	DefaultCallTimeout         = 60 * time.Second
)

// CompletionConfig holds the completion/embedding service settings.
type CompletionConfig struct {
	// Endpoint is the base URL of the OpenAI-compatible service.
	Endpoint string `yaml:"endpoint"`

	// ChatDeployment is the deployment used for extraction calls.
	ChatDeployment string `yaml:"chat_deployment"`

	// EmbeddingDeployment is the deployment used for chunk embeddings.
	EmbeddingDeployment string `yaml:"embedding_deployment"`

	// Timeout bounds each external call.
	Timeout time.Duration `yaml:"-"`
}

// SearchConfig holds the search index settings.
type SearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	Index    string `yaml:"index"`
}

// StorageConfig holds the actions table settings.
type StorageConfig struct {
	// PostgresDSN is the connection string for the actions database.
	// Empty disables table persistence.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EventsConfig holds the pub/sub settings.
type EventsConfig struct {
	// RedisAddr is the host:port of the Redis instance. Empty disables
	// event publishing.
	RedisAddr string `yaml:"redis_addr"`
}

// RecipientConfig holds the default recipient context analyzed per run.
type RecipientConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
	Team  string `yaml:"team"`
}

// Config is the full CLI configuration.
type Config struct {
	Completion CompletionConfig `yaml:"completion"`
	Search     SearchConfig     `yaml:"search"`
	Storage    StorageConfig    `yaml:"storage"`
	Events     EventsConfig     `yaml:"events"`
	Recipient  RecipientConfig  `yaml:"recipient"`

	// TenantID partitions stored actions.
	TenantID string `yaml:"tenant_id"`

	// DefaultConfidence is the base confidence for extracted actions.
	DefaultConfidence float64 `yaml:"default_confidence"`

	// Concurrency is the batch worker count.
	Concurrency int `yaml:"concurrency"`

	// LogLevel sets the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogJSON switches log output to JSON.
	LogJSON bool `yaml:"log_json"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Completion: CompletionConfig{
			ChatDeployment:      DefaultChatDeployment,
			EmbeddingDeployment: DefaultEmbeddingDeployment,
			Timeout:             DefaultCallTimeout,
		},
		Search: SearchConfig{
			Index: DefaultSearchIndex,
		},
		TenantID:          DefaultTenantID,
		DefaultConfidence: DefaultConfidence,
		Concurrency:       DefaultConcurrency,
		LogLevel:          "info",
	}
}

// ConfigDir returns the configuration directory path.
// Uses $MAILACTION_CONFIG_DIR if set, otherwise ~/.mailaction
func ConfigDir() (string, error) {
	if dir := os.Getenv("MAILACTION_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// Load loads the configuration. Sources are applied in order, later
// overriding earlier:
//  1. Default values
//  2. Config file (~/.mailaction/config.yaml)
//  3. Environment variables (MAILACTION_*)
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. The call timeout is
// carried as a duration string in YAML.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	type fileConfig struct {
		Config  `yaml:",inline"`
		Timeout string `yaml:"call_timeout"`
	}

	var fileCfg fileConfig
	fileCfg.Config = *cfg
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	*cfg = fileCfg.Config

	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing call_timeout: %w", err)
		}
		cfg.Completion.Timeout = timeout
	}
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("MAILACTION_OPENAI_ENDPOINT"); v != "" {
		cfg.Completion.Endpoint = v
	}
	if v := os.Getenv("MAILACTION_CHAT_DEPLOYMENT"); v != "" {
		cfg.Completion.ChatDeployment = v
	}
	if v := os.Getenv("MAILACTION_EMBEDDING_DEPLOYMENT"); v != "" {
		cfg.Completion.EmbeddingDeployment = v
	}
	if v := os.Getenv("MAILACTION_SEARCH_ENDPOINT"); v != "" {
		cfg.Search.Endpoint = v
	}
	if v := os.Getenv("MAILACTION_SEARCH_INDEX"); v != "" {
		cfg.Search.Index = v
	}
	if v := os.Getenv("MAILACTION_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("MAILACTION_REDIS_ADDR"); v != "" {
		cfg.Events.RedisAddr = v
	}
	if v := os.Getenv("MAILACTION_TENANT_ID"); v != "" {
		cfg.TenantID = v
	}
	if v := os.Getenv("MAILACTION_DEFAULT_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.DefaultConfidence = f
		}
	}
	if v := os.Getenv("MAILACTION_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("MAILACTION_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Completion.Timeout = d
		}
	}
	if v := os.Getenv("MAILACTION_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MAILACTION_LOG_JSON"); v == "true" || v == "1" {
		cfg.LogJSON = true
	}
	if v := os.Getenv("MAILACTION_RECIPIENT_NAME"); v != "" {
		cfg.Recipient.Name = v
	}
	if v := os.Getenv("MAILACTION_RECIPIENT_EMAIL"); v != "" {
		cfg.Recipient.Email = v
	}
	if v := os.Getenv("MAILACTION_RECIPIENT_TEAM"); v != "" {
		cfg.Recipient.Team = v
	}
}

// Validate checks that the configuration is internally consistent.
// Endpoint requirements are enforced by the commands that need them, so a
// partially configured setup can still run offline subcommands.
func (c *Config) Validate() error {
	if c.DefaultConfidence < 0 || c.DefaultConfidence > 1 {
		return fmt.Errorf("default_confidence must be within [0,1], got %v", c.DefaultConfidence)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("call timeout must be positive")
	}
	return nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	type fileConfig struct {
		Config  `yaml:",inline"`
		Timeout string `yaml:"call_timeout"`
	}
	fileCfg := fileConfig{Config: *cfg, Timeout: cfg.Completion.Timeout.String()}

	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
