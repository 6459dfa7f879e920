package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values applied when the config file leaves a field empty.
const (
	DefaultProvider     = "local"
	DefaultDimensions   = 256
	DefaultBatchSize    = 10
	DefaultStoreDir     = "./data/vector_db"
	DefaultCollection   = "email_embeddings"
	DefaultMetric       = "l2"
	DefaultThreshold    = 0.85
	DefaultLimit        = 10
	DefaultMaxTextChars = 1000
)

// Config holds the application configuration
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Source    SourceConfig    `yaml:"source,omitempty"`
	Notify    NotifyConfig    `yaml:"notify,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "local" | "ollama" | "openai" | "volcengine"

	APIKey   string `yaml:"api_key,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Model    string `yaml:"model,omitempty"`

	Dimensions     int    `yaml:"dimensions"`
	BatchSize      int    `yaml:"batch_size"`
	EncodingFormat string `yaml:"encoding_format,omitempty"` // volcengine only
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

// StoreConfig locates the on-disk similarity index.
// Changing the embedding model or dimensions invalidates everything stored
// under Dir; run `mailtriage clear` after such a change.
type StoreConfig struct {
	Dir        string `yaml:"dir"`
	Collection string `yaml:"collection"`
	Metric     string `yaml:"metric"` // "l2" | "cosine"

	// TextIndex enables the keyword index used by `mailtriage find`.
	TextIndex bool `yaml:"text_index"`
}

// DedupeConfig holds duplicate detection parameters
type DedupeConfig struct {
	Threshold    float64 `yaml:"threshold"`
	Limit        int     `yaml:"limit"`
	MaxTextChars int     `yaml:"max_text_chars"`
}

// SourceConfig controls which message files are picked up by `ingest`.
type SourceConfig struct {
	Include        []string `yaml:"include,omitempty"`         // doublestar globs, e.g. "**/*.eml"
	ExcludeSenders []string `yaml:"exclude_senders,omitempty"` // e.g. "*@noreply.*"
}

// NotifyConfig holds the chat webhook used for duplicate digests.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty"`
	Channel    string `yaml:"channel,omitempty"`
}

// LogConfig holds logging options
type LogConfig struct {
	Level string `yaml:"level,omitempty"` // debug | info | warn | error
	Dir   string `yaml:"dir,omitempty"`   // default ~/.mailtriage/logs
}

// DefaultPath returns the default config file location.
// MAILTRIAGE_CONFIG overrides it.
func DefaultPath() (string, error) {
	if env := os.Getenv("MAILTRIAGE_CONFIG"); env != "" {
		return expandPath(env), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".mailtriage", "config.yaml"), nil
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(path)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			defaultPath, _ := DefaultPath()
			return nil, &NotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config data, applies defaults and validates the result.
//
// Fields missing from data keep their defaults. Zero values written out
// explicitly are kept where zero is meaningful, e.g. `threshold: 0`.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Dedupe: DedupeConfig{Threshold: DefaultThreshold}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied. It needs no
// API keys since the local embedder runs offline.
func Default() *Config {
	cfg := &Config{Dedupe: DedupeConfig{Threshold: DefaultThreshold}}
	cfg.applyDefaults()
	return cfg
}

// NotFoundError is returned when config file is not found
type NotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Run 'mailtriage init' to create one\n"+
		"  2. Specify a custom path with --config\n"+
		"  3. Set MAILTRIAGE_CONFIG",
		e.RequestedPath, e.DefaultPath)
}

// IsNotFound checks if err is a NotFoundError
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// expandPath expands ~ and $HOME to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = DefaultProvider
	}
	if c.Embedding.Model == "" {
		switch c.Embedding.Provider {
		case "ollama":
			c.Embedding.Model = "all-minilm"
		case "openai":
			c.Embedding.Model = "text-embedding-3-small"
		case "volcengine":
			c.Embedding.Model = "doubao-embedding-vision-250615"
		default:
			c.Embedding.Model = "hash-trigram"
		}
	}
	if c.Embedding.Dimensions == 0 {
		switch c.Embedding.Provider {
		case "ollama":
			c.Embedding.Dimensions = 384
		case "openai":
			c.Embedding.Dimensions = 1536
		case "volcengine":
			c.Embedding.Dimensions = 2048
		default:
			c.Embedding.Dimensions = DefaultDimensions
		}
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = DefaultBatchSize
	}
	if c.Embedding.EncodingFormat == "" {
		c.Embedding.EncodingFormat = "float"
	}
	if c.Embedding.TimeoutSeconds == 0 {
		c.Embedding.TimeoutSeconds = 30
	}

	if c.Store.Dir == "" {
		c.Store.Dir = DefaultStoreDir
	}
	c.Store.Dir = expandPath(c.Store.Dir)
	if c.Store.Collection == "" {
		c.Store.Collection = DefaultCollection
	}
	if c.Store.Metric == "" {
		c.Store.Metric = DefaultMetric
	}

	if c.Dedupe.Limit == 0 {
		c.Dedupe.Limit = DefaultLimit
	}
	if c.Dedupe.MaxTextChars == 0 {
		c.Dedupe.MaxTextChars = DefaultMaxTextChars
	}

	if len(c.Source.Include) == 0 {
		c.Source.Include = []string{"**/*.eml", "**/*.json"}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Dir != "" {
		c.Log.Dir = expandPath(c.Log.Dir)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "local", "ollama":
	case "openai", "volcengine":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("%s provider requires api_key", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("dimensions must be positive, got: %d", c.Embedding.Dimensions)
	}

	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 100 {
		return fmt.Errorf("batch_size must be between 1 and 100, got: %d", c.Embedding.BatchSize)
	}

	switch c.Store.Metric {
	case "l2", "cosine":
	default:
		return fmt.Errorf("unsupported store metric: %s", c.Store.Metric)
	}

	if strings.ContainsAny(c.Store.Collection, `/\`) {
		return fmt.Errorf("collection name must not contain path separators: %q", c.Store.Collection)
	}

	if c.Dedupe.Threshold < 0 || c.Dedupe.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got: %v", c.Dedupe.Threshold)
	}

	if c.Dedupe.Limit < 1 {
		return fmt.Errorf("limit must be at least 1, got: %d", c.Dedupe.Limit)
	}

	if c.Dedupe.MaxTextChars < 0 {
		return fmt.Errorf("max_text_chars must not be negative, got: %d", c.Dedupe.MaxTextChars)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", c.Log.Level)
	}

	return nil
}

const defaultConfigTemplate = `# mailtriage configuration
#
# Default location: $HOME/.mailtriage/config.yaml

embedding:
  # Provider: "local" (offline, no key), "ollama", "openai" or "volcengine"
  provider: local
  dimensions: 256
  batch_size: 10

  # Ollama (runs all-minilm locally)
  # provider: ollama
  # endpoint: http://localhost:11434
  # model: all-minilm
  # dimensions: 384

  # OpenAI
  # provider: openai
  # api_key: your-openai-api-key
  # model: text-embedding-3-small
  # dimensions: 1536

store:
  # Changing the embedding model invalidates this directory; clear it afterwards.
  dir: ./data/vector_db
  collection: email_embeddings
  metric: l2
  text_index: true

dedupe:
  threshold: 0.85
  limit: 10
  max_text_chars: 1000

source:
  include:
    - "**/*.eml"
    - "**/*.json"
  exclude_senders:
    - "*@noreply.*"

notify:
  # webhook_url: https://hooks.slack.com/services/...
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
