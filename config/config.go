// Package config provides configuration loading and management for chemsource.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ssconfig "github.com/c360studio/semstreams/config"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/chemsource/category"
	"github.com/c360studio/chemsource/source"
)

// ErrConfiguration marks invalid configuration: a missing key, a bad template, an
// out-of-range option. It is never retriable.
var ErrConfiguration = errors.New("configuration error")

// Defaults used by DefaultConfig.
const (
	DefaultModel      = "gpt-4-0125-preview"
	DefaultMaxLength  = 250000
	DefaultMaxResults = 3
)

// Config represents the complete chemsource configuration. A Config is a plain
// value; each pipeline gets its own copy.
type Config struct {
	Model          ModelConfig          `yaml:"model"`
	Literature     LiteratureConfig     `yaml:"literature"`
	Encyclopedia   EncyclopediaConfig   `yaml:"encyclopedia"`
	Prompt         PromptConfig         `yaml:"prompt"`
	Classification ClassificationConfig `yaml:"classification"`
	Retrieval      RetrievalConfig      `yaml:"retrieval"`
	Log            LogConfig            `yaml:"log"`
	Server         ServerConfig         `yaml:"server"`
}

// ModelConfig configures the completion endpoint.
type ModelConfig struct {
	// Name is the model identifier sent with each request (e.g., "gpt-4-0125-preview")
	Name string `yaml:"name"`
	// Key is the model API key. Retrieval works without it; classification does not.
	Key string `yaml:"key"`
	// Provider overrides the provider inferred from Name (openai, deepseek, ollama, anthropic, gemini)
	Provider string `yaml:"provider,omitempty"`
	// URL overrides the provider's base URL
	URL string `yaml:"url,omitempty"`
	// Timeout is the maximum time to wait for a completion
	Timeout time.Duration `yaml:"timeout"`
	// MaxAttempts is the number of transport attempts per completion (1 = no retry)
	MaxAttempts int `yaml:"max_attempts"`
}

// LiteratureConfig configures the PubMed source.
type LiteratureConfig struct {
	// APIKey is the NCBI API key; omitted from requests when empty
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// MaxResults is retmax for search and fetch
	MaxResults int `yaml:"max_results"`
	// RateLimit is requests per second (0 = NCBI default for the key state)
	RateLimit float64       `yaml:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout"`
}

// EncyclopediaConfig configures the Wikipedia source.
type EncyclopediaConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PromptConfig configures prompt construction.
type PromptConfig struct {
	// Template must contain COMPOUND_NAME exactly once (empty = built-in template)
	Template string `yaml:"template,omitempty"`
	// MaxLength is the hard cap on prompt length, in characters
	MaxLength int `yaml:"max_length"`
}

// ClassificationConfig configures label parsing.
type ClassificationConfig struct {
	// AllowedCategories is the vocabulary kept when CleanOutput is set
	AllowedCategories []string `yaml:"allowed_categories"`
	// CleanOutput drops labels outside AllowedCategories (INFO is always kept)
	CleanOutput bool `yaml:"clean_output"`
}

// RetrievalConfig holds the default retrieval policy for the CLI and HTTP API.
type RetrievalConfig struct {
	// Priority is the source tried first: WIKIPEDIA or PUBMED
	Priority string `yaml:"priority"`
	// SingleSource stops after the first source
	SingleSource bool `yaml:"single_source"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig configures `chemsource serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// WatchConfig rebuilds the pipeline when the config file changes
	WatchConfig bool `yaml:"watch_config"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Name:        DefaultModel,
			Timeout:     3 * time.Minute,
			MaxAttempts: 1,
		},
		Literature: LiteratureConfig{
			BaseURL:    "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			MaxResults: DefaultMaxResults,
			Timeout:    30 * time.Second,
		},
		Encyclopedia: EncyclopediaConfig{
			BaseURL:   "https://en.wikipedia.org",
			UserAgent: "chemsource/0.1 (https://github.com/c360studio/chemsource)",
			Timeout:   30 * time.Second,
		},
		Prompt: PromptConfig{
			MaxLength: DefaultMaxLength,
		},
		Classification: ClassificationConfig{
			AllowedCategories: category.Classification(category.Vocabulary()).Strings(),
		},
		Retrieval: RetrievalConfig{
			Priority: source.TagWikipedia,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Validate checks that the configuration is valid. Every error wraps ErrConfiguration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Model.Name) == "" {
		return invalid("model.name is required")
	}
	if c.Model.Timeout < 0 {
		return invalid("model.timeout must not be negative")
	}
	if c.Model.MaxAttempts < 1 {
		return invalid("model.max_attempts must be at least 1")
	}
	if c.Literature.MaxResults < 1 {
		return invalid("literature.max_results must be at least 1")
	}
	if c.Literature.RateLimit < 0 {
		return invalid("literature.rate_limit must not be negative")
	}
	if c.Prompt.MaxLength <= 0 {
		return invalid("prompt.max_length must be positive")
	}
	if _, err := category.ParseSet(c.Classification.AllowedCategories); err != nil {
		return invalid("classification.allowed_categories: %v", err)
	}
	if !c.PriorityKind().IsValid() {
		return invalid("retrieval.priority %q must be WIKIPEDIA or PUBMED", c.Retrieval.Priority)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return invalid("log.format %q must be text or json", c.Log.Format)
	}
	return nil
}

// AllowedSet returns the parsed allowed categories. Call Validate first; unknown
// names are ignored here.
func (c *Config) AllowedSet() category.Set {
	set := category.NewSet()
	for _, name := range c.Classification.AllowedCategories {
		if cat, ok := category.Parse(name); ok {
			set[cat] = struct{}{}
		}
	}
	return set
}

// PriorityKind returns the configured priority source.
func (c *Config) PriorityKind() source.Kind {
	return source.ParseKind(c.Retrieval.Priority)
}

// RequireModelKey returns a configuration error when no model key is set.
func (c *Config) RequireModelKey() error {
	if strings.TrimSpace(c.Model.Key) == "" {
		return invalid("model API key must be provided")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
// ${VAR} and ${VAR:-default} references are expanded before parsing.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML on top of the defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := decode(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

// layer is one config file as read by the Loader. Config carries the non-zero
// values for Merge; switches records which booleans the file set explicitly.
type layer struct {
	config   *Config
	switches layerSwitches
}

// layerSwitches decodes the boolean keys as pointers so that an explicit false
// is distinguishable from an absent key.
type layerSwitches struct {
	Classification struct {
		CleanOutput *bool `yaml:"clean_output"`
	} `yaml:"classification"`
	Retrieval struct {
		SingleSource *bool `yaml:"single_source"`
	} `yaml:"retrieval"`
	Server struct {
		WatchConfig *bool `yaml:"watch_config"`
	} `yaml:"server"`
}

// readLayer parses a file into a zero Config so that Merge only sees the keys the
// file actually sets.
func readLayer(path string) (*layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l := &layer{config: &Config{}}
	if err := decode(data, l.config); err != nil {
		return nil, err
	}
	expanded := ssconfig.ExpandEnvWithDefaults(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &l.switches); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %v", ErrConfiguration, err)
	}
	return l, nil
}

// mergeLayer merges l into c. Booleans the layer sets explicitly win in either
// direction.
func (c *Config) mergeLayer(l *layer) {
	c.Merge(l.config)
	if v := l.switches.Classification.CleanOutput; v != nil {
		c.Classification.CleanOutput = *v
	}
	if v := l.switches.Retrieval.SingleSource; v != nil {
		c.Retrieval.SingleSource = *v
	}
	if v := l.switches.Server.WatchConfig; v != nil {
		c.Server.WatchConfig = *v
	}
}

func decode(data []byte, into *Config) error {
	expanded := ssconfig.ExpandEnvWithDefaults(string(data))
	if err := yaml.Unmarshal([]byte(expanded), into); err != nil {
		return fmt.Errorf("%w: failed to parse config file: %v", ErrConfiguration, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file may hold API keys.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values).
// Boolean options can only be switched on here; file layers use mergeLayer to
// switch them off.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Model
	if other.Model.Name != "" {
		c.Model.Name = other.Model.Name
	}
	if other.Model.Key != "" {
		c.Model.Key = other.Model.Key
	}
	if other.Model.Provider != "" {
		c.Model.Provider = other.Model.Provider
	}
	if other.Model.URL != "" {
		c.Model.URL = other.Model.URL
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}
	if other.Model.MaxAttempts != 0 {
		c.Model.MaxAttempts = other.Model.MaxAttempts
	}

	// Literature
	if other.Literature.APIKey != "" {
		c.Literature.APIKey = other.Literature.APIKey
	}
	if other.Literature.BaseURL != "" {
		c.Literature.BaseURL = other.Literature.BaseURL
	}
	if other.Literature.MaxResults != 0 {
		c.Literature.MaxResults = other.Literature.MaxResults
	}
	if other.Literature.RateLimit != 0 {
		c.Literature.RateLimit = other.Literature.RateLimit
	}
	if other.Literature.Timeout != 0 {
		c.Literature.Timeout = other.Literature.Timeout
	}

	// Encyclopedia
	if other.Encyclopedia.BaseURL != "" {
		c.Encyclopedia.BaseURL = other.Encyclopedia.BaseURL
	}
	if other.Encyclopedia.UserAgent != "" {
		c.Encyclopedia.UserAgent = other.Encyclopedia.UserAgent
	}
	if other.Encyclopedia.Timeout != 0 {
		c.Encyclopedia.Timeout = other.Encyclopedia.Timeout
	}

	// Prompt
	if other.Prompt.Template != "" {
		c.Prompt.Template = other.Prompt.Template
	}
	if other.Prompt.MaxLength != 0 {
		c.Prompt.MaxLength = other.Prompt.MaxLength
	}

	// Classification
	if len(other.Classification.AllowedCategories) > 0 {
		c.Classification.AllowedCategories = append([]string(nil), other.Classification.AllowedCategories...)
	}
	if other.Classification.CleanOutput {
		c.Classification.CleanOutput = true
	}

	// Retrieval
	if other.Retrieval.Priority != "" {
		c.Retrieval.Priority = other.Retrieval.Priority
	}
	if other.Retrieval.SingleSource {
		c.Retrieval.SingleSource = true
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.WatchConfig {
		c.Server.WatchConfig = true
	}
}
