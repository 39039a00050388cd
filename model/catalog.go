// Package model resolves a model name to the provider endpoint that serves it.
package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/c360studio/chemsource/config"
)

// Provider names understood by the completion transport.
const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// DeepSeekURL is the DeepSeek API root.
const DeepSeekURL = "https://api.deepseek.com"

var knownProviders = map[string]bool{
	ProviderOpenAI:    true,
	ProviderDeepSeek:  true,
	ProviderOllama:    true,
	ProviderAnthropic: true,
	ProviderGemini:    true,
}

// IsKnownProvider reports whether name is a supported provider.
func IsKnownProvider(name string) bool {
	return knownProviders[name]
}

// EndpointConfig defines how to reach a model.
type EndpointConfig struct {
	// Provider is the model provider (openai, deepseek, ollama, anthropic, gemini).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API base URL. Empty uses the provider default.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the actual model identifier to send to the provider.
	Model string `json:"model" yaml:"model"`
}

// prefixRule maps model names starting with Prefix to a provider.
type prefixRule struct {
	Prefix   string
	Provider string
	URL      string
}

// Catalog maps model names to endpoints by prefix. Names that match nothing go to
// the OpenAI provider.
type Catalog struct {
	mu       sync.RWMutex
	rules    []prefixRule
	fallback string
}

// NewCatalog creates a catalog with the built-in prefix rules.
func NewCatalog() *Catalog {
	c := &Catalog{fallback: ProviderOpenAI}
	c.AddRule("deepseek-", ProviderDeepSeek, DeepSeekURL)
	c.AddRule("gemini-", ProviderGemini, "")
	c.AddRule("claude-", ProviderAnthropic, "")
	return c
}

// AddRule adds a prefix rule. Longer prefixes win.
func (c *Catalog) AddRule(prefix, provider, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, prefixRule{Prefix: prefix, Provider: provider, URL: url})
	sort.SliceStable(c.rules, func(i, j int) bool {
		return len(c.rules[i].Prefix) > len(c.rules[j].Prefix)
	})
}

// Lookup returns the endpoint for a model name. It never returns nil.
func (c *Catalog) Lookup(name string) *EndpointConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lower := strings.ToLower(name)
	for _, r := range c.rules {
		if strings.HasPrefix(lower, r.Prefix) {
			return &EndpointConfig{Provider: r.Provider, URL: r.URL, Model: name}
		}
	}

	return &EndpointConfig{Provider: c.fallback, Model: name}
}

// Resolve looks up name and applies the configured provider and URL overrides.
// An unknown provider override is a configuration error.
func (c *Catalog) Resolve(cfg config.ModelConfig) (*EndpointConfig, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: model name is empty", config.ErrConfiguration)
	}

	ep := c.Lookup(cfg.Name)
	if cfg.Provider != "" {
		if !IsKnownProvider(cfg.Provider) {
			return nil, fmt.Errorf("%w: unknown model provider %q", config.ErrConfiguration, cfg.Provider)
		}
		if cfg.Provider != ep.Provider {
			// A different provider never inherits the inferred provider's URL
			ep.URL = ""
		}
		ep.Provider = cfg.Provider
	}
	if cfg.URL != "" {
		ep.URL = cfg.URL
	}
	return ep, nil
}
