package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360studio/chemsource/category"
	"github.com/c360studio/chemsource/source"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.Name != "gpt-4-0125-preview" {
		t.Errorf("expected default model gpt-4-0125-preview, got %s", cfg.Model.Name)
	}
	if cfg.Model.MaxAttempts != 1 {
		t.Errorf("expected a single transport attempt by default, got %d", cfg.Model.MaxAttempts)
	}
	if cfg.Prompt.MaxLength != 250000 {
		t.Errorf("expected max length 250000, got %d", cfg.Prompt.MaxLength)
	}
	if cfg.Literature.MaxResults != 3 {
		t.Errorf("expected 3 literature results, got %d", cfg.Literature.MaxResults)
	}
	if cfg.PriorityKind() != source.Encyclopedia {
		t.Errorf("expected encyclopedia priority, got %s", cfg.PriorityKind())
	}
	if cfg.Classification.CleanOutput {
		t.Error("expected clean output off by default")
	}
	if len(cfg.AllowedSet()) != 5 {
		t.Errorf("expected the full vocabulary to be allowed, got %d", len(cfg.AllowedSet()))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing model name",
			modify:  func(c *Config) { c.Model.Name = " " },
			wantErr: true,
		},
		{
			name:    "zero max attempts",
			modify:  func(c *Config) { c.Model.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "zero max length",
			modify:  func(c *Config) { c.Prompt.MaxLength = 0 },
			wantErr: true,
		},
		{
			name:    "negative rate limit",
			modify:  func(c *Config) { c.Literature.RateLimit = -1 },
			wantErr: true,
		},
		{
			name:    "unknown category",
			modify:  func(c *Config) { c.Classification.AllowedCategories = []string{"MEDICAL", "COSMIC"} },
			wantErr: true,
		},
		{
			name:    "lowercase category accepted",
			modify:  func(c *Config) { c.Classification.AllowedCategories = []string{"personal care"} },
			wantErr: false,
		},
		{
			name:    "priority by kind name",
			modify:  func(c *Config) { c.Retrieval.Priority = "literature" },
			wantErr: false,
		},
		{
			name:    "priority NONE rejected",
			modify:  func(c *Config) { c.Retrieval.Priority = "NONE" },
			wantErr: true,
		},
		{
			name:    "bad log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("Validate() error %v does not wrap ErrConfiguration", err)
			}
		})
	}
}

func TestRequireModelKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.RequireModelKey(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected configuration error without key, got %v", err)
	}
	cfg.Model.Key = "sk-test"
	if err := cfg.RequireModelKey(); err != nil {
		t.Errorf("unexpected error with key: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("CHEMSOURCE_TEST_KEY", "sk-from-env")

	content := `
model:
  name: "deepseek-chat"
  key: ${CHEMSOURCE_TEST_KEY}
  timeout: 10m
literature:
  api_key: ${CHEMSOURCE_TEST_NCBI:-}
  max_results: 5
prompt:
  max_length: 1000
classification:
  allowed_categories: [MEDICAL, FOOD]
  clean_output: true
retrieval:
  priority: PUBMED
  single_source: true
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Model.Name != "deepseek-chat" {
		t.Errorf("expected model deepseek-chat, got %s", cfg.Model.Name)
	}
	if cfg.Model.Key != "sk-from-env" {
		t.Errorf("expected key expanded from env, got %q", cfg.Model.Key)
	}
	if cfg.Model.Timeout != 10*time.Minute {
		t.Errorf("expected timeout 10m, got %v", cfg.Model.Timeout)
	}
	if cfg.Literature.APIKey != "" {
		t.Errorf("expected empty literature key, got %q", cfg.Literature.APIKey)
	}
	if cfg.Literature.MaxResults != 5 {
		t.Errorf("expected 5 results, got %d", cfg.Literature.MaxResults)
	}
	if cfg.Prompt.MaxLength != 1000 {
		t.Errorf("expected max length 1000, got %d", cfg.Prompt.MaxLength)
	}
	if !cfg.Classification.CleanOutput {
		t.Error("expected clean output on")
	}
	if cfg.PriorityKind() != source.Literature || !cfg.Retrieval.SingleSource {
		t.Errorf("unexpected retrieval policy %+v", cfg.Retrieval)
	}
	allowed := cfg.AllowedSet()
	if len(allowed) != 2 || !allowed.Contains(category.Medical) || !allowed.Contains(category.Food) {
		t.Errorf("unexpected allowed set %v", allowed)
	}
	// Untouched sections keep their defaults
	if cfg.Encyclopedia.BaseURL != "https://en.wikipedia.org" {
		t.Errorf("expected default encyclopedia URL, got %s", cfg.Encyclopedia.BaseURL)
	}
}

func TestLoadFromBytes_InvalidYAML(t *testing.T) {
	_, err := LoadFromBytes([]byte("model: [unclosed"))
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Model: ModelConfig{
			Name: "override-model",
		},
		Classification: ClassificationConfig{
			CleanOutput: true,
		},
	}

	base.Merge(override)

	if base.Model.Name != "override-model" {
		t.Errorf("expected model override-model, got %s", base.Model.Name)
	}
	// Timeout should remain from base since override didn't set it
	if base.Model.Timeout != 3*time.Minute {
		t.Errorf("expected timeout to remain default, got %v", base.Model.Timeout)
	}
	if !base.Classification.CleanOutput {
		t.Error("expected clean output switched on")
	}
	if len(base.Classification.AllowedCategories) != 5 {
		t.Errorf("expected allowed categories to remain default, got %v", base.Classification.AllowedCategories)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Model.Name = "saved-model"
	cfg.Classification.AllowedCategories = []string{"PERSONAL CARE"}

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file was created
	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Model.Name != "saved-model" {
		t.Errorf("expected model saved-model, got %s", loaded.Model.Name)
	}
	if loaded.Model.Timeout != 3*time.Minute {
		t.Errorf("expected timeout to round-trip, got %v", loaded.Model.Timeout)
	}
	if !loaded.AllowedSet().Contains(category.PersonalCare) {
		t.Errorf("expected PERSONAL CARE to round-trip, got %v", loaded.Classification.AllowedCategories)
	}
}
