package pipeline

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/chemsource/config"
	"github.com/c360studio/chemsource/llm"
	"github.com/c360studio/chemsource/model"
)

func TestRegisteredProvidersMatchCatalog(t *testing.T) {
	registered := llm.ListProviders()
	require.NotEmpty(t, registered)
	for _, name := range registered {
		assert.True(t, model.IsKnownProvider(name), "registered provider %q unknown to the catalog", name)
	}

	for _, name := range []string{model.ProviderOpenAI, model.ProviderDeepSeek, model.ProviderOllama, model.ProviderAnthropic} {
		assert.Contains(t, registered, name)
	}
}

func TestNewCompleter_UnregisteredProvider(t *testing.T) {
	cfg := config.ModelConfig{Name: "local-7b", Key: "sk-test", MaxAttempts: 1}
	endpoint := &model.EndpointConfig{Provider: "vllm", Model: "local-7b"}

	_, err := newCompleter(cfg, endpoint, slog.Default())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfiguration)
	assert.Contains(t, err.Error(), `"vllm"`)
	assert.Contains(t, err.Error(), model.ProviderOpenAI)
}

func TestNewCompleter_RegisteredProvider(t *testing.T) {
	cfg := config.ModelConfig{Name: "deepseek-chat", Key: "sk-test", MaxAttempts: 1}
	endpoint := &model.EndpointConfig{Provider: model.ProviderDeepSeek, URL: model.DeepSeekURL, Model: "deepseek-chat"}

	c, err := newCompleter(cfg, endpoint, slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, c)
}
