package providers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/chemsource/llm"
)

func TestProviders_Registered(t *testing.T) {
	for _, name := range []string{"openai", "deepseek", "ollama", "anthropic"} {
		p := llm.GetProvider(name)
		require.NotNil(t, p, "provider %s not registered", name)
		assert.Equal(t, name, p.Name())
	}
}

func TestChatCompletionsURL(t *testing.T) {
	tests := []struct {
		name     string
		provider llm.Provider
		baseURL  string
		want     string
	}{
		{"openai default", &OpenAIProvider{}, "", "https://api.openai.com/v1/chat/completions"},
		{"openai custom base (OpenRouter)", &OpenAIProvider{}, "https://openrouter.ai/api/v1", "https://openrouter.ai/api/v1/chat/completions"},
		{"openai trailing slash", &OpenAIProvider{}, "https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"deepseek default", &DeepSeekProvider{}, "", "https://api.deepseek.com/chat/completions"},
		{"ollama default", &OllamaProvider{}, "", "http://localhost:11434/v1/chat/completions"},
		{"full URL kept", &OllamaProvider{}, "http://gpu:8000/v1/chat/completions", "http://gpu:8000/v1/chat/completions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.provider.BuildURL(tt.baseURL))
		})
	}
}

func TestOpenAICompatible_SetHeaders(t *testing.T) {
	for _, p := range []llm.Provider{&OpenAIProvider{}, &DeepSeekProvider{}, &OllamaProvider{}} {
		t.Run(p.Name(), func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
			p.SetHeaders(req, "sk-test")
			assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

			req, _ = http.NewRequest(http.MethodPost, "http://example.invalid", nil)
			p.SetHeaders(req, "")
			assert.Empty(t, req.Header.Get("Authorization"))
		})
	}
}

func TestOpenAICompatible_BuildRequestBody(t *testing.T) {
	p := &DeepSeekProvider{}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: "Classify caffeine."}}
	sampling := llm.Sampling{Temperature: llm.Float(0), TopP: llm.Float(0)}

	body, err := p.BuildRequestBody("deepseek-chat", messages, sampling, 0)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, "deepseek-chat", decoded["model"])
	// Zero sampling values are sent, not omitted
	assert.Equal(t, 0.0, decoded["temperature"])
	assert.Equal(t, 0.0, decoded["top_p"])
	assert.Equal(t, false, decoded["stream"])
	assert.NotContains(t, decoded, "max_tokens")

	msgs := decoded["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "Classify caffeine.", msgs[0].(map[string]any)["content"])
}

func TestOpenAICompatible_BuildRequestBody_NoOptionalParams(t *testing.T) {
	p := &OllamaProvider{}

	body, err := p.BuildRequestBody("test-model", []llm.Message{{Role: "user", Content: "Hello"}}, llm.Sampling{}, 2048)
	require.NoError(t, err)

	// Should not contain sampling parameters when nil
	assert.NotContains(t, string(body), `"temperature"`)
	assert.NotContains(t, string(body), `"top_p"`)
	assert.Contains(t, string(body), `"max_tokens":2048`)
}

func TestOpenAICompatible_ParseResponse(t *testing.T) {
	p := &OpenAIProvider{}

	responseBody := []byte(`{
		"id": "chatcmpl-123",
		"object": "chat.completion",
		"created": 1677652288,
		"model": "gpt-4-0125-preview",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "FOOD, MEDICAL"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 310, "completion_tokens": 4, "total_tokens": 314}
	}`)

	resp, err := p.ParseResponse(responseBody, "gpt-4-0125-preview")
	require.NoError(t, err)

	assert.Equal(t, "FOOD, MEDICAL", resp.Content)
	assert.Equal(t, "gpt-4-0125-preview", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 310, resp.Usage.PromptTokens)
	assert.Equal(t, 4, resp.Usage.CompletionTokens)
	assert.Equal(t, 314, resp.Usage.TotalTokens)
}

func TestOpenAICompatible_ParseResponse_Errors(t *testing.T) {
	p := &OllamaProvider{}

	_, err := p.ParseResponse([]byte(`{"id": "chatcmpl-123", "choices": []}`), "test-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")

	_, err = p.ParseResponse([]byte(`<html>`), "test-model")
	require.Error(t, err)
}
