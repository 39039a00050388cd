package providers

import (
	"net/http"

	"github.com/c360studio/chemsource/llm"
)

// OpenAIProvider implements the OpenAI API for direct OpenAI or OpenRouter usage.
// This is separate from OllamaProvider to allow different default URLs and auth.
type OpenAIProvider struct {
	OllamaProvider // Embed for shared request/response format
}

// DeepSeekProvider implements the DeepSeek API, which follows the OpenAI format
// under its own base URL.
type DeepSeekProvider struct {
	OllamaProvider
}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
	llm.RegisterProvider(&DeepSeekProvider{})
}

// Name returns the provider identifier.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// BuildURL constructs the OpenAI API endpoint.
func (o *OpenAIProvider) BuildURL(baseURL string) string {
	return chatCompletionsURL(baseURL, "https://api.openai.com/v1")
}

// SetHeaders adds OpenAI authentication headers.
func (o *OpenAIProvider) SetHeaders(req *http.Request, apiKey string) {
	setBearer(req, apiKey)
}

// Name returns the provider identifier.
func (d *DeepSeekProvider) Name() string {
	return "deepseek"
}

// BuildURL constructs the DeepSeek API endpoint.
func (d *DeepSeekProvider) BuildURL(baseURL string) string {
	return chatCompletionsURL(baseURL, "https://api.deepseek.com")
}

// SetHeaders adds DeepSeek authentication headers.
func (d *DeepSeekProvider) SetHeaders(req *http.Request, apiKey string) {
	setBearer(req, apiKey)
}
