// Package gemini implements llm.Completer on the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/c360studio/chemsource/llm"
)

// Client sends completions to a Gemini model.
type Client struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*config)

type config struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithBaseURL overrides the Gemini API root.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// NewClient creates a Gemini completer for model using apiKey.
func NewClient(ctx context.Context, model, apiKey string, opts ...Option) (*Client, error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient,
	}
	if cfg.baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	return &Client{client: client, model: model, logger: cfg.logger}, nil
}

var _ llm.Completer = (*Client)(nil)

// Complete implements llm.Completer. System messages become the system
// instruction; a request with only a system message sends it as the user turn.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if len(req.Messages) == 0 {
		return nil, llm.NewFatalError(fmt.Errorf("at least one message is required"))
	}

	var system []string
	var contents []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{genai.NewPartFromText(msg.Content)}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(msg.Content)}})
		}
	}

	genCfg := &genai.GenerateContentConfig{}
	if len(contents) == 0 {
		contents = []*genai.Content{{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(strings.Join(system, "\n"))}}}
	} else if len(system) > 0 {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(strings.Join(system, "\n"))}}
	}
	if t := req.Sampling.Temperature; t != nil {
		genCfg.Temperature = genai.Ptr(float32(*t))
	}
	if p := req.Sampling.TopP; p != nil {
		genCfg.TopP = genai.Ptr(float32(*p))
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	requestID := uuid.New().String()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		c.logger.Warn("Gemini request failed", "request_id", requestID, "model", c.model, "error", err)
		return nil, classify(err)
	}

	out := &llm.Response{
		RequestID: requestID,
		Content:   resp.Text(),
		Model:     c.model,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	c.logger.Debug("Gemini request completed",
		"request_id", requestID,
		"model", out.Model,
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens)

	return out, nil
}

// classify maps SDK errors onto the llm transient/fatal split.
func classify(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}

	switch {
	case code == 0:
		// Network failures and cancellations never reached the API
		return llm.NewTransientError(err)
	case code == http.StatusTooManyRequests, code >= 500:
		return llm.NewTransientError(err)
	default:
		return llm.NewFatalError(err)
	}
}
