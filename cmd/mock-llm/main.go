// Package main implements an offline OpenAI-compatible completion server for
// exercising chemsource without a real model.
//
// It answers classification prompts from a YAML fixture that maps compound names
// to the model's raw answer:
//
//	default: INFO
//	answers:
//	  caffeine: FOOD, MEDICAL
//	  ethanol: FOOD, INDUSTRIAL, MEDICAL
//
// The compound is read back out of the prompt by locating the text that surrounds
// the placeholder in the prompt template.
//
// Usage:
//
//	mock-llm -fixtures answers.yaml -port 11434
//
// and point chemsource at it with model.url: http://localhost:11434
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/chemsource/prompt"
)

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// fixtures maps lower-cased compound names to raw answers.
type fixtures struct {
	Default string            `yaml:"default"`
	Answers map[string]string `yaml:"answers"`
	// Template is the prompt template the client uses. Empty means the default.
	Template string `yaml:"template"`
}

func loadFixtures(path string) (*fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var f fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return f.normalize()
}

func (f *fixtures) normalize() (*fixtures, error) {
	if f.Default == "" {
		f.Default = "INFO"
	}
	f.Template = prompt.Resolve(f.Template)
	if err := prompt.ValidateTemplate(f.Template); err != nil {
		return nil, err
	}
	answers := make(map[string]string, len(f.Answers))
	for name, answer := range f.Answers {
		answers[strings.ToLower(strings.TrimSpace(name))] = answer
	}
	f.Answers = answers
	return f, nil
}

// capturedRequest stores the key fields of an incoming request for verification.
type capturedRequest struct {
	Model     string  `json:"model"`
	Compound  string  `json:"compound"`
	Prompt    string  `json:"prompt"`
	TopP      float64 `json:"top_p"`
	Timestamp int64   `json:"timestamp"`
}

type server struct {
	fixtures *fixtures
	calls    atomic.Int64
	logger   *slog.Logger

	requestsMu sync.Mutex
	requests   []capturedRequest
}

func newServer(f *fixtures, logger *slog.Logger) *server {
	return &server{fixtures: f, logger: logger}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)
	return mux
}

func main() {
	fixturePath := flag.String("fixtures", "", "YAML file mapping compounds to answers")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Allow env var override
	if envPath := os.Getenv("MOCK_LLM_FIXTURES"); envPath != "" && *fixturePath == "" {
		*fixturePath = envPath
	}

	f := &fixtures{}
	if *fixturePath != "" {
		loaded, err := loadFixtures(*fixturePath)
		if err != nil {
			logger.Error("Failed to load fixtures", "path", *fixturePath, "error", err)
			os.Exit(1)
		}
		f = loaded
	} else if _, err := f.normalize(); err != nil {
		logger.Error("Invalid default fixtures", "error", err)
		os.Exit(1)
	}
	logger.Info("Loaded fixtures", "compounds", len(f.Answers), "default", f.Default)

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("Mock LLM server listening", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: newServer(f, logger).routes(), ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages must not be empty", http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	text := req.Messages[len(req.Messages)-1].Content

	compound, ok := compoundFromPrompt(text, s.fixtures.Template)
	content := s.fixtures.Default
	if ok {
		if answer, found := s.fixtures.Answers[strings.ToLower(compound)]; found {
			content = answer
		}
	}

	captured := capturedRequest{
		Model:     req.Model,
		Compound:  compound,
		Prompt:    text,
		Timestamp: time.Now().UnixMilli(),
	}
	if req.TopP != nil {
		captured.TopP = *req.TopP
	}
	s.requestsMu.Lock()
	s.requests = append(s.requests, captured)
	s.requestsMu.Unlock()

	s.logger.Info("Completion served",
		"call", callNum,
		"model", req.Model,
		"compound", compound,
		"answer", content)

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      chatMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(text) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(text) + len(content)) / 4,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleStats returns the call count for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"total_calls": s.calls.Load()})
}

// handleRequests returns captured requests, optionally filtered by ?compound=.
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	filter := strings.ToLower(r.URL.Query().Get("compound"))

	s.requestsMu.Lock()
	result := make([]capturedRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if filter == "" || strings.ToLower(req.Compound) == filter {
			result = append(result, req)
		}
	}
	s.requestsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"requests": result})
}

// compoundFromPrompt recovers the substituted name from a rendered prompt. The name
// sits between the template text before the placeholder and the first characters
// of the template text after it.
func compoundFromPrompt(text, template string) (string, bool) {
	i := strings.Index(template, prompt.Placeholder)
	if i < 0 {
		return "", false
	}
	before := template[:i]
	after := template[i+len(prompt.Placeholder):]
	if len(after) > 16 {
		after = after[:16]
	}

	if !strings.HasPrefix(text, before) {
		return "", false
	}
	rest := text[len(before):]
	if after == "" {
		return strings.TrimSpace(rest), rest != ""
	}
	j := strings.Index(rest, after)
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}
