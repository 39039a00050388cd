// Package api exposes the pipeline operations over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/chemsource/classifier"
	"github.com/c360studio/chemsource/config"
	"github.com/c360studio/chemsource/pipeline"
	"github.com/c360studio/chemsource/source"
)

// maxRequestSize bounds POST bodies (4MB).
const maxRequestSize = 4 << 20

// HTTPHandler serves the retrieve, classify and chemsource endpoints.
type HTTPHandler struct {
	pipeline atomic.Pointer[pipeline.Pipeline]
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures an HTTPHandler.
type Option func(*HTTPHandler)

// WithGatherer exposes the gatherer's metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *HTTPHandler) {
		h.gatherer = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *HTTPHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTPHandler creates a handler serving p.
func NewHTTPHandler(p *pipeline.Pipeline, opts ...Option) *HTTPHandler {
	h := &HTTPHandler{logger: slog.Default()}
	h.pipeline.Store(p)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Swap replaces the pipeline. In-flight requests finish on the old one.
func (h *HTTPHandler) Swap(p *pipeline.Pipeline) {
	h.pipeline.Store(p)
}

// RegisterHTTPHandlers registers the API routes on mux.
func (h *HTTPHandler) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/v1/retrieve", h.handleRetrieve)
	mux.HandleFunc("/v1/classify", h.handleClassify)
	mux.HandleFunc("/v1/chemsource", h.handleChemsource)
	mux.HandleFunc("/healthz", h.handleHealth)
	if h.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}

// RetrieveResponse is the JSON response for GET /v1/retrieve.
type RetrieveResponse struct {
	Name       string `json:"name"`
	InfoSource string `json:"info_source"`
	Text       string `json:"text"`
}

// ClassifyRequest is the JSON body for POST /v1/classify.
type ClassifyRequest struct {
	Name       string `json:"name"`
	InfoSource string `json:"info_source"`
	Text       string `json:"text"`
}

// ClassifyResponse is the JSON response for POST /v1/classify.
type ClassifyResponse struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// ChemsourceResponse is the JSON response for GET /v1/chemsource.
type ChemsourceResponse struct {
	Name       string   `json:"name"`
	InfoSource string   `json:"info_source"`
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleRetrieve handles GET /v1/retrieve?name=&priority=&single_source=
func (h *HTTPHandler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use GET")
		return
	}

	p := h.pipeline.Load()
	name := r.URL.Query().Get("name")
	priority, single, ok := retrievalParams(w, r, p.Config())
	if !ok {
		return
	}

	info, err := p.Retrieve(r.Context(), name, priority, single)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RetrieveResponse{
		Name:       name,
		InfoSource: info.InfoSource,
		Text:       info.Text,
	})
}

// handleClassify handles POST /v1/classify with a ClassifyRequest body.
func (h *HTTPHandler) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use POST")
		return
	}

	var req ClassifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body: "+err.Error())
		return
	}

	labels, err := h.pipeline.Load().Classify(r.Context(), req.Name, pipeline.Information{
		InfoSource: req.InfoSource,
		Text:       req.Text,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ClassifyResponse{
		Name:       req.Name,
		Categories: labels.Strings(),
	})
}

// handleChemsource handles GET /v1/chemsource?name=&priority=&single_source=
func (h *HTTPHandler) handleChemsource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use GET")
		return
	}

	p := h.pipeline.Load()
	name := r.URL.Query().Get("name")
	priority, single, ok := retrievalParams(w, r, p.Config())
	if !ok {
		return
	}

	info, labels, err := p.Chemsource(r.Context(), name, priority, single)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChemsourceResponse{
		Name:       name,
		InfoSource: info.InfoSource,
		Text:       info.Text,
		Categories: labels.Strings(),
	})
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// retrievalParams reads priority and single_source, falling back to cfg.
// It writes a 400 and returns false on a malformed single_source.
func retrievalParams(w http.ResponseWriter, r *http.Request, cfg config.Config) (source.Kind, bool, bool) {
	q := r.URL.Query()

	priority := cfg.PriorityKind()
	if raw := q.Get("priority"); raw != "" {
		// Invalid values are rejected by the retriever as configuration errors
		priority = source.ParseKind(raw)
	}

	single := cfg.Retrieval.SingleSource
	if raw := q.Get("single_source"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_parameter", "single_source must be a boolean")
			return "", false, false
		}
		single = v
	}

	return priority, single, true
}

// writeError maps pipeline errors to status codes.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrConfiguration):
		writeJSONError(w, http.StatusBadRequest, "configuration_error", err.Error())
	case classifier.IsCompletionError(err):
		writeJSONError(w, http.StatusBadGateway, "completion_error", err.Error())
	default:
		h.logger.Error("Request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
