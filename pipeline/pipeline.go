// Package pipeline wires retrieval, prompt construction and classification into the
// three public operations: Retrieve, Classify and Chemsource.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/chemsource/category"
	"github.com/c360studio/chemsource/classifier"
	"github.com/c360studio/chemsource/config"
	"github.com/c360studio/chemsource/llm"
	"github.com/c360studio/chemsource/llm/gemini"
	_ "github.com/c360studio/chemsource/llm/providers" // Register providers
	"github.com/c360studio/chemsource/model"
	"github.com/c360studio/chemsource/prompt"
	"github.com/c360studio/chemsource/retrieval"
	"github.com/c360studio/chemsource/source"
	"github.com/c360studio/chemsource/source/pubmed"
	"github.com/c360studio/chemsource/source/wikipedia"
)

// Information is the retrieved context for one compound.
type Information struct {
	// InfoSource is WIKIPEDIA, PUBMED, WIKIPEDIA+PUBMED, PUBMED+WIKIPEDIA or NONE.
	InfoSource string `json:"info_source"`

	// Text is the retrieved text, empty when InfoSource is NONE.
	Text string `json:"text"`
}

// Pipeline classifies compounds. It is immutable after New and safe for
// concurrent use.
type Pipeline struct {
	cfg        config.Config
	template   string
	retriever  *retrieval.Retriever
	classifier *classifier.Classifier
	provider   string
	keyless    bool
	metrics    *Metrics
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	encyclopedia source.Client
	literature   source.Client
	completer    llm.Completer
	registerer   prometheus.Registerer
	metrics      *Metrics
	logger       *slog.Logger
}

// WithEncyclopedia replaces the Wikipedia client.
func WithEncyclopedia(c source.Client) Option {
	return func(o *options) {
		o.encyclopedia = c
	}
}

// WithLiterature replaces the PubMed client.
func WithLiterature(c source.Client) Option {
	return func(o *options) {
		o.literature = c
	}
}

// WithCompleter replaces the completion transport. An injected completer does not
// need model.key.
func WithCompleter(c llm.Completer) Option {
	return func(o *options) {
		o.completer = c
	}
}

// WithMetrics registers pipeline metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithMetricsCollector reuses collectors created by NewMetrics. Pipelines rebuilt on
// config reload share one set instead of registering twice.
func WithMetricsCollector(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New validates cfg and builds every client the pipeline needs. A missing model key
// is not an error here; Retrieve works without one.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	template := prompt.Resolve(cfg.Prompt.Template)
	if err := prompt.ValidateTemplate(template); err != nil {
		return nil, err
	}

	endpoint, err := model.NewCatalog().Resolve(cfg.Model)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:      cfg,
		template: template,
		provider: endpoint.Provider,
		metrics:  o.metrics,
		logger:   logger,
	}
	if p.metrics == nil && o.registerer != nil {
		p.metrics = NewMetrics(o.registerer)
	}

	encyclopedia := o.encyclopedia
	if encyclopedia == nil {
		encyclopedia = wikipedia.NewClient(
			wikipedia.WithBaseURL(cfg.Encyclopedia.BaseURL),
			wikipedia.WithUserAgent(cfg.Encyclopedia.UserAgent),
			wikipedia.WithHTTPClient(&http.Client{Timeout: cfg.Encyclopedia.Timeout}),
			wikipedia.WithLogger(logger),
		)
	}

	literature := o.literature
	if literature == nil {
		pubmedOpts := []pubmed.Option{
			pubmed.WithAPIKey(cfg.Literature.APIKey),
			pubmed.WithBaseURL(cfg.Literature.BaseURL),
			pubmed.WithMaxResults(cfg.Literature.MaxResults),
			pubmed.WithHTTPClient(&http.Client{Timeout: cfg.Literature.Timeout}),
			pubmed.WithLogger(logger),
		}
		if cfg.Literature.RateLimit > 0 {
			pubmedOpts = append(pubmedOpts, pubmed.WithRateLimit(cfg.Literature.RateLimit))
		}
		literature = pubmed.NewClient(pubmedOpts...)
	}

	retrieverOpts := []retrieval.Option{retrieval.WithLogger(logger)}
	if p.metrics != nil {
		retrieverOpts = append(retrieverOpts, retrieval.WithObserver(p.metrics))
	}
	p.retriever = retrieval.New(encyclopedia, literature, retrieverOpts...)

	completer := o.completer
	p.keyless = completer != nil
	if completer == nil && cfg.RequireModelKey() == nil {
		completer, err = newCompleter(cfg.Model, endpoint, logger)
		if err != nil {
			return nil, err
		}
	}
	if completer != nil {
		p.classifier = classifier.New(
			p.metrics.instrument(endpoint.Provider, completer),
			endpoint.Model,
			cfg.AllowedSet(),
			cfg.Classification.CleanOutput,
			classifier.WithLogger(logger),
		)
	}

	logger.Debug("Pipeline ready",
		"model", endpoint.Model,
		"provider", endpoint.Provider,
		"priority", cfg.Retrieval.Priority,
		"single_source", cfg.Retrieval.SingleSource)

	return p, nil
}

// newCompleter builds the transport for endpoint. Gemini goes through the genai SDK;
// every other provider uses the registry-backed HTTP client.
func newCompleter(cfg config.ModelConfig, endpoint *model.EndpointConfig, logger *slog.Logger) (llm.Completer, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	if endpoint.Provider == model.ProviderGemini {
		geminiOpts := []gemini.Option{
			gemini.WithHTTPClient(httpClient),
			gemini.WithLogger(logger),
		}
		if endpoint.URL != "" {
			geminiOpts = append(geminiOpts, gemini.WithBaseURL(endpoint.URL))
		}
		c, err := gemini.NewClient(context.Background(), endpoint.Model, cfg.Key, geminiOpts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
		}
		return c, nil
	}

	if llm.GetProvider(endpoint.Provider) == nil {
		return nil, fmt.Errorf("%w: no completion transport for provider %q (available: %s, %s)",
			config.ErrConfiguration, endpoint.Provider, strings.Join(llm.ListProviders(), ", "), model.ProviderGemini)
	}

	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxAttempts

	return llm.NewClient(*endpoint, cfg.Key,
		llm.WithHTTPClient(httpClient),
		llm.WithRetryConfig(retry),
		llm.WithLogger(logger),
	), nil
}

// Config returns a copy of the pipeline's configuration.
func (p *Pipeline) Config() config.Config {
	return p.cfg
}

// Retrieve fetches context for name. Source failures never surface; the only errors
// are an empty name or an invalid priority.
func (p *Pipeline) Retrieve(ctx context.Context, name string, priority source.Kind, singleSource bool) (info Information, err error) {
	defer func(start time.Time) { p.metrics.observeOperation("retrieve", start, err) }(time.Now())

	bundle, err := p.retriever.Retrieve(ctx, strings.TrimSpace(name), priority, singleSource)
	if err != nil {
		return Information{}, err
	}
	return Information{InfoSource: bundle.InfoSource, Text: bundle.Text}, nil
}

// Classify builds the prompt from info and asks the model. It fails with a
// configuration error before any I/O when no model key is configured.
func (p *Pipeline) Classify(ctx context.Context, name string, info Information) (labels category.Classification, err error) {
	defer func(start time.Time) { p.metrics.observeOperation("classify", start, err) }(time.Now())

	if err := p.requireKey(); err != nil {
		return nil, err
	}
	return p.classify(ctx, strings.TrimSpace(name), info)
}

// Chemsource retrieves context for name and classifies it. A NONE retrieval still
// sends the no-information prompt.
func (p *Pipeline) Chemsource(ctx context.Context, name string, priority source.Kind, singleSource bool) (info Information, labels category.Classification, err error) {
	defer func(start time.Time) { p.metrics.observeOperation("chemsource", start, err) }(time.Now())

	if err := p.requireKey(); err != nil {
		return Information{}, nil, err
	}

	name = strings.TrimSpace(name)
	bundle, err := p.retriever.Retrieve(ctx, name, priority, singleSource)
	if err != nil {
		return Information{}, nil, err
	}
	info = Information{InfoSource: bundle.InfoSource, Text: bundle.Text}

	labels, err = p.classify(ctx, name, info)
	if err != nil {
		return info, nil, err
	}
	return info, labels, nil
}

func (p *Pipeline) requireKey() error {
	if p.keyless {
		return nil
	}
	if err := p.cfg.RequireModelKey(); err != nil {
		return err
	}
	if p.classifier == nil {
		return fmt.Errorf("%w: no completion transport configured", config.ErrConfiguration)
	}
	return nil
}

func (p *Pipeline) classify(ctx context.Context, name string, info Information) (category.Classification, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: compound name is empty", config.ErrConfiguration)
	}

	plan, err := prompt.Build(name, info.InfoSource, info.Text, p.template, p.cfg.Prompt.MaxLength)
	if err != nil {
		return nil, err
	}
	if plan.Truncated {
		p.logger.Debug("Prompt truncated", "compound", name, "max_length", p.cfg.Prompt.MaxLength)
	}

	labels, err := p.classifier.Classify(ctx, plan)
	if err != nil {
		p.logger.Warn("Classification failed",
			"compound", name,
			"model", p.cfg.Model.Name,
			"provider", p.provider,
			"error", err)
		return nil, err
	}

	p.metrics.observeLabels(labels)
	return labels, nil
}
