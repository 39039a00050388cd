package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/c360studio/chemsource/category"
	"github.com/c360studio/chemsource/llm"
	"github.com/c360studio/chemsource/source"
)

const metricsNamespace = "chemsource"

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	retrievalAttempts  *prometheus.CounterVec
	labels             *prometheus.CounterVec
	completions        *prometheus.CounterVec
	completionTokens   *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	completionDuration *prometheus.HistogramVec
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		retrievalAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "retrieval_attempts_total",
				Help:      "Source attempts by source tag and result status",
			},
			[]string{"source", "status"},
		),
		labels: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "classification_labels_total",
				Help:      "Labels returned by classifications",
			},
			[]string{"label"},
		),
		completions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "completion_requests_total",
				Help:      "Completion calls by provider and outcome",
			},
			[]string{"provider", "status"},
		),
		completionTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "completion_tokens_total",
				Help:      "Tokens consumed by completion calls",
			},
			[]string{"provider", "type"}, // type: prompt, completion
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "Pipeline operation duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 180},
			},
			[]string{"operation", "outcome"},
		),
		completionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "completion_duration_seconds",
				Help:      "Completion call duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
	}
}

// ObserveAttempt implements retrieval.Observer.
func (m *Metrics) ObserveAttempt(result source.Result) {
	if m == nil {
		return
	}
	m.retrievalAttempts.WithLabelValues(result.Source.Tag(), result.Status.String()).Inc()
}

func (m *Metrics) observeLabels(labels category.Classification) {
	if m == nil {
		return
	}
	for _, label := range labels {
		m.labels.WithLabelValues(string(label)).Inc()
	}
}

func (m *Metrics) observeOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// instrumentedCompleter records completion outcomes and token usage.
type instrumentedCompleter struct {
	next     llm.Completer
	provider string
	metrics  *Metrics
}

func (c *instrumentedCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := c.next.Complete(ctx, req)
	c.metrics.completionDuration.WithLabelValues(c.provider).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.completions.WithLabelValues(c.provider, llm.ErrorClass(err)).Inc()
		return nil, err
	}

	c.metrics.completions.WithLabelValues(c.provider, "success").Inc()
	c.metrics.completionTokens.WithLabelValues(c.provider, "prompt").Add(float64(resp.Usage.PromptTokens))
	c.metrics.completionTokens.WithLabelValues(c.provider, "completion").Add(float64(resp.Usage.CompletionTokens))
	return resp, nil
}

func (m *Metrics) instrument(provider string, next llm.Completer) llm.Completer {
	if m == nil {
		return next
	}
	return &instrumentedCompleter{next: next, provider: provider, metrics: m}
}
