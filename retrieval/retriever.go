// Package retrieval orders knowledge sources by priority, applies the single- or
// multi-source policy and bundles whatever text they produced.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/chemsource/config"
	"github.com/c360studio/chemsource/source"
)

// Bundle is everything one Retrieve call produced.
type Bundle struct {
	// Attempts holds every attempt in the order it was made.
	Attempts []source.Result

	// Used holds the attempts that contributed text.
	Used []source.Result

	// InfoSource is the tags of the used sources joined with "+", or NONE.
	InfoSource string

	// Text is the used texts joined with a single space. Empty when InfoSource is NONE.
	Text string
}

// None reports whether no source contributed text.
func (b Bundle) None() bool {
	return len(b.Used) == 0
}

// Observer is notified of every attempt.
type Observer interface {
	ObserveAttempt(result source.Result)
}

// Retriever tries the encyclopedia and literature clients in priority order.
type Retriever struct {
	clients  map[source.Kind]source.Client
	observer Observer
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithObserver sets the attempt observer.
func WithObserver(o Observer) Option {
	return func(r *Retriever) {
		r.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Retriever. Either client may be nil; a nil client behaves like a
// source that never has anything.
func New(encyclopedia, literature source.Client, opts ...Option) *Retriever {
	r := &Retriever{
		clients: map[source.Kind]source.Client{
			source.Encyclopedia: encyclopedia,
			source.Literature:   literature,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve fetches text for name. The priority source is tried first; the other
// source is tried only when singleSource is false, and then always, even if the first
// one succeeded. Source failures never surface as errors: the only errors are an
// empty name and a priority that is not ENCYCLOPEDIA or LITERATURE.
func (r *Retriever) Retrieve(ctx context.Context, name string, priority source.Kind, singleSource bool) (Bundle, error) {
	if strings.TrimSpace(name) == "" {
		return Bundle{}, fmt.Errorf("%w: compound name is empty", config.ErrConfiguration)
	}
	order, err := Order(priority)
	if err != nil {
		return Bundle{}, err
	}
	if singleSource {
		order = order[:1]
	}

	var bundle Bundle
	for _, kind := range order {
		result := r.attempt(ctx, kind, name)
		bundle.Attempts = append(bundle.Attempts, result)
		if r.observer != nil {
			r.observer.ObserveAttempt(result)
		}

		switch result.Status {
		case source.StatusFound:
			bundle.Used = append(bundle.Used, result)
		case source.StatusEmpty:
			r.logger.Debug("Source had nothing for compound",
				"source", kind.Tag(), "name", name, "error", result.Err)
		case source.StatusTransportError, source.StatusParseError:
			r.logger.Warn("Source retrieval failed",
				"source", kind.Tag(), "name", name, "status", result.Status.String(), "error", result.Err)
		}
	}

	bundle.InfoSource, bundle.Text = assemble(bundle.Used)
	return bundle, nil
}

func (r *Retriever) attempt(ctx context.Context, kind source.Kind, name string) source.Result {
	client := r.clients[kind]
	if client == nil {
		return source.Empty(kind, nil)
	}
	return client.Fetch(ctx, name)
}

// Order returns the attempt order for a priority.
func Order(priority source.Kind) ([]source.Kind, error) {
	switch priority {
	case source.Encyclopedia:
		return []source.Kind{source.Encyclopedia, source.Literature}, nil
	case source.Literature:
		return []source.Kind{source.Literature, source.Encyclopedia}, nil
	}
	return nil, fmt.Errorf("%w: priority %q must be %s or %s",
		config.ErrConfiguration, priority, source.TagWikipedia, source.TagPubMed)
}

func assemble(used []source.Result) (infoSource, text string) {
	if len(used) == 0 {
		return source.TagNone, ""
	}
	tags := make([]string, len(used))
	texts := make([]string, len(used))
	for i, r := range used {
		tags[i] = r.Source.Tag()
		texts[i] = r.Text
	}
	return strings.Join(tags, "+"), strings.Join(texts, " ")
}
