// Package classifier turns a rendered prompt into a category classification with a
// single completion call.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/chemsource/category"
	"github.com/c360studio/chemsource/llm"
	"github.com/c360studio/chemsource/prompt"
)

// ErrEmptyResponse is returned when the model answered with blank content.
var ErrEmptyResponse = errors.New("empty completion response")

// CompletionError reports a failed or unusable completion call.
type CompletionError struct {
	Model string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion with model %s failed: %v", e.Model, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// IsCompletionError reports whether err is a CompletionError.
func IsCompletionError(err error) bool {
	var ce *CompletionError
	return errors.As(err, &ce)
}

// Classifier classifies compounds with one model.
type Classifier struct {
	completer llm.Completer
	model     string
	allowed   category.Set
	clean     bool
	logger    *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Classifier. A nil allowed set means the full vocabulary.
func New(completer llm.Completer, model string, allowed category.Set, clean bool, opts ...Option) *Classifier {
	if allowed == nil {
		allowed = category.DefaultSet()
	}
	c := &Classifier{
		completer: completer,
		model:     model,
		allowed:   allowed,
		clean:     clean,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify sends plan as the only system message, with temperature and top_p at
// zero, and parses the answer. It never retries.
func (c *Classifier) Classify(ctx context.Context, plan prompt.Plan) (category.Classification, error) {
	resp, err := c.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleSystem, Content: plan.Text}},
		Sampling: llm.Sampling{Temperature: llm.Float(0), TopP: llm.Float(0)},
	})
	if err != nil {
		return nil, &CompletionError{Model: c.model, Err: err}
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, &CompletionError{Model: c.model, Err: ErrEmptyResponse}
	}

	labels := ParseLabels(resp.Content, c.allowed, c.clean)

	c.logger.Debug("Compound classified",
		"model", c.model,
		"labels", labels.Strings(),
		"truncated_prompt", plan.Truncated)

	return labels, nil
}

// ParseLabels splits raw on commas, trims and upper-cases each token and drops
// empty ones. With clean set, only tokens in allowed or INFO are kept; otherwise
// unknown tokens are kept verbatim. Duplicates keep their first position.
func ParseLabels(raw string, allowed category.Set, clean bool) category.Classification {
	out := category.Classification{}
	seen := make(map[category.Category]bool)

	for _, token := range strings.Split(raw, ",") {
		label := category.Category(strings.ToUpper(strings.TrimSpace(token)))
		if label == "" {
			continue
		}
		if clean && !allowed.Permits(label) {
			continue
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}

	return out
}
