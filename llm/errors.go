package llm

import (
	"errors"
)

// Error types for classifying completion transport errors. Every error returned
// by Client.Complete is one of the two.

// TransientError represents a temporary error that may succeed on retry:
// network failures, rate limiting, 5xx responses.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried:
// bad credentials, malformed requests, unparsable responses.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ErrorClass returns "transient", "fatal" or "unknown" for use as a log or
// metric label.
func ErrorClass(err error) string {
	switch {
	case IsTransient(err):
		return "transient"
	case IsFatal(err):
		return "fatal"
	}
	return "unknown"
}
