package source

import (
	"errors"
	"fmt"
)

// ErrorKind classifies which step of a retrieval failed.
type ErrorKind string

const (
	// ErrKindTransport covers network, DNS, timeout and non-200 responses.
	ErrKindTransport ErrorKind = "transport"

	// ErrKindNotFound means the encyclopedia has no page for the name.
	ErrKindNotFound ErrorKind = "not_found"

	// ErrKindDisambiguation means the name resolves to a disambiguation page.
	ErrKindDisambiguation ErrorKind = "disambiguation"

	// ErrKindParse covers a malformed response body from a single-step source.
	ErrKindParse ErrorKind = "parse"

	// ErrKindSearchUnparsable means the literature search response was not valid XML.
	ErrKindSearchUnparsable ErrorKind = "search_unparsable"

	// ErrKindSearchFieldMissing means a required search result field was absent.
	ErrKindSearchFieldMissing ErrorKind = "search_field_missing"

	// ErrKindFetchUnparsable means the abstract fetch response was not valid XML.
	ErrKindFetchUnparsable ErrorKind = "fetch_unparsable"

	// ErrKindFetchFieldMissing means the abstract fetch response had no abstracts.
	ErrKindFetchFieldMissing ErrorKind = "fetch_field_missing"

	// ErrKindJoin means an abstract fragment had no text to concatenate.
	ErrKindJoin ErrorKind = "join"
)

// IsParse reports whether the kind describes an unexpected response body.
func (k ErrorKind) IsParse() bool {
	switch k {
	case ErrKindParse, ErrKindSearchUnparsable, ErrKindSearchFieldMissing,
		ErrKindFetchUnparsable, ErrKindFetchFieldMissing, ErrKindJoin:
		return true
	}
	return false
}

// IsEmpty reports whether the kind means "reached, but nothing usable for this name".
func (k ErrorKind) IsEmpty() bool {
	return k == ErrKindNotFound || k == ErrKindDisambiguation
}

// RetrievalError is a typed failure from a source adapter.
type RetrievalError struct {
	Source Kind
	Kind   ErrorKind
	err    error
}

// NewRetrievalError wraps err with the source and failing step.
func NewRetrievalError(source Kind, kind ErrorKind, err error) error {
	return &RetrievalError{Source: source, Kind: kind, err: err}
}

func (e *RetrievalError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s retrieval: %s", e.Source.Tag(), e.Kind)
	}
	return fmt.Sprintf("%s retrieval: %s: %v", e.Source.Tag(), e.Kind, e.err)
}

func (e *RetrievalError) Unwrap() error {
	return e.err
}

// ErrorKindOf returns the ErrorKind of err, or "" if err is not a RetrievalError.
func ErrorKindOf(err error) ErrorKind {
	var rerr *RetrievalError
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}
