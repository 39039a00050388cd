// Package source provides the contract shared by knowledge-source adapters and the
// per-attempt result type the retriever switches on.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a knowledge source.
type Kind string

const (
	// Encyclopedia is a general-knowledge text provider (Wikipedia).
	Encyclopedia Kind = "ENCYCLOPEDIA"

	// Literature is a biomedical citation database (PubMed).
	Literature Kind = "LITERATURE"

	// None means no source contributed text.
	None Kind = "NONE"
)

// Display tags used in info_source labels.
const (
	TagWikipedia = "WIKIPEDIA"
	TagPubMed    = "PUBMED"
	TagNone      = "NONE"
)

// Tag returns the label this kind contributes to an info_source string.
func (k Kind) Tag() string {
	switch k {
	case Encyclopedia:
		return TagWikipedia
	case Literature:
		return TagPubMed
	}
	return TagNone
}

// IsValid reports whether k names a retrievable source.
func (k Kind) IsValid() bool {
	return k == Encyclopedia || k == Literature
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// ParseKind accepts either the kind name or its display tag, case-insensitively.
// Returns an empty Kind for anything else.
func ParseKind(s string) Kind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Encyclopedia), TagWikipedia:
		return Encyclopedia
	case string(Literature), TagPubMed:
		return Literature
	case string(None):
		return None
	}
	return ""
}

// Status discriminates the outcome of a single retrieval attempt.
type Status int

const (
	// StatusFound means the source returned non-empty text.
	StatusFound Status = iota

	// StatusEmpty means the source was reached but had nothing for the name.
	StatusEmpty

	// StatusTransportError means the source could not be reached.
	StatusTransportError

	// StatusParseError means the source answered with an unexpected body.
	StatusParseError
)

// String returns a lowercase name suitable for logs and metric labels.
func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusEmpty:
		return "empty"
	case StatusTransportError:
		return "transport_error"
	case StatusParseError:
		return "parse_error"
	}
	return "unknown"
}

// Result is the outcome of one Client.Fetch call.
// Text is non-empty if and only if Status is StatusFound.
type Result struct {
	// Source is the kind of client that produced this result.
	Source Kind

	// Status discriminates the outcome.
	Status Status

	// Text is the retrieved, whitespace-normalized text.
	Text string

	// Err carries the cause for non-found outcomes, when there is one.
	// A literature search with zero matches is StatusEmpty with a nil Err.
	Err error
}

// Found builds a successful result. Blank text degrades to an empty result.
func Found(kind Kind, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Empty(kind, nil)
	}
	return Result{Source: kind, Status: StatusFound, Text: text}
}

// Empty builds a "nothing for this name" result with an optional cause.
func Empty(kind Kind, cause error) Result {
	return Result{Source: kind, Status: StatusEmpty, Err: cause}
}

// Failed builds a failure result, deriving the status from the error kind.
// Errors that are not RetrievalErrors are treated as transport failures.
func Failed(kind Kind, err error) Result {
	status := StatusTransportError
	var rerr *RetrievalError
	if errors.As(err, &rerr) {
		switch {
		case rerr.Kind.IsParse():
			status = StatusParseError
		case rerr.Kind.IsEmpty():
			status = StatusEmpty
		}
	}
	return Result{Source: kind, Status: status, Err: err}
}

// OK reports whether the result carries text.
func (r Result) OK() bool {
	return r.Status == StatusFound
}

// String summarizes the result for logs.
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", r.Source.Tag(), r.Status, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Source.Tag(), r.Status)
}

// Client performs a single retrieval attempt against one knowledge source.
type Client interface {
	// Kind returns which source this client reaches.
	Kind() Kind

	// Fetch retrieves descriptive text for name. It never panics on upstream
	// failures; every outcome is expressed in the returned Result.
	Fetch(ctx context.Context, name string) Result
}
