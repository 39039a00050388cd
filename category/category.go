// Package category defines the closed vocabulary a compound can be classified into.
// A classification is an ordered list of these labels, or the INFO sentinel when the
// model asks for more context.
package category

import (
	"fmt"
	"strings"
)

// Category is a single classification label.
type Category string

const (
	// Medical covers drugs and compounds used in medical treatment.
	Medical Category = "MEDICAL"

	// Endogenous covers compounds synthesized by the human body.
	Endogenous Category = "ENDOGENOUS"

	// Food covers compounds present in natural food items.
	Food Category = "FOOD"

	// PersonalCare covers non-medicated skincare, beauty and fitness compounds.
	PersonalCare Category = "PERSONAL CARE"

	// Industrial covers compounds not used in the medical, personal care or food industries.
	Industrial Category = "INDUSTRIAL"

	// Info is the sentinel meaning "insufficient information to categorize".
	Info Category = "INFO"
)

// vocabulary lists the real categories in their canonical order.
var vocabulary = []Category{Medical, Endogenous, Food, PersonalCare, Industrial}

// Vocabulary returns the five classification categories, excluding INFO.
func Vocabulary() []Category {
	out := make([]Category, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// IsKnown reports whether c is part of the vocabulary or the INFO sentinel.
func (c Category) IsKnown() bool {
	switch c {
	case Medical, Endogenous, Food, PersonalCare, Industrial, Info:
		return true
	}
	return false
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// Parse normalizes s (trimmed, upper-cased) and returns the matching category.
// The boolean is false when s names nothing in the vocabulary.
func Parse(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if c.IsKnown() {
		return c, true
	}
	return "", false
}

// Set is an allowed-category filter over the vocabulary.
type Set map[Category]struct{}

// NewSet builds a Set from categories.
func NewSet(cats ...Category) Set {
	s := make(Set, len(cats))
	for _, c := range cats {
		s[c] = struct{}{}
	}
	return s
}

// DefaultSet returns a Set holding the full vocabulary.
func DefaultSet() Set {
	return NewSet(vocabulary...)
}

// ParseSet converts configured names into a Set. Unknown names are an error so a
// typo in configuration cannot silently drop every label.
func ParseSet(names []string) (Set, error) {
	s := make(Set, len(names))
	for _, name := range names {
		c, ok := Parse(name)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		s[c] = struct{}{}
	}
	return s, nil
}

// Contains reports whether c is in the set.
func (s Set) Contains(c Category) bool {
	_, ok := s[c]
	return ok
}

// Permits reports whether c passes the clean-output filter: members of the set and
// the INFO sentinel are always permitted.
func (s Set) Permits(c Category) bool {
	return c == Info || s.Contains(c)
}

// Classification is an ordered, deduplicated list of labels.
type Classification []Category

// Strings returns the labels as plain strings.
func (c Classification) Strings() []string {
	out := make([]string, len(c))
	for i, cat := range c {
		out[i] = string(cat)
	}
	return out
}

// NeedsInfo reports whether the model answered with the INFO sentinel.
func (c Classification) NeedsInfo() bool {
	for _, cat := range c {
		if cat == Info {
			return true
		}
	}
	return false
}

// Contains reports whether the classification includes cat.
func (c Classification) Contains(cat Category) bool {
	for _, got := range c {
		if got == cat {
			return true
		}
	}
	return false
}
