// Package prompt renders the classification prompt from a template, a compound
// name and retrieved text.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/chemsource/config"
	"github.com/c360studio/chemsource/source"
)

// Placeholder is replaced by the compound name.
const Placeholder = "COMPOUND_NAME"

// NoInformationMarker stands in for retrieved text when no source contributed any.
const NoInformationMarker = "No information available."

// DefaultTemplate is the built-in classification prompt. The retrieved text is
// appended after its trailing "Provided Information:" line.
const DefaultTemplate = "Classify this compound, COMPOUND_NAME, as any combination of the following: " +
	"MEDICAL, ENDOGENOUS, FOOD, PERSONAL CARE, INDUSTRIAL. " +
	"Note that ENDOGENOUS refers to compounds that are human synthesized. " +
	"ENDOGENOUS excludes essential nutrients that cannot be synthesized by human body. " +
	"Note that FOOD refers to compounds present in natural food items. " +
	"Note that INDUSTRIAL should be used only for compounds not used as a contributing ingredient " +
	"in the medical, personal care, or food industries. " +
	"Note that PERSONAL CARE refers to non-medicated compounds typically used for activities " +
	"such as skincare, beauty, and fitness. " +
	"Specify INFO instead if more information is needed. " +
	"DO NOT MAKE ANY ASSUMPTIONS, USE ONLY THE INFORMATION PROVIDED. " +
	"Provide the output as a plain text separated by commas, and provide only the categories listed " +
	"(either list a combination of INDUSTRIAL, ENDOGENOUS, PERSONAL CARE, MEDICAL, FOOD or list INFO), " +
	"with no justification. Provided Information:\n"

// Plan is a rendered prompt.
type Plan struct {
	// Text is at most maxLength characters long.
	Text string

	// Truncated reports whether Text was cut to fit.
	Truncated bool
}

// TemplateError reports a template without exactly one placeholder.
type TemplateError struct {
	Occurrences int
}

func (e *TemplateError) Error() string {
	if e.Occurrences == 0 {
		return fmt.Sprintf("prompt template is missing the %s placeholder", Placeholder)
	}
	return fmt.Sprintf("prompt template has %d %s placeholders, want exactly one", e.Occurrences, Placeholder)
}

func (e *TemplateError) Unwrap() error {
	return config.ErrConfiguration
}

// ValidateTemplate checks that template contains the placeholder exactly once.
func ValidateTemplate(template string) error {
	if n := strings.Count(template, Placeholder); n != 1 {
		return &TemplateError{Occurrences: n}
	}
	return nil
}

// Resolve returns template, or DefaultTemplate when template is empty.
func Resolve(template string) string {
	if template == "" {
		return DefaultTemplate
	}
	return template
}

// Build substitutes name for the placeholder, appends the retrieved information
// and cuts the result to maxLength characters. When infoSource is NONE or text is
// blank, NoInformationMarker is appended instead.
func Build(name, infoSource, text, template string, maxLength int) (Plan, error) {
	if maxLength <= 0 {
		return Plan{}, fmt.Errorf("%w: prompt max length must be positive, got %d", config.ErrConfiguration, maxLength)
	}
	if err := ValidateTemplate(template); err != nil {
		return Plan{}, err
	}

	info := text
	if infoSource == "" || infoSource == source.TagNone || strings.TrimSpace(text) == "" {
		info = NoInformationMarker
	}

	i := strings.Index(template, Placeholder)

	var sb strings.Builder
	sb.Grow(len(template) + len(name) + len(info))
	sb.WriteString(template[:i])
	sb.WriteString(name)
	sb.WriteString(template[i+len(Placeholder):])
	sb.WriteString(info)

	rendered, truncated := truncate(sb.String(), maxLength)
	return Plan{Text: rendered, Truncated: truncated}, nil
}

// truncate cuts s to at most n runes without splitting a multi-byte character.
func truncate(s string, n int) (string, bool) {
	if len(s) <= n || utf8.RuneCountInString(s) <= n {
		return s, false
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
