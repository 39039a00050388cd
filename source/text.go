package source

import "strings"

// NormalizeWhitespace collapses newlines, tabs and runs of spaces into single spaces
// and trims the ends, so prompt length accounting is stable across sources.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
