package prompt

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/chemsource/config"
)

func TestBuild_Substitution(t *testing.T) {
	plan, err := Build("caffeine", "WIKIPEDIA", "Caffeine is a stimulant.",
		"Classify COMPOUND_NAME now. Info:\n", 1000)

	require.NoError(t, err)
	assert.Equal(t, "Classify caffeine now. Info:\nCaffeine is a stimulant.", plan.Text)
	assert.False(t, plan.Truncated)
}

func TestBuild_PlaceholderAtEdges(t *testing.T) {
	plan, err := Build("water", "PUBMED", "H2O.", "COMPOUND_NAME", 100)
	require.NoError(t, err)
	assert.Equal(t, "waterH2O.", plan.Text)
}

func TestBuild_NoInformation(t *testing.T) {
	tests := []struct {
		name       string
		infoSource string
		text       string
	}{
		{"NONE source", "NONE", ""},
		{"empty source", "", ""},
		{"blank text", "WIKIPEDIA", "   "},
		{"NONE with stray text", "NONE", "leftover"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Build("xyz", tt.infoSource, tt.text, "About COMPOUND_NAME: ", 1000)
			require.NoError(t, err)
			assert.Equal(t, "About xyz: "+NoInformationMarker, plan.Text)
		})
	}
}

func TestBuild_Truncation(t *testing.T) {
	long := strings.Repeat("a", 500)
	plan, err := Build("caffeine", "WIKIPEDIA", long, DefaultTemplate, 100)

	require.NoError(t, err)
	assert.True(t, plan.Truncated)
	assert.Equal(t, 100, utf8.RuneCountInString(plan.Text))
	assert.True(t, strings.HasPrefix(plan.Text, "Classify this compound, caffeine, as"))
}

func TestBuild_TruncationKeepsRunesWhole(t *testing.T) {
	plan, err := Build("β-carotene", "WIKIPEDIA", "βββββ", "COMPOUND_NAME:", 13)

	require.NoError(t, err)
	assert.True(t, plan.Truncated)
	assert.True(t, utf8.ValidString(plan.Text))
	assert.Equal(t, "β-carotene:ββ", plan.Text)
}

func TestBuild_ExactFitNotTruncated(t *testing.T) {
	plan, err := Build("ab", "WIKIPEDIA", "cd", "COMPOUND_NAME", 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", plan.Text)
	assert.False(t, plan.Truncated)
}

func TestBuild_TemplateErrors(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     int
	}{
		{"missing placeholder", "Classify this compound.", 0},
		{"duplicate placeholder", "COMPOUND_NAME and COMPOUND_NAME", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build("caffeine", "WIKIPEDIA", "text", tt.template, 1000)

			var terr *TemplateError
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, tt.want, terr.Occurrences)
			assert.ErrorIs(t, err, config.ErrConfiguration)
		})
	}
}

func TestBuild_NonPositiveMaxLength(t *testing.T) {
	_, err := Build("caffeine", "WIKIPEDIA", "text", DefaultTemplate, 0)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestDefaultTemplate(t *testing.T) {
	require.NoError(t, ValidateTemplate(DefaultTemplate))
	assert.True(t, strings.HasSuffix(DefaultTemplate, "Provided Information:\n"))
	for _, label := range []string{"MEDICAL", "ENDOGENOUS", "FOOD", "PERSONAL CARE", "INDUSTRIAL", "INFO"} {
		assert.Contains(t, DefaultTemplate, label)
	}
	assert.Equal(t, DefaultTemplate, Resolve(""))
	assert.Equal(t, "x COMPOUND_NAME", Resolve("x COMPOUND_NAME"))
}
