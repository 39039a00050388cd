package wikipedia

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/c360studio/chemsource/source"
)

// droppedTags are elements whose content never belongs in prompt text.
var droppedTags = map[string]bool{
	"style":  true,
	"script": true,
	"table":  true,
	"math":   true,
}

// inlineTags render as their text content with no markup.
var inlineTags = []string{
	"a", "abbr", "b", "cite", "code", "em", "i", "kbd", "q", "s",
	"samp", "small", "span", "strong", "sub", "sup", "u", "var",
}

// blockTags render as their text content on its own paragraph.
var blockTags = []string{
	"h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre", "dd", "dt",
}

// Converter turns a TextExtracts HTML fragment into flat, whitespace-normalized text.
// The markdown renderer is only used for block layout: escaping is off and every
// element that would produce markup renders as plain text instead.
type Converter struct {
	converter *md.Converter
}

// NewConverter creates a Converter.
func NewConverter() *Converter {
	conv := md.NewConverter("", true, &md.Options{EscapeMode: "disabled"})
	conv.AddRules(plainTextRules()...)
	return &Converter{converter: conv}
}

func plainTextRules() []md.Rule {
	return []md.Rule{
		{
			Filter: inlineTags,
			Replacement: func(content string, _ *goquery.Selection, _ *md.Options) *string {
				return md.String(content)
			},
		},
		{
			Filter: blockTags,
			Replacement: func(content string, _ *goquery.Selection, _ *md.Options) *string {
				return md.String("\n\n" + strings.TrimSpace(content) + "\n\n")
			},
		},
		{
			Filter: []string{"li"},
			Replacement: func(content string, _ *goquery.Selection, _ *md.Options) *string {
				return md.String(strings.TrimSpace(content) + "\n")
			},
		},
		{
			Filter: []string{"br"},
			Replacement: func(string, *goquery.Selection, *md.Options) *string {
				return md.String("\n")
			},
		},
		{
			Filter: []string{"hr", "img"},
			Replacement: func(string, *goquery.Selection, *md.Options) *string {
				return md.String("\n\n")
			},
		},
	}
}

// Convert strips non-prose elements, lays the remainder out as paragraphs of
// plain text and collapses whitespace.
func (c *Converter) Convert(fragment string) (string, error) {
	if strings.TrimSpace(fragment) == "" {
		return "", nil
	}

	text, err := c.converter.ConvertString(stripNonProse(fragment))
	if err != nil {
		return "", err
	}
	return source.NormalizeWhitespace(text), nil
}

// stripNonProse removes dropped tags and citation superscripts. When the fragment
// cannot be parsed it is returned unchanged.
func stripNonProse(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	var toRemove []*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && (droppedTags[n.Data] || isReference(n)) {
			toRemove = append(toRemove, n)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(doc)

	for _, n := range toRemove {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return fragment
	}
	return sb.String()
}

// isReference reports whether n is a citation marker like <sup class="reference">.
func isReference(n *html.Node) bool {
	if n.Data != "sup" {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, class := range strings.Fields(a.Val) {
				if class == "reference" || class == "noprint" {
					return true
				}
			}
		}
	}
	return false
}
