package pubmed

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/c360studio/chemsource/source"
)

// SearchHits is the useful part of an esearch response.
type SearchHits struct {
	// Count is the total number of matching records.
	Count int

	// QueryKey and WebEnv identify the history-server session for efetch.
	QueryKey string
	WebEnv   string

	// IDs are the PMIDs of the returned records.
	IDs []string
}

type eSearchResult struct {
	XMLName  xml.Name `xml:"eSearchResult"`
	Count    *string  `xml:"Count"`
	QueryKey string   `xml:"QueryKey"`
	WebEnv   string   `xml:"WebEnv"`
	IDs      []string `xml:"IdList>Id"`
	Error    string   `xml:"ERROR"`
}

type pubmedArticleSet struct {
	XMLName  xml.Name `xml:"PubmedArticleSet"`
	Articles []struct {
		Abstracts []abstractText `xml:"MedlineCitation>Article>Abstract>AbstractText"`
	} `xml:"PubmedArticle"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	Inner string `xml:",innerxml"`
}

// parseSearch decodes an esearch body. A zero count is a valid result; the WebEnv
// token is only required when there is something to fetch.
func parseSearch(body []byte) (*SearchHits, error) {
	var res eSearchResult
	if err := xml.Unmarshal(body, &res); err != nil {
		return nil, searchErr(source.ErrKindSearchUnparsable, fmt.Errorf("decode esearch: %w", err))
	}

	if res.Count == nil {
		if res.Error != "" {
			return nil, searchErr(source.ErrKindSearchFieldMissing, fmt.Errorf("esearch error: %s", res.Error))
		}
		return nil, searchErr(source.ErrKindSearchFieldMissing, fmt.Errorf("esearch response has no Count"))
	}

	count, err := strconv.Atoi(strings.TrimSpace(*res.Count))
	if err != nil {
		return nil, searchErr(source.ErrKindSearchFieldMissing, fmt.Errorf("esearch Count %q: %w", *res.Count, err))
	}

	hits := &SearchHits{
		Count:    count,
		QueryKey: strings.TrimSpace(res.QueryKey),
		WebEnv:   strings.TrimSpace(res.WebEnv),
		IDs:      res.IDs,
	}
	if count > 0 && hits.WebEnv == "" {
		return nil, searchErr(source.ErrKindSearchFieldMissing, fmt.Errorf("esearch response has no WebEnv"))
	}
	return hits, nil
}

// parseAbstracts decodes an efetch body into flattened abstract fragments, in
// document order. Blank fragments are kept so the join step can reject them.
func parseAbstracts(body []byte) ([]string, error) {
	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fetchErr(source.ErrKindFetchUnparsable, fmt.Errorf("decode efetch: %w", err))
	}

	var fragments []string
	for _, article := range set.Articles {
		for _, abs := range article.Abstracts {
			fragments = append(fragments, flattenMarkup(abs.Inner))
		}
	}

	if len(fragments) == 0 {
		return nil, fetchErr(source.ErrKindFetchFieldMissing, fmt.Errorf("efetch response has no AbstractText"))
	}
	return fragments, nil
}

// joinFragments concatenates fragments with single spaces. A fragment with no
// text fails the whole join.
func joinFragments(fragments []string) (string, error) {
	parts := make([]string, 0, len(fragments))
	for i, f := range fragments {
		f = source.NormalizeWhitespace(f)
		if f == "" {
			return "", source.NewRetrievalError(source.Literature, source.ErrKindJoin,
				fmt.Errorf("abstract fragment %d has no text", i))
		}
		parts = append(parts, f)
	}
	return strings.Join(parts, " "), nil
}

// flattenMarkup returns the text content of an AbstractText body, dropping inline
// tags like <i> and <sup> and decoding entities.
func flattenMarkup(inner string) string {
	if !strings.ContainsAny(inner, "<&") {
		return inner
	}

	doc, err := html.Parse(strings.NewReader(inner))
	if err != nil {
		return inner
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return sb.String()
}

func searchErr(kind source.ErrorKind, err error) error {
	return source.NewRetrievalError(source.Literature, kind, err)
}

func fetchErr(kind source.ErrorKind, err error) error {
	return source.NewRetrievalError(source.Literature, kind, err)
}
