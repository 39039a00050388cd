// Package wikipedia implements the encyclopedia source adapter on top of the
// MediaWiki action API.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360studio/chemsource/source"
)

const (
	// DefaultBaseURL is the English Wikipedia host.
	DefaultBaseURL = "https://en.wikipedia.org"

	// DefaultUserAgent identifies the client as Wikimedia's API etiquette requires.
	DefaultUserAgent = "chemsource/0.1 (https://github.com/c360studio/chemsource)"

	// DefaultTimeout bounds a single page lookup.
	DefaultTimeout = 30 * time.Second

	// maxResponseSize limits the API response body to prevent memory exhaustion.
	maxResponseSize = 8 * 1024 * 1024
)

// Client fetches page text from Wikipedia.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	converter  *Converter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom MediaWiki host (e.g. another language edition).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Wikipedia client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		converter:  NewConverter(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Kind implements source.Client.
func (c *Client) Kind() source.Kind {
	return source.Encyclopedia
}

// queryResponse is the formatversion=2 shape of action=query.
type queryResponse struct {
	Query *struct {
		Pages []page `json:"pages"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

type page struct {
	PageID    int               `json:"pageid"`
	Title     string            `json:"title"`
	Missing   bool              `json:"missing"`
	Invalid   bool              `json:"invalid"`
	Extract   string            `json:"extract"`
	PageProps map[string]string `json:"pageprops"`
}

// Fetch implements source.Client. The title is looked up exactly as given;
// redirects are followed but no search suggestion is applied.
func (c *Client) Fetch(ctx context.Context, name string) source.Result {
	text, err := c.fetch(ctx, name)
	if err != nil {
		return source.Failed(source.Encyclopedia, err)
	}
	return source.Found(source.Encyclopedia, text)
}

func (c *Client) fetch(ctx context.Context, name string) (string, error) {
	// MediaWiki splits titles on "|", so such a name would query several pages.
	if strings.Contains(name, "|") {
		return "", source.NewRetrievalError(source.Encyclopedia, source.ErrKindNotFound,
			fmt.Errorf("title %q contains an illegal character", name))
	}

	body, err := c.get(ctx, name)
	if err != nil {
		return "", err
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", parseErr(fmt.Errorf("decode query response: %w", err))
	}
	if resp.Error != nil {
		return "", parseErr(fmt.Errorf("api error %s: %s", resp.Error.Code, resp.Error.Info))
	}
	if resp.Query == nil || len(resp.Query.Pages) == 0 {
		return "", parseErr(fmt.Errorf("response has no pages"))
	}
	if len(resp.Query.Pages) != 1 {
		return "", source.NewRetrievalError(source.Encyclopedia, source.ErrKindNotFound,
			fmt.Errorf("%q matched %d pages", name, len(resp.Query.Pages)))
	}

	p := resp.Query.Pages[0]
	if p.Missing || p.Invalid {
		return "", source.NewRetrievalError(source.Encyclopedia, source.ErrKindNotFound,
			fmt.Errorf("no page titled %q", name))
	}
	if _, ok := p.PageProps["disambiguation"]; ok {
		return "", source.NewRetrievalError(source.Encyclopedia, source.ErrKindDisambiguation,
			fmt.Errorf("%q is a disambiguation page", p.Title))
	}

	text, err := c.converter.Convert(p.Extract)
	if err != nil {
		return "", parseErr(fmt.Errorf("convert extract: %w", err))
	}
	if text == "" {
		return "", source.NewRetrievalError(source.Encyclopedia, source.ErrKindNotFound,
			fmt.Errorf("page %q has no extract", p.Title))
	}

	c.logger.Debug("Wikipedia page retrieved",
		"title", p.Title,
		"page_id", p.PageID,
		"chars", len(text))

	return text, nil
}

// get performs the action=query request and returns the raw body.
func (c *Client) get(ctx context.Context, name string) ([]byte, error) {
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"prop":          {"extracts|pageprops"},
		"ppprop":        {"disambiguation"},
		"redirects":     {"1"},
		"titles":        {name},
	}
	reqURL := c.baseURL + "/w/api.php?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, transportErr(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportErr(fmt.Errorf("fetch: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transportErr(fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportErr(fmt.Errorf("read body: %w", err))
	}
	return body, nil
}

func transportErr(err error) error {
	return source.NewRetrievalError(source.Encyclopedia, source.ErrKindTransport, err)
}

func parseErr(err error) error {
	return source.NewRetrievalError(source.Encyclopedia, source.ErrKindParse, err)
}
