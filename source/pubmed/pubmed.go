// Package pubmed implements the literature source adapter on top of the NCBI
// E-utilities esearch and efetch endpoints.
package pubmed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360studio/chemsource/source"
)

const (
	// DefaultBaseURL is the E-utilities root.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultMaxResults is how many records are searched and fetched.
	DefaultMaxResults = 3

	// DefaultTimeout bounds a single E-utilities request.
	DefaultTimeout = 30 * time.Second

	// NCBI allows 3 requests per second without an API key and 10 with one.
	anonymousRateLimit = 3
	keyedRateLimit     = 10

	// maxResponseSize limits E-utilities response bodies.
	maxResponseSize = 16 * 1024 * 1024
)

// Client searches PubMed by title and returns concatenated abstracts.
type Client struct {
	baseURL    string
	apiKey     string
	maxResults int
	rateLimit  float64
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the NCBI API key. An empty key means the api_key parameter is
// omitted from every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBaseURL sets a custom E-utilities root.
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

// WithMaxResults sets retmax for both the search and fetch steps.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithRateLimit overrides the requests-per-second budget derived from the API key.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.rateLimit = requestsPerSecond
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

// NewClient creates a PubMed client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		maxResults: DefaultMaxResults,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	limit := c.rateLimit
	if limit == 0 {
		limit = anonymousRateLimit
		if c.apiKey != "" {
			limit = keyedRateLimit
		}
	}
	c.limiter = rate.NewLimiter(rate.Limit(limit), 1)

	return c
}

// Kind implements source.Client.
func (c *Client) Kind() source.Kind {
	return source.Literature
}

// Fetch implements source.Client. A search with zero matches yields an empty
// result with no error; every other failure carries a RetrievalError naming the step.
func (c *Client) Fetch(ctx context.Context, name string) source.Result {
	hits, err := c.Search(ctx, name)
	if err != nil {
		return source.Failed(source.Literature, err)
	}
	if hits.Count == 0 {
		c.logger.Debug("PubMed search returned no results", "name", name)
		return source.Empty(source.Literature, nil)
	}

	text, err := c.FetchAbstracts(ctx, hits)
	if err != nil {
		return source.Failed(source.Literature, err)
	}
	return source.Found(source.Literature, text)
}

// Search runs esearch for name in article titles.
func (c *Client) Search(ctx context.Context, name string) (*SearchHits, error) {
	params := c.params(url.Values{
		"db":         {"pubmed"},
		"term":       {name + "[title]"},
		"retmax":     {strconv.Itoa(c.maxResults)},
		"sort":       {"relevance"},
		"usehistory": {"y"},
	})

	body, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, err
	}
	return parseSearch(body)
}

// FetchAbstracts runs efetch against the search session and joins every abstract
// fragment with single spaces, in result order.
func (c *Client) FetchAbstracts(ctx context.Context, hits *SearchHits) (string, error) {
	queryKey := hits.QueryKey
	if queryKey == "" {
		queryKey = "1"
	}

	params := c.params(url.Values{
		"db":        {"pubmed"},
		"query_key": {queryKey},
		"WebEnv":    {hits.WebEnv},
		"rettype":   {"abstract"},
		"retmode":   {"xml"},
		"retmax":    {strconv.Itoa(c.maxResults)},
	})

	body, err := c.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return "", err
	}

	fragments, err := parseAbstracts(body)
	if err != nil {
		return "", err
	}

	c.logger.Debug("PubMed abstracts retrieved",
		"records", len(hits.IDs),
		"fragments", len(fragments))

	return joinFragments(fragments)
}

// params adds the API key when one is configured. The upstream service treats an
// empty api_key differently from an absent one, so it is never sent blank.
func (c *Client) params(v url.Values) url.Values {
	if c.apiKey != "" {
		v.Set("api_key", c.apiKey)
	}
	return v
}

// get waits for the rate limiter and performs one E-utilities GET.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportErr(fmt.Errorf("rate limiter: %w", err))
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, transportErr(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportErr(fmt.Errorf("%s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, transportErr(fmt.Errorf("%s: HTTP %d: %s", endpoint, resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportErr(fmt.Errorf("%s: read body: %w", endpoint, err))
	}
	return body, nil
}

func transportErr(err error) error {
	return source.NewRetrievalError(source.Literature, source.ErrKindTransport, err)
}
