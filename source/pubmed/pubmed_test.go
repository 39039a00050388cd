package pubmed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/chemsource/source"
)

const searchOK = `<?xml version="1.0" encoding="UTF-8" ?>
<!DOCTYPE eSearchResult PUBLIC "-//NLM//DTD esearch 20060628//EN" "https://eutils.ncbi.nlm.nih.gov/eutils/dtd/20060628/esearch.dtd">
<eSearchResult>
  <Count>2</Count><RetMax>2</RetMax><RetStart>0</RetStart>
  <QueryKey>1</QueryKey>
  <WebEnv>MCID_abc123</WebEnv>
  <IdList><Id>111</Id><Id>222</Id></IdList>
  <TranslationStack><TermSet><Term>caffeine[title]</Term><Field>title</Field><Count>9999</Count></TermSet></TranslationStack>
</eSearchResult>`

const searchZero = `<eSearchResult><Count>0</Count><RetMax>0</RetMax><RetStart>0</RetStart><IdList/></eSearchResult>`

const fetchOK = `<?xml version="1.0" ?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation><Article><Abstract>
      <AbstractText Label="BACKGROUND">Caffeine is a
        methylxanthine.</AbstractText>
      <AbstractText Label="RESULTS">Doses &lt;5 mg/kg of <i>caffeine</i> improved alertness.</AbstractText>
    </Abstract></Article></MedlineCitation>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation><Article><Abstract>
      <AbstractText>Coffee contains caffeine.</AbstractText>
    </Abstract></Article></MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

// eutilsServer serves canned esearch and efetch bodies and records query strings.
type eutilsServer struct {
	*httptest.Server

	mu      sync.Mutex
	queries map[string][]url.Values
}

func newEutilsServer(t *testing.T, search, fetch string, searchStatus int) *eutilsServer {
	t.Helper()
	s := &eutilsServer{queries: make(map[string][]url.Values)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.queries[r.URL.Path] = append(s.queries[r.URL.Path], r.URL.Query())
		s.mu.Unlock()

		switch r.URL.Path {
		case "/esearch.fcgi":
			w.WriteHeader(searchStatus)
			w.Write([]byte(search))
		case "/efetch.fcgi":
			w.Write([]byte(fetch))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *eutilsServer) calls(path string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[path]
}

func testClient(server *eutilsServer, opts ...Option) *Client {
	base := []Option{WithBaseURL(server.URL), WithRateLimit(1000)}
	return NewClient(append(base, opts...)...)
}

func TestClient_Fetch_Success(t *testing.T) {
	server := newEutilsServer(t, searchOK, fetchOK, http.StatusOK)
	client := testClient(server)

	result := client.Fetch(context.Background(), "caffeine")

	require.True(t, result.OK(), "unexpected result: %s", result)
	assert.Equal(t, source.Literature, result.Source)
	assert.Equal(t,
		"Caffeine is a methylxanthine. Doses <5 mg/kg of caffeine improved alertness. Coffee contains caffeine.",
		result.Text)

	search := server.calls("/esearch.fcgi")
	require.Len(t, search, 1)
	assert.Equal(t, "pubmed", search[0].Get("db"))
	assert.Equal(t, "caffeine[title]", search[0].Get("term"))
	assert.Equal(t, "3", search[0].Get("retmax"))
	assert.Equal(t, "relevance", search[0].Get("sort"))
	assert.Equal(t, "y", search[0].Get("usehistory"))

	fetch := server.calls("/efetch.fcgi")
	require.Len(t, fetch, 1)
	assert.Equal(t, "MCID_abc123", fetch[0].Get("WebEnv"))
	assert.Equal(t, "1", fetch[0].Get("query_key"))
	assert.Equal(t, "abstract", fetch[0].Get("rettype"))
	assert.Equal(t, "xml", fetch[0].Get("retmode"))
}

func TestClient_APIKeyParameter(t *testing.T) {
	t.Run("omitted when unset", func(t *testing.T) {
		server := newEutilsServer(t, searchOK, fetchOK, http.StatusOK)
		testClient(server).Fetch(context.Background(), "caffeine")

		for _, path := range []string{"/esearch.fcgi", "/efetch.fcgi"} {
			for _, q := range server.calls(path) {
				_, present := q["api_key"]
				assert.False(t, present, "%s carried api_key", path)
			}
		}
	})

	t.Run("sent when set", func(t *testing.T) {
		server := newEutilsServer(t, searchOK, fetchOK, http.StatusOK)
		testClient(server, WithAPIKey("ncbi-key")).Fetch(context.Background(), "caffeine")

		for _, path := range []string{"/esearch.fcgi", "/efetch.fcgi"} {
			calls := server.calls(path)
			require.NotEmpty(t, calls)
			assert.Equal(t, "ncbi-key", calls[0].Get("api_key"))
		}
	})
}

func TestClient_Fetch_NoResults(t *testing.T) {
	server := newEutilsServer(t, searchZero, fetchOK, http.StatusOK)
	client := testClient(server)

	result := client.Fetch(context.Background(), "notacompound")

	assert.Equal(t, source.StatusEmpty, result.Status)
	assert.Empty(t, result.Text)
	assert.NoError(t, result.Err)
	assert.Empty(t, server.calls("/efetch.fcgi"), "efetch must not run after an empty search")
}

func TestClient_Fetch_Failures(t *testing.T) {
	tests := []struct {
		name         string
		search       string
		fetch        string
		searchStatus int
		wantStatus   source.Status
		wantKind     source.ErrorKind
	}{
		{
			name:         "search unparsable",
			search:       "<html><body>Bad Gateway",
			searchStatus: http.StatusOK,
			wantStatus:   source.StatusParseError,
			wantKind:     source.ErrKindSearchUnparsable,
		},
		{
			name:         "search error document",
			search:       `<eSearchResult><ERROR>API key invalid</ERROR></eSearchResult>`,
			searchStatus: http.StatusOK,
			wantStatus:   source.StatusParseError,
			wantKind:     source.ErrKindSearchFieldMissing,
		},
		{
			name:         "search without WebEnv",
			search:       `<eSearchResult><Count>4</Count><QueryKey>1</QueryKey></eSearchResult>`,
			searchStatus: http.StatusOK,
			wantStatus:   source.StatusParseError,
			wantKind:     source.ErrKindSearchFieldMissing,
		},
		{
			name:         "fetch unparsable",
			search:       searchOK,
			fetch:        "<PubmedArticleSet><PubmedArticle>",
			searchStatus: http.StatusOK,
			wantStatus:   source.StatusParseError,
			wantKind:     source.ErrKindFetchUnparsable,
		},
		{
			name:         "fetch without abstracts",
			search:       searchOK,
			fetch:        `<PubmedArticleSet><PubmedArticle><MedlineCitation><Article></Article></MedlineCitation></PubmedArticle></PubmedArticleSet>`,
			searchStatus: http.StatusOK,
			wantStatus:   source.StatusParseError,
			wantKind:     source.ErrKindFetchFieldMissing,
		},
		{
			name:         "blank abstract fragment",
			search:       searchOK,
			fetch:        `<PubmedArticleSet><PubmedArticle><MedlineCitation><Article><Abstract><AbstractText>ok</AbstractText><AbstractText>  </AbstractText></Abstract></Article></MedlineCitation></PubmedArticle></PubmedArticleSet>`,
			searchStatus: http.StatusOK,
			wantStatus:   source.StatusParseError,
			wantKind:     source.ErrKindJoin,
		},
		{
			name:         "search HTTP failure",
			search:       "busy",
			searchStatus: http.StatusTooManyRequests,
			wantStatus:   source.StatusTransportError,
			wantKind:     source.ErrKindTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newEutilsServer(t, tt.search, tt.fetch, tt.searchStatus)
			client := testClient(server)

			result := client.Fetch(context.Background(), "caffeine")

			assert.False(t, result.OK())
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Empty(t, result.Text)
			require.Error(t, result.Err)
			assert.Equal(t, tt.wantKind, source.ErrorKindOf(result.Err))
		})
	}
}

func TestClient_Fetch_CancelledContext(t *testing.T) {
	server := newEutilsServer(t, searchOK, fetchOK, http.StatusOK)
	client := testClient(server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := client.Fetch(ctx, "caffeine")
	assert.Equal(t, source.StatusTransportError, result.Status)
	assert.Empty(t, server.calls("/esearch.fcgi"))
}

func TestFlattenMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"H<sub>2</sub>O", "H2O"},
		{"&gt;90% of <b>subjects</b>", ">90% of subjects"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, flattenMarkup(tt.in))
		})
	}
}

func TestNewClient_RateLimitFromKey(t *testing.T) {
	assert.InDelta(t, anonymousRateLimit, float64(NewClient().limiter.Limit()), 0.001)
	assert.InDelta(t, keyedRateLimit, float64(NewClient(WithAPIKey("k")).limiter.Limit()), 0.001)
	assert.InDelta(t, 1.5, float64(NewClient(WithAPIKey("k"), WithRateLimit(1.5)).limiter.Limit()), 0.001)
}
