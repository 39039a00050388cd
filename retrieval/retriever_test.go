package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/chemsource/config"
	"github.com/c360studio/chemsource/source"
)

// fakeClient returns a canned result and counts calls.
type fakeClient struct {
	kind   source.Kind
	result source.Result

	mu    sync.Mutex
	calls []string
}

func (f *fakeClient) Kind() source.Kind { return f.kind }

func (f *fakeClient) Fetch(_ context.Context, name string) source.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.result
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func found(kind source.Kind, text string) *fakeClient {
	return &fakeClient{kind: kind, result: source.Found(kind, text)}
}

func failing(kind source.Kind, errKind source.ErrorKind) *fakeClient {
	return &fakeClient{kind: kind, result: source.Failed(kind,
		source.NewRetrievalError(kind, errKind, errors.New("boom")))}
}

func empty(kind source.Kind) *fakeClient {
	return &fakeClient{kind: kind, result: source.Empty(kind, nil)}
}

type recordingObserver struct {
	results []source.Result
}

func (o *recordingObserver) ObserveAttempt(r source.Result) {
	o.results = append(o.results, r)
}

func TestRetrieve(t *testing.T) {
	tests := []struct {
		name         string
		wiki         *fakeClient
		pubmed       *fakeClient
		priority     source.Kind
		single       bool
		wantSource   string
		wantText     string
		wantWikiHits int
		wantPubHits  int
	}{
		{
			name:         "multi source both found, encyclopedia first",
			wiki:         found(source.Encyclopedia, "Wiki text."),
			pubmed:       found(source.Literature, "Abstract text."),
			priority:     source.Encyclopedia,
			wantSource:   "WIKIPEDIA+PUBMED",
			wantText:     "Wiki text. Abstract text.",
			wantWikiHits: 1,
			wantPubHits:  1,
		},
		{
			name:         "multi source both found, literature first",
			wiki:         found(source.Encyclopedia, "Wiki text."),
			pubmed:       found(source.Literature, "Abstract text."),
			priority:     source.Literature,
			wantSource:   "PUBMED+WIKIPEDIA",
			wantText:     "Abstract text. Wiki text.",
			wantWikiHits: 1,
			wantPubHits:  1,
		},
		{
			name:         "multi source calls second even when first fails",
			wiki:         failing(source.Encyclopedia, source.ErrKindTransport),
			pubmed:       found(source.Literature, "Abstract text."),
			priority:     source.Encyclopedia,
			wantSource:   "PUBMED",
			wantText:     "Abstract text.",
			wantWikiHits: 1,
			wantPubHits:  1,
		},
		{
			name:         "single source literature never calls encyclopedia",
			wiki:         found(source.Encyclopedia, "Wiki text."),
			pubmed:       found(source.Literature, "Abstract text."),
			priority:     source.Literature,
			single:       true,
			wantSource:   "PUBMED",
			wantText:     "Abstract text.",
			wantWikiHits: 0,
			wantPubHits:  1,
		},
		{
			name:         "single source failure does not fall through",
			wiki:         failing(source.Encyclopedia, source.ErrKindDisambiguation),
			pubmed:       found(source.Literature, "Abstract text."),
			priority:     source.Encyclopedia,
			single:       true,
			wantSource:   "NONE",
			wantText:     "",
			wantWikiHits: 1,
			wantPubHits:  0,
		},
		{
			name:         "both fail yields NONE",
			wiki:         failing(source.Encyclopedia, source.ErrKindNotFound),
			pubmed:       failing(source.Literature, source.ErrKindSearchUnparsable),
			priority:     source.Encyclopedia,
			wantSource:   "NONE",
			wantText:     "",
			wantWikiHits: 1,
			wantPubHits:  1,
		},
		{
			name:         "no literature results",
			wiki:         found(source.Encyclopedia, "Wiki text."),
			pubmed:       empty(source.Literature),
			priority:     source.Literature,
			wantSource:   "WIKIPEDIA",
			wantText:     "Wiki text.",
			wantWikiHits: 1,
			wantPubHits:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.wiki, tt.pubmed)

			bundle, err := r.Retrieve(context.Background(), "caffeine", tt.priority, tt.single)

			require.NoError(t, err)
			assert.Equal(t, tt.wantSource, bundle.InfoSource)
			assert.Equal(t, tt.wantText, bundle.Text)
			assert.Equal(t, tt.wantWikiHits, tt.wiki.callCount())
			assert.Equal(t, tt.wantPubHits, tt.pubmed.callCount())
			assert.Equal(t, tt.wantSource == "NONE", bundle.None())
			assert.Len(t, bundle.Attempts, tt.wantWikiHits+tt.wantPubHits)
		})
	}
}

func TestRetrieve_AttemptOrderRecorded(t *testing.T) {
	obs := &recordingObserver{}
	r := New(
		failing(source.Encyclopedia, source.ErrKindTransport),
		found(source.Literature, "Abstract."),
		WithObserver(obs),
	)

	bundle, err := r.Retrieve(context.Background(), "caffeine", source.Literature, false)
	require.NoError(t, err)

	require.Len(t, bundle.Attempts, 2)
	assert.Equal(t, source.Literature, bundle.Attempts[0].Source)
	assert.Equal(t, source.Encyclopedia, bundle.Attempts[1].Source)
	assert.Equal(t, source.StatusTransportError, bundle.Attempts[1].Status)

	require.Len(t, obs.results, 2)
	assert.Equal(t, bundle.Attempts, obs.results)
}

func TestRetrieve_NilClientContributesNothing(t *testing.T) {
	r := New(nil, found(source.Literature, "Abstract."))

	bundle, err := r.Retrieve(context.Background(), "caffeine", source.Encyclopedia, false)
	require.NoError(t, err)
	assert.Equal(t, "PUBMED", bundle.InfoSource)
	assert.Equal(t, source.StatusEmpty, bundle.Attempts[0].Status)
}

func TestRetrieve_ConfigurationErrors(t *testing.T) {
	wiki := found(source.Encyclopedia, "Wiki text.")
	pubmed := found(source.Literature, "Abstract.")
	r := New(wiki, pubmed)

	_, err := r.Retrieve(context.Background(), "caffeine", source.None, false)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = r.Retrieve(context.Background(), "caffeine", source.Kind("SOMETHING"), false)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	_, err = r.Retrieve(context.Background(), "   ", source.Encyclopedia, false)
	assert.ErrorIs(t, err, config.ErrConfiguration)

	assert.Zero(t, wiki.callCount())
	assert.Zero(t, pubmed.callCount())
}
