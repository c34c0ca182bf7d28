package research

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/service"
	xhttp "ProTrdx/pkg/http"
	applogger "ProTrdx/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	items []service.RawNews
	err   error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Search(context.Context, string) ([]service.RawNews, error) {
	return s.items, s.err
}

func newCollector(src service.NewsSource) *Collector {
	return NewCollector(src, applogger.NewNop(), WithClock(func() time.Time { return fixedNow }))
}

func TestFetchFreshDropsStaleItems(t *testing.T) {
	src := &stubSource{items: []service.RawNews{
		{Title: "fresh", PublishedAt: fixedNow.Add(-time.Hour).Format(time.RFC3339), ImpactScore: 0.2},
		{Title: "stale", PublishedAt: fixedNow.Add(-48 * time.Hour).Format(time.RFC3339), ImpactScore: 0.9},
	}}

	items := newCollector(src).FetchFresh(context.Background(), "AAPL")
	require.Len(t, items, 1)
	assert.Equal(t, "fresh", items[0].Title)
	assert.Equal(t, "neutral", items[0].Sentiment)
}

func TestFetchFreshOrdersByImpactStable(t *testing.T) {
	ts := fixedNow.Add(-30 * time.Minute).Format(time.RFC3339)
	src := &stubSource{items: []service.RawNews{
		{Title: "low", PublishedAt: ts, ImpactScore: 0.1},
		{Title: "tie-a", PublishedAt: ts, ImpactScore: 0.5},
		{Title: "high", PublishedAt: ts, ImpactScore: 0.9},
		{Title: "tie-b", PublishedAt: ts, ImpactScore: 0.5},
	}}

	items := newCollector(src).FetchFresh(context.Background(), "AAPL")
	titles := make([]string, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	assert.Equal(t, []string{"high", "tie-a", "tie-b", "low"}, titles)
}

func TestFreshStampsUndatedItemsWithNow(t *testing.T) {
	raw := []service.RawNews{
		{Title: "dated", PublishedAt: fixedNow.Add(-time.Hour).Format(time.RFC3339), ImpactScore: 0.1},
		{Title: "undated", ImpactScore: 0.9},
		{Title: "garbled", PublishedAt: "yesterday-ish", ImpactScore: 0.5},
	}

	items := Fresh(raw, fixedNow, 24*time.Hour, "tavily")
	require.Len(t, items, 3)
	assert.Equal(t, "undated", items[0].Title)
	assert.Equal(t, fixedNow, items[0].PublishedAt)
	assert.Equal(t, "garbled", items[1].Title)
	assert.Equal(t, fixedNow, items[1].PublishedAt)
	assert.Equal(t, "dated", items[2].Title)
}

func TestFetchFreshDegradesToEmpty(t *testing.T) {
	c := newCollector(&stubSource{err: errors.New("boom")})

	res := c.FetchFreshResult(context.Background(), "AAPL")
	assert.Equal(t, StatusFailed, res.Status)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)

	empty := newCollector(&stubSource{}).FetchFreshResult(context.Background(), "AAPL")
	assert.Equal(t, StatusEmpty, empty.Status)

	assert.Empty(t, newCollector(nil).FetchFresh(context.Background(), "AAPL"))
}

func TestPerplexitySearch(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`[{"title":"Beat","date":"2024-06-03T10:00:00Z","link":"https://x/1","impact_score":0.7}]`))
	}))
	defer srv.Close()

	src, err := NewSource(ProviderPerplexity, Config{PerplexityURL: srv.URL, PerplexityKey: "secret"}, xhttp.NewClient())
	require.NoError(t, err)

	hits, err := src.Search(context.Background(), "NVDA")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://x/1", hits[0].URL)
	assert.Equal(t, "2024-06-03T10:00:00Z", hits[0].PublishedAt)
	assert.Equal(t, "Latest market moving news for NVDA", gotBody["query"])
}

func TestTavilySearchResultsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"title":"A","url":"https://a","published_at":"2024-06-03T09:00:00Z","sentiment":"positive"}]}`))
	}))
	defer srv.Close()

	src, err := NewSource(ProviderTavily, Config{TavilyURL: srv.URL, TavilyKey: "k"}, nil)
	require.NoError(t, err)

	hits, err := src.Search(context.Background(), "MSFT")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "positive", hits[0].Sentiment)
}

func TestProviderFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src, err := NewSource(ProviderTavily, Config{TavilyURL: srv.URL, TavilyKey: "k"}, nil)
	require.NoError(t, err)
	_, err = src.Search(context.Background(), "MSFT")
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)

	noKey, err := NewSource(ProviderPerplexity, Config{PerplexityURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = noKey.Search(context.Background(), "MSFT")
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)

	_, err = NewSource("bing", Config{}, nil)
	assert.Error(t, err)
}

func TestFinnhubNews(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "2024-06-03", r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(`[{"headline":"H","datetime":1717405200,"url":"https://f"}]`))
	}))
	defer srv.Close()

	src := &FinnhubNews{client: xhttp.NewClient(), url: srv.URL, key: "k", now: func() time.Time { return fixedNow }}
	items := NewCollector(src, applogger.NewNop(), WithClock(func() time.Time { return fixedNow })).FetchFresh(context.Background(), "AAPL")
	require.Len(t, items, 1)
	assert.Equal(t, "H", items[0].Title)
	assert.Equal(t, ProviderFinnhub, items[0].Source)
}
