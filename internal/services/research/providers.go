package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/service"
	xhttp "ProTrdx/pkg/http"
)

const (
	ProviderPerplexity = "perplexity"
	ProviderTavily     = "tavily"
	ProviderFinnhub    = "finnhub"
)

// Config carries provider endpoints and credentials.
type Config struct {
	PerplexityURL string
	PerplexityKey string
	TavilyURL     string
	TavilyKey     string
	FinnhubURL    string
	FinnhubKey    string
	ResultSize    int
}

// NewSource resolves a provider name to its implementation.
func NewSource(name string, cfg Config, client *xhttp.Client) (service.NewsSource, error) {
	if client == nil {
		client = xhttp.NewClient(xhttp.WithTimeout(20 * time.Second))
	}
	switch name {
	case ProviderPerplexity:
		return &Perplexity{client: client, url: cfg.PerplexityURL, key: cfg.PerplexityKey, size: cfg.ResultSize}, nil
	case ProviderTavily:
		return &Tavily{client: client, url: cfg.TavilyURL, key: cfg.TavilyKey}, nil
	case ProviderFinnhub:
		return &FinnhubNews{client: client, url: cfg.FinnhubURL, key: cfg.FinnhubKey, now: time.Now}, nil
	default:
		return nil, fmt.Errorf("unsupported news provider: %q", name)
	}
}

// Perplexity queries the Perplexity search API.
type Perplexity struct {
	client *xhttp.Client
	url    string
	key    string
	size   int
}

func (p *Perplexity) Name() string { return ProviderPerplexity }

func (p *Perplexity) Search(ctx context.Context, symbol string) ([]service.RawNews, error) {
	if p.key == "" {
		return nil, errs.New(errs.ErrUpstreamUnavailable, "perplexity.search", "missing api key")
	}
	size := p.size
	if size <= 0 {
		size = 5
	}
	body := map[string]any{
		"query": "Latest market moving news for " + symbol,
		"size":  size,
	}
	return postSearch(ctx, p.client, p.url, p.key, body, "perplexity.search")
}

// Tavily queries the Tavily search API.
type Tavily struct {
	client *xhttp.Client
	url    string
	key    string
}

func (t *Tavily) Name() string { return ProviderTavily }

func (t *Tavily) Search(ctx context.Context, symbol string) ([]service.RawNews, error) {
	if t.key == "" {
		return nil, errs.New(errs.ErrUpstreamUnavailable, "tavily.search", "missing api key")
	}
	body := map[string]any{
		"query":        symbol + " breaking news",
		"search_depth": "basic",
	}
	return postSearch(ctx, t.client, t.url, t.key, body, "tavily.search")
}

func postSearch(ctx context.Context, client *xhttp.Client, endpoint, key string, body any, op string) ([]service.RawNews, error) {
	var raw []byte
	err := client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     endpoint,
		Headers: map[string]string{"Authorization": "Bearer " + key},
		Body:    body,
	}, &raw)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUpstreamUnavailable, op, err)
	}
	hits, err := decodeHits(raw)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUpstreamUnavailable, op, err)
	}
	return hits, nil
}

type searchHit struct {
	Title       string  `json:"title"`
	PublishedAt string  `json:"published_at"`
	Date        string  `json:"date"`
	URL         string  `json:"url"`
	Link        string  `json:"link"`
	Sentiment   string  `json:"sentiment"`
	ImpactScore float64 `json:"impact_score"`
}

// decodeHits accepts either a bare array or an object with a results array.
func decodeHits(raw []byte) ([]service.RawNews, error) {
	var hits []searchHit
	if err := json.Unmarshal(raw, &hits); err != nil {
		var wrapped struct {
			Results []searchHit `json:"results"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode search response: %w", err2)
		}
		hits = wrapped.Results
	}
	out := make([]service.RawNews, 0, len(hits))
	for _, h := range hits {
		n := service.RawNews{
			Title:       h.Title,
			URL:         h.URL,
			PublishedAt: h.PublishedAt,
			Sentiment:   h.Sentiment,
			ImpactScore: h.ImpactScore,
		}
		if n.URL == "" {
			n.URL = h.Link
		}
		if n.PublishedAt == "" {
			n.PublishedAt = h.Date
		}
		out = append(out, n)
	}
	return out, nil
}

// FinnhubNews reads the company-news endpoint. It carries no sentiment or
// impact, so every hit is neutral with zero impact.
type FinnhubNews struct {
	client *xhttp.Client
	url    string
	key    string
	now    func() time.Time
}

func (f *FinnhubNews) Name() string { return ProviderFinnhub }

func (f *FinnhubNews) Search(ctx context.Context, symbol string) ([]service.RawNews, error) {
	const op = "finnhub.company_news"
	if f.key == "" {
		return nil, errs.New(errs.ErrUpstreamUnavailable, op, "missing api key")
	}
	now := f.now().UTC()
	var items []struct {
		Headline string `json:"headline"`
		Datetime int64  `json:"datetime"`
		URL      string `json:"url"`
	}
	err := f.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    f.url,
		QueryParams: url.Values{
			"symbol": {symbol},
			"from":   {now.AddDate(0, 0, -2).Format("2006-01-02")},
			"to":     {now.Format("2006-01-02")},
			"token":  {f.key},
		},
	}, &items)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUpstreamUnavailable, op, err)
	}
	out := make([]service.RawNews, 0, len(items))
	for _, it := range items {
		out = append(out, service.RawNews{
			Title:       it.Headline,
			URL:         it.URL,
			PublishedAt: time.Unix(it.Datetime, 0).UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}
