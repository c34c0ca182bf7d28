// Package research fetches recent news per ticker from one configured provider.
package research

import (
	"context"
	"sort"
	"time"

	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/domain/service"
	applogger "ProTrdx/pkg/logger"
	"ProTrdx/pkg/util"
)

// Window is how far back an item may be published to count as fresh.
const Window = 24 * time.Hour

type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// Result tags the fetched items so callers can tell silence from failure.
type Result struct {
	Items  []models.NewsItem
	Status Status
	Err    error
}

// Collector wraps a single NewsSource. It never returns an error: failures
// degrade to an empty list and are logged.
type Collector struct {
	source service.NewsSource
	logger *applogger.Logger
	now    func() time.Time
	window time.Duration
}

type Option func(*Collector)

// WithClock overrides the time source used for the freshness window.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

func WithWindow(d time.Duration) Option {
	return func(c *Collector) { c.window = d }
}

func NewCollector(source service.NewsSource, l *applogger.Logger, opts ...Option) *Collector {
	c := &Collector{
		source: source,
		logger: l,
		now:    time.Now,
		window: Window,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the selected source name, or "none".
func (c *Collector) Provider() string {
	if c.source == nil {
		return "none"
	}
	return c.source.Name()
}

// FetchFresh returns fresh items sorted by descending impact.
func (c *Collector) FetchFresh(ctx context.Context, symbol string) []models.NewsItem {
	return c.FetchFreshResult(ctx, symbol).Items
}

func (c *Collector) FetchFreshResult(ctx context.Context, symbol string) Result {
	if c.source == nil {
		return Result{Items: []models.NewsItem{}, Status: StatusFailed}
	}
	raw, err := c.source.Search(ctx, symbol)
	if err != nil {
		c.logger.Warn("research fetch failed",
			applogger.String("provider", c.source.Name()),
			applogger.String("ticker", symbol),
			applogger.Error(err))
		return Result{Items: []models.NewsItem{}, Status: StatusFailed, Err: err}
	}

	items := Fresh(raw, c.now(), c.window, c.source.Name())
	status := StatusOK
	if len(items) == 0 {
		status = StatusEmpty
	}
	c.logger.Debug("research fetched",
		applogger.String("provider", c.source.Name()),
		applogger.String("ticker", symbol),
		applogger.Int("raw", len(raw)),
		applogger.Int("fresh", len(items)))
	return Result{Items: items, Status: status}
}

// Fresh keeps items published within window before now, normalizes them and
// stable-sorts by descending impact score. Items without a parseable date are
// stamped with now.
func Fresh(raw []service.RawNews, now time.Time, window time.Duration, source string) []models.NewsItem {
	cutoff := now.Add(-window)
	out := make([]models.NewsItem, 0, len(raw))
	for _, r := range raw {
		ts := util.ParseTimeDefault(r.PublishedAt, now)
		if ts.Before(cutoff) {
			continue
		}
		sentiment := r.Sentiment
		if sentiment == "" {
			sentiment = "neutral"
		}
		out = append(out, models.NewsItem{
			Title:       r.Title,
			URL:         r.URL,
			PublishedAt: ts,
			Sentiment:   sentiment,
			ImpactScore: r.ImpactScore,
			Source:      source,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ImpactScore > out[j].ImpactScore
	})
	return out
}

// Sources lists URLs in order, skipping blanks.
func Sources(items []models.NewsItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.URL != "" {
			out = append(out, it.URL)
		}
	}
	return out
}
