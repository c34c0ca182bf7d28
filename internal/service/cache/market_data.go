// Package cache memoizes market data fetches behind pkg/cache.
package cache

import (
	"context"
	"errors"
	"time"

	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/domain/repository"
	pkgcache "ProTrdx/pkg/cache"
	applogger "ProTrdx/pkg/logger"
)

const historyPrefix = "history"

// MarketData decorates a repository.MarketData with a TTL cache. Cache
// failures fall through to the provider.
type MarketData struct {
	next   repository.MarketData
	cache  pkgcache.Service
	ttl    time.Duration
	logger *applogger.Logger
	now    func() time.Time
	sink   repository.CandleWriter
}

type Option func(*MarketData)

// WithCandleSink copies every provider fetch into w, e.g. the ClickHouse
// candle table.
func WithCandleSink(w repository.CandleWriter) Option {
	return func(m *MarketData) { m.sink = w }
}

func NewMarketData(next repository.MarketData, c pkgcache.Service, ttl time.Duration, l *applogger.Logger, opts ...Option) *MarketData {
	m := &MarketData{next: next, cache: c, ttl: ttl, logger: l, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FetchHistory keys entries by symbol, lookback and UTC day, so a new trading
// day always misses.
func (m *MarketData) FetchHistory(ctx context.Context, t models.Ticker, lookbackDays int) ([]models.Candle, error) {
	key := pkgcache.GenerateKeyWithParams(historyPrefix, t.Symbol, lookbackDays, m.now().UTC().Format("20060102"))

	var cached []models.Candle
	err := m.cache.Get(ctx, key, &cached)
	switch {
	case err == nil && len(cached) > 0:
		return cached, nil
	case err != nil && !errors.Is(err, pkgcache.ErrCacheMiss):
		m.logger.Warn("history cache read failed", applogger.String("key", key), applogger.Error(err))
	}

	candles, err := m.next.FetchHistory(ctx, t, lookbackDays)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Set(ctx, key, candles, m.ttl); err != nil {
		m.logger.Warn("history cache write failed", applogger.String("key", key), applogger.Error(err))
	}
	if m.sink != nil {
		if err := m.sink.StoreCandles(ctx, t.Symbol, candles); err != nil {
			m.logger.Warn("candle sink write failed", applogger.String("symbol", t.Symbol), applogger.Error(err))
		}
	}
	return candles, nil
}
