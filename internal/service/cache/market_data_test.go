package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/markettest"
	pkgcache "ProTrdx/pkg/cache"
	applogger "ProTrdx/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) FetchHistory(context.Context, models.Ticker, int) ([]models.Candle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return markettest.Linear(3, 100, 1), nil
}

func TestMarketDataCachesPerDay(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	src := &countingSource{}
	md := NewMarketData(src, mem, time.Hour, applogger.NewNop())
	day := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	md.now = func() time.Time { return day }

	ticker := models.Ticker{Symbol: "AAPL"}
	first, err := md.FetchHistory(context.Background(), ticker, 120)
	require.NoError(t, err)
	second, err := md.FetchHistory(context.Background(), ticker, 120)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first, second)

	day = day.AddDate(0, 0, 1)
	_, err = md.FetchHistory(context.Background(), ticker, 120)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestMarketDataDoesNotCacheErrors(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	src := &countingSource{err: errors.New("down")}
	md := NewMarketData(src, mem, time.Hour, applogger.NewNop())

	_, err := md.FetchHistory(context.Background(), models.Ticker{Symbol: "X"}, 60)
	assert.Error(t, err)
	_, err = md.FetchHistory(context.Background(), models.Ticker{Symbol: "X"}, 60)
	assert.Error(t, err)
	assert.Equal(t, 2, src.calls)
}

type recordingSink struct {
	symbols []string
	err     error
}

func (s *recordingSink) StoreCandles(_ context.Context, symbol string, _ []models.Candle) error {
	s.symbols = append(s.symbols, symbol)
	return s.err
}

func TestMarketDataWritesProviderFetchesToSink(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	sink := &recordingSink{err: errors.New("clickhouse down")}
	md := NewMarketData(&countingSource{}, mem, time.Hour, applogger.NewNop(), WithCandleSink(sink))

	ticker := models.Ticker{Symbol: "MSFT"}
	_, err := md.FetchHistory(context.Background(), ticker, 120)
	require.NoError(t, err, "sink failures are not fatal")
	_, err = md.FetchHistory(context.Background(), ticker, 120)
	require.NoError(t, err)

	assert.Equal(t, []string{"MSFT"}, sink.symbols, "cache hits are not re-stored")
}
