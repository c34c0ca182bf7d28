package repository

import (
	"context"

	"ProTrdx/internal/domain/models"
)

// MarketData loads daily OHLCV history for one instrument, oldest bar first.
// Empty or malformed provider responses fail with errs.ErrUpstreamUnavailable.
type MarketData interface {
	FetchHistory(ctx context.Context, ticker models.Ticker, lookbackDays int) ([]models.Candle, error)
}

// CandleWriter persists daily bars, used to warm the ClickHouse candle table.
type CandleWriter interface {
	StoreCandles(ctx context.Context, symbol string, candles []models.Candle) error
}
