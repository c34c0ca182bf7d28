package models

import "time"

type Market string

const (
	MarketStock  Market = "stock"
	MarketCrypto Market = "crypto"
	MarketFX     Market = "fx"
)

func (m Market) Valid() bool {
	switch m {
	case MarketStock, MarketCrypto, MarketFX:
		return true
	}
	return false
}

// Ticker is a watchlist entry.
type Ticker struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Market    Market    `json:"market"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultWatchlist is what the seed command inserts into an empty store.
var DefaultWatchlist = []Ticker{
	{Symbol: "AAPL", Market: MarketStock, Active: true},
	{Symbol: "NVDA", Market: MarketStock, Active: true},
	{Symbol: "MSFT", Market: MarketStock, Active: true},
	{Symbol: "BTC-USD", Market: MarketCrypto, Active: true},
	{Symbol: "EURUSD=X", Market: MarketFX, Active: true},
}
