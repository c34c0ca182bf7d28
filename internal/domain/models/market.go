package models

import "time"

// Candle is one daily OHLCV bar.
type Candle struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// NewsItem is a single research hit.
type NewsItem struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Sentiment   string    `json:"sentiment"`
	ImpactScore float64   `json:"impact_score"`
	Source      string    `json:"source,omitempty"`
}

// Levels are reference moving averages at the last bar.
type Levels struct {
	SMA20 float64 `json:"sma_20"`
	SMA50 float64 `json:"sma_50"`
}

// IndicatorSnapshot holds last-bar indicator values for one ticker.
type IndicatorSnapshot struct {
	Ticker      string    `json:"ticker"`
	AsOf        time.Time `json:"asof"`
	Close       float64   `json:"close"`
	RSI14       float64   `json:"rsi"`
	ATR14       float64   `json:"atr"`
	ATRPct      float64   `json:"atr_pct"`
	GapPct      float64   `json:"gap_pct"`
	VolRel      float64   `json:"vol_rel"`
	// NoVolume marks feeds that report no traded volume (spot FX);
	// VolRel is meaningless for them.
	NoVolume    bool      `json:"no_volume,omitempty"`
	SpreadPct   float64   `json:"spread_pct"`
	RealizedVol float64   `json:"realized_vol"`
	Levels      Levels    `json:"levels"`

	History []Candle `json:"-"`
}

type BacktestStatus string

const (
	BacktestOK               BacktestStatus = "OK"
	BacktestInsufficientData BacktestStatus = "INSUFFICIENT_DATA"
)

// BacktestStatistics summarize the momentum sanity check.
type BacktestStatistics struct {
	N            int            `json:"n"`
	Status       BacktestStatus `json:"status"`
	Sharpe       float64        `json:"sharpe"`
	MaxDrawdown  float64        `json:"max_dd"`
	HitRate      float64        `json:"hit_rate"`
	SlippageUsed float64        `json:"slippage_used"`
}
