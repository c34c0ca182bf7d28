// Package finnhub fetches daily candles from the Finnhub REST API.
package finnhub

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	xhttp "ProTrdx/pkg/http"
	applogger "ProTrdx/pkg/logger"

	"golang.org/x/time/rate"
)

// Client implements repository.MarketData.
type Client struct {
	http    *xhttp.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
	logger  *applogger.Logger
	now     func() time.Time
}

// New creates a client allowing perMinute requests with a burst of one.
func New(client *xhttp.Client, baseURL, apiKey string, perMinute int, l *applogger.Logger) *Client {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Client{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1),
		logger:  l,
		now:     time.Now,
	}
}

type candleResponse struct {
	Status string    `json:"s"`
	Close  []float64 `json:"c"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Open   []float64 `json:"o"`
	Time   []int64   `json:"t"`
	Volume []float64 `json:"v"`
}

// FetchHistory returns daily bars covering the last lookbackDays calendar days.
func (c *Client) FetchHistory(ctx context.Context, t models.Ticker, lookbackDays int) ([]models.Candle, error) {
	const op = "finnhub.fetch_history"
	if c.apiKey == "" {
		return nil, errs.New(errs.ErrUpstreamUnavailable, op, "missing api key")
	}
	path, symbol := Endpoint(t)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.ErrUpstreamUnavailable, op, err)
	}

	to := c.now().UTC()
	from := to.AddDate(0, 0, -lookbackDays)
	var resp candleResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + path,
		QueryParams: url.Values{
			"symbol":     {symbol},
			"resolution": {"D"},
			"from":       {strconv.FormatInt(from.Unix(), 10)},
			"to":         {strconv.FormatInt(to.Unix(), 10)},
			"token":      {c.apiKey},
		},
	}, &resp)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUpstreamUnavailable, op, fmt.Errorf("%s: %w", t.Symbol, err))
	}

	candles, err := resp.candles()
	if err != nil {
		return nil, errs.Wrap(errs.ErrUpstreamUnavailable, op, fmt.Errorf("%s: %w", t.Symbol, err))
	}
	c.logger.Debug("candles fetched",
		applogger.String("ticker", t.Symbol),
		applogger.String("provider_symbol", symbol),
		applogger.Int("bars", len(candles)))
	return candles, nil
}

func (r candleResponse) candles() ([]models.Candle, error) {
	if r.Status != "ok" {
		return nil, fmt.Errorf("provider status %q", r.Status)
	}
	n := len(r.Time)
	if n == 0 {
		return nil, fmt.Errorf("empty candle response")
	}
	if len(r.Open) != n || len(r.High) != n || len(r.Low) != n || len(r.Close) != n || len(r.Volume) != n {
		return nil, fmt.Errorf("malformed candle response: column lengths differ")
	}
	out := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = models.Candle{
			Time:   time.Unix(r.Time[i], 0).UTC(),
			Open:   r.Open[i],
			High:   r.High[i],
			Low:    r.Low[i],
			Close:  r.Close[i],
			Volume: r.Volume[i],
		}
	}
	return out, nil
}

// Endpoint maps a watchlist ticker to the candle path and provider symbol.
// Crypto pairs like BTC-USD go to Binance USDT books, FX pairs like EURUSD=X
// to OANDA.
func Endpoint(t models.Ticker) (string, string) {
	switch t.Market {
	case models.MarketCrypto:
		base, quote, ok := strings.Cut(strings.ToUpper(t.Symbol), "-")
		if !ok {
			return "/crypto/candle", t.Symbol
		}
		if quote == "USD" {
			quote = "USDT"
		}
		return "/crypto/candle", "BINANCE:" + base + quote
	case models.MarketFX:
		pair := strings.TrimSuffix(strings.ToUpper(t.Symbol), "=X")
		if len(pair) == 6 {
			return "/forex/candle", "OANDA:" + pair[:3] + "_" + pair[3:]
		}
		return "/forex/candle", t.Symbol
	default:
		return "/stock/candle", strings.ToUpper(t.Symbol)
	}
}
