package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	xhttp "ProTrdx/pkg/http"
	applogger "ProTrdx/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint(t *testing.T) {
	cases := []struct {
		ticker models.Ticker
		path   string
		symbol string
	}{
		{models.Ticker{Symbol: "aapl", Market: models.MarketStock}, "/stock/candle", "AAPL"},
		{models.Ticker{Symbol: "BTC-USD", Market: models.MarketCrypto}, "/crypto/candle", "BINANCE:BTCUSDT"},
		{models.Ticker{Symbol: "ETH-EUR", Market: models.MarketCrypto}, "/crypto/candle", "BINANCE:ETHEUR"},
		{models.Ticker{Symbol: "EURUSD=X", Market: models.MarketFX}, "/forex/candle", "OANDA:EUR_USD"},
	}
	for _, tc := range cases {
		path, sym := Endpoint(tc.ticker)
		assert.Equal(t, tc.path, path, tc.ticker.Symbol)
		assert.Equal(t, tc.symbol, sym, tc.ticker.Symbol)
	}
}

func newTestClient(url string) *Client {
	c := New(xhttp.NewClient(), url, "key", 6000, applogger.NewNop())
	c.now = func() time.Time { return time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestFetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/candle", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "NVDA", q.Get("symbol"))
		assert.Equal(t, "D", q.Get("resolution"))
		assert.Equal(t, "1717372800", q.Get("to"))
		_, _ = w.Write([]byte(`{"s":"ok","t":[1717113600,1717372800],"o":[1,2],"h":[2,3],"l":[0.5,1.5],"c":[1.5,2.5],"v":[100,200]}`))
	}))
	defer srv.Close()

	candles, err := newTestClient(srv.URL).FetchHistory(context.Background(), models.Ticker{Symbol: "NVDA", Market: models.MarketStock}, 120)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 2.5, candles[1].Close)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), candles[1].Time)
}

func TestFetchHistoryUpstreamFailures(t *testing.T) {
	bodies := []string{
		`{"s":"no_data"}`,
		`{"s":"ok","t":[],"o":[],"h":[],"l":[],"c":[],"v":[]}`,
		`{"s":"ok","t":[1,2],"o":[1],"h":[1,2],"l":[1,2],"c":[1,2],"v":[1,2]}`,
		`not json`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := newTestClient(srv.URL).FetchHistory(context.Background(), models.Ticker{Symbol: "X"}, 30)
		assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable, body)
		srv.Close()
	}

	c := New(xhttp.NewClient(), "http://unused", "", 60, applogger.NewNop())
	_, err := c.FetchHistory(context.Background(), models.Ticker{Symbol: "X"}, 30)
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
}
