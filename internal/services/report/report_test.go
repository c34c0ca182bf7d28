package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/markettest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderChart(t *testing.T) {
	svg, err := RenderChart("EURUSD=X", markettest.Tradeable(), 60)
	require.NoError(t, err)

	out := string(svg)
	assert.True(t, strings.HasPrefix(out, "<svg"))
	assert.Equal(t, 3, strings.Count(out, "<polyline"))
	assert.Contains(t, out, "EURUSD=X")
	assert.NotContains(t, out, "NaN")

	_, err = RenderChart("X", markettest.Linear(1, 100, 1), 60)
	assert.Error(t, err)
}

func TestChartStoreSaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	store := NewChartStore(filepath.Join(dir, "charts"))
	snap := models.IndicatorSnapshot{AsOf: markettest.Start}

	path, err := store.Save("BTC-USD", snap, []byte("<svg/>"))
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD_"+markettest.Start.Format("20060102")+".svg", filepath.Base(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(b))

	got, err := store.Open(filepath.Base(path))
	require.NoError(t, err)
	assert.Equal(t, path, got)

	for _, bad := range []string{"", "../etc/passwd", ".hidden", "a/b.svg"} {
		_, err := store.Open(bad)
		assert.ErrorIs(t, err, errs.ErrData, bad)
	}
	_, err = store.Open("MSFT_20240102.svg")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCaption(t *testing.T) {
	snap := models.IndicatorSnapshot{Close: 190.456, RSI14: 61.27}
	stats := models.BacktestStatistics{N: 115, Sharpe: 1.234, HitRate: 0.5}
	d := models.RecordedDecision{
		Ticker:     "AAPL",
		Playbook:   "BUY",
		Reason:     "momentum",
		Gatekeeper: models.GateVerdict{Precheck: models.PrecheckBlock, Reasons: []string{"sharpe below min"}},
	}

	c := Caption(snap, stats, d)
	assert.Equal(t, strings.Join([]string{
		"Ticker: AAPL",
		"Close: 190.46 | RSI: 61.3",
		"Decision: BUY (BLOCK)",
		"Reason: momentum",
		"Backtest: sharpe=1.23 hit=0.50 n=115",
		"Gate: sharpe below min",
	}, "\n"), c)
}
