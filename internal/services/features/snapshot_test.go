package features

import (
	"math"
	"testing"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/markettest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSnapshotUptrend(t *testing.T) {
	history := markettest.Tradeable()
	snap, err := ComputeSnapshot(history)
	require.NoError(t, err)

	last := history[len(history)-1]
	assert.Equal(t, last.Time, snap.AsOf)
	assert.InDelta(t, 111.9, snap.Close, 1e-9)
	assert.Equal(t, 100.0, snap.RSI14)
	assert.InDelta(t, 2.0, snap.ATR14, 1e-9)
	assert.InDelta(t, 2.0/111.9, snap.ATRPct, 1e-9)
	assert.InDelta(t, 2.0/111.9, snap.SpreadPct, 1e-9)
	assert.InDelta(t, 111.9/111.8-1, snap.GapPct, 1e-12)
	assert.InDelta(t, 2000.0/1050.0, snap.VolRel, 1e-9)
	assert.InDelta(t, 110.95, snap.Levels.SMA20, 1e-9)
	assert.InDelta(t, 109.45, snap.Levels.SMA50, 1e-9)
	assert.Greater(t, snap.RealizedVol, 0.0)
	assert.Len(t, snap.History, len(history))
}

func TestComputeSnapshotMarksMissingVolume(t *testing.T) {
	history := markettest.Tradeable()
	for i := range history {
		history[i].Volume = 0
	}
	snap, err := ComputeSnapshot(history)
	require.NoError(t, err)
	assert.True(t, snap.NoVolume)
	assert.Zero(t, snap.VolRel)

	snap, err = ComputeSnapshot(markettest.Tradeable())
	require.NoError(t, err)
	assert.False(t, snap.NoVolume)
}

func TestComputeSnapshotRejectsShortHistory(t *testing.T) {
	_, err := ComputeSnapshot(markettest.Linear(MinBars-1, 100, 1))
	assert.ErrorIs(t, err, errs.ErrData)
}

func TestComputeSnapshotRejectsBadTimestamps(t *testing.T) {
	dup := markettest.Linear(60, 100, 1)
	dup[30].Time = dup[29].Time
	_, err := ComputeSnapshot(dup)
	assert.ErrorIs(t, err, errs.ErrData)

	swapped := markettest.Linear(60, 100, 1)
	swapped[10], swapped[11] = swapped[11], swapped[10]
	_, err = ComputeSnapshot(swapped)
	assert.ErrorIs(t, err, errs.ErrData)
}

func TestComputeSnapshotRejectsBadPrices(t *testing.T) {
	h := markettest.Linear(60, 100, 1)
	h[5].Close = math.NaN()
	_, err := ComputeSnapshot(h)
	assert.ErrorIs(t, err, errs.ErrData)

	h = markettest.Linear(60, 100, 1)
	h[7].Low = -1
	_, err = ComputeSnapshot(h)
	assert.ErrorIs(t, err, errs.ErrData)
}

func TestRSIBalancedMoves(t *testing.T) {
	closes := []float64{100}
	for i := 0; i < 14; i++ {
		if i%2 == 0 {
			closes = append(closes, closes[len(closes)-1]+1)
		} else {
			closes = append(closes, closes[len(closes)-1]-1)
		}
	}
	assert.InDelta(t, 50.0, RSI(closes, 14), 1e-9)
	assert.True(t, math.IsNaN(RSI(closes[:10], 14)))
}

func TestRealizedVolatilityFlatSeries(t *testing.T) {
	rets := ComputeLogReturns(markettest.FromCloses(100, 100, 100, 100))
	assert.Equal(t, []float64{0, 0, 0}, rets)
	assert.Zero(t, RealizedVolatility(rets, 3, TradingDaysPerYear))
	assert.Zero(t, RealizedVolatility(rets, 5, TradingDaysPerYear))
}
