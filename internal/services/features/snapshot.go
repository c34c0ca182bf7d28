// Package features turns a daily bar history into the indicator snapshot
// consumed by the gate and the decision prompt.
package features

import (
	"math"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
)

const (
	// MinBars is the shortest history that yields every indicator (SMA50).
	MinBars = 50

	rsiPeriod    = 14
	atrPeriod    = 14
	volumeWindow = 20
	rvWindow     = 20
)

// ComputeSnapshot derives last-bar indicators. It is pure; the returned
// snapshot keeps a reference to history for backtesting and charting.
func ComputeSnapshot(history []models.Candle) (models.IndicatorSnapshot, error) {
	const op = "features.snapshot"
	if err := Validate(history); err != nil {
		return models.IndicatorSnapshot{}, err
	}

	closes := make([]float64, len(history))
	volumes := make([]float64, len(history))
	for i, c := range history {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	last := history[len(history)-1]
	prev := history[len(history)-2]

	atr := ATR(history, atrPeriod)
	snap := models.IndicatorSnapshot{
		AsOf:        last.Time,
		Close:       last.Close,
		RSI14:       RSI(closes, rsiPeriod),
		ATR14:       atr,
		ATRPct:      atr / last.Close,
		GapPct:      last.Close/prev.Close - 1,
		SpreadPct:   (last.High - last.Low) / last.Close,
		RealizedVol: RealizedVolatility(ComputeLogReturns(history), rvWindow, TradingDaysPerYear),
		Levels: models.Levels{
			SMA20: SMA(closes, 20),
			SMA50: SMA(closes, 50),
		},
		History: history,
	}
	if avg := SMA(volumes, volumeWindow); avg > 0 {
		snap.VolRel = last.Volume / avg
	} else {
		snap.NoVolume = true
	}

	for _, v := range []float64{snap.RSI14, snap.ATR14, snap.Levels.SMA20, snap.Levels.SMA50} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.IndicatorSnapshot{}, errs.New(errs.ErrData, op, "indicator not computable")
		}
	}
	return snap, nil
}

// Validate checks length, price sanity and strictly increasing timestamps.
func Validate(history []models.Candle) error {
	const op = "features.validate"
	if len(history) < MinBars {
		return errs.New(errs.ErrData, op, "need %d bars, got %d", MinBars, len(history))
	}
	for i, c := range history {
		for _, p := range []float64{c.Open, c.High, c.Low, c.Close} {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return errs.New(errs.ErrData, op, "bar %d: invalid price %v", i, p)
			}
		}
		if c.High < c.Low {
			return errs.New(errs.ErrData, op, "bar %d: high below low", i)
		}
		if math.IsNaN(c.Volume) || c.Volume < 0 {
			return errs.New(errs.ErrData, op, "bar %d: invalid volume %v", i, c.Volume)
		}
		if i > 0 && !c.Time.After(history[i-1].Time) {
			return errs.New(errs.ErrData, op, "bar %d: timestamp not increasing", i)
		}
	}
	return nil
}
