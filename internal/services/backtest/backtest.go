// Package backtest runs the long-only momentum sanity check used by the gate.
package backtest

import (
	"math"

	"ProTrdx/internal/domain/models"
)

const (
	// MinBars below which the backtest reports INSUFFICIENT_DATA.
	MinBars = 60
	// Slippage is charged as a fraction of equity on every position change.
	Slippage = 0.0005

	signalWindow = 5
	annualFactor = 252
	sharpeEps    = 1e-6
)

// Run never fails. Short or degenerate histories yield INSUFFICIENT_DATA.
func Run(history []models.Candle) models.BacktestStatistics {
	insufficient := models.BacktestStatistics{Status: models.BacktestInsufficientData, SlippageUsed: Slippage}
	if len(history) < MinBars {
		return insufficient
	}

	rets := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1].Close
		if prev == 0 {
			continue
		}
		rets = append(rets, history[i].Close/prev-1)
	}
	if len(rets) == 0 {
		return insufficient
	}

	strat := StrategyReturns(rets)
	return models.BacktestStatistics{
		N:            len(strat),
		Status:       models.BacktestOK,
		Sharpe:       Sharpe(strat),
		MaxDrawdown:  MaxDrawdown(strat),
		HitRate:      HitRate(strat),
		SlippageUsed: Slippage,
	}
}

// StrategyReturns applies the momentum signal with one bar of lag.
// signal[t] is true when the mean of rets[t-4..t] is positive; the position
// held over bar t is signal[t-1].
func StrategyReturns(rets []float64) []float64 {
	out := make([]float64, len(rets))
	signal := make([]bool, len(rets))
	sum := 0.0
	for t, r := range rets {
		sum += r
		if t >= signalWindow {
			sum -= rets[t-signalWindow]
		}
		if t >= signalWindow-1 {
			signal[t] = sum/signalWindow > 0
		}
	}

	prevPos := 0.0
	for t, r := range rets {
		pos := 0.0
		if t > 0 && signal[t-1] {
			pos = 1
		}
		out[t] = pos*r - Slippage*math.Abs(pos-prevPos)
		prevPos = pos
	}
	return out
}

// Sharpe annualizes mean over sample standard deviation.
func Sharpe(returns []float64) float64 {
	n := float64(len(returns))
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= n
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / (n - 1))
	return math.Sqrt(annualFactor) * mean / (std + sharpeEps)
}

// MaxDrawdown is the largest peak-to-trough fraction of compounded equity.
func MaxDrawdown(returns []float64) float64 {
	equity, peak, worst := 1.0, 1.0, 0.0
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

// HitRate is the fraction of bars with a strictly positive return.
func HitRate(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	wins := 0
	for _, r := range returns {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(returns))
}
