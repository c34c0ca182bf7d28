package features

import (
	"math"

	"ProTrdx/internal/domain/models"
)

// SMA is the mean of the last n values, or NaN when fewer are available.
func SMA(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// RSI is Wilder's relative strength index at the last close.
// The first average is a simple mean of `period` changes.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return math.NaN()
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		g, l := split(closes[i] - closes[i-1])
		avgGain += g
		avgLoss += l
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		g, l := split(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + g) / p
		avgLoss = (avgLoss*(p-1) + l) / p
	}

	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

// TrueRange of bar i against the previous close.
func TrueRange(history []models.Candle, i int) float64 {
	c := history[i]
	if i == 0 {
		return c.High - c.Low
	}
	prev := history[i-1].Close
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
}

// ATR is Wilder's average true range at the last bar.
func ATR(history []models.Candle, period int) float64 {
	if period <= 0 || len(history) <= period {
		return math.NaN()
	}
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += TrueRange(history, i)
	}
	atr /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(history); i++ {
		atr = (atr*(p-1) + TrueRange(history, i)) / p
	}
	return atr
}
