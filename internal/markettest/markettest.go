// Package markettest builds synthetic daily histories for tests.
package markettest

import (
	"time"

	"ProTrdx/internal/domain/models"
)

// Start is the timestamp of the first generated bar.
var Start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// Linear returns n bars with close = start + i*step, a 2-point range around
// the close and a flat volume of 1000.
func Linear(n int, start, step float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := start + float64(i)*step
		out[i] = models.Candle{
			Time:   Start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}

// FromCloses wraps closes in bars with a ±0.5% range and volume 1000.
func FromCloses(closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Time:   Start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.005,
			Low:    c * 0.995,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}

// Tradeable is a 120-bar uptrend whose last bar carries double volume, which
// clears every default gate threshold.
func Tradeable() []models.Candle {
	h := Linear(120, 100, 0.1)
	h[len(h)-1].Volume = 2000
	return h
}

// DefaultThresholds mirrors the shipped configuration defaults.
func DefaultThresholds() models.RiskThresholds {
	return models.RiskThresholds{
		SizeRiskPct:  0.75,
		MaxSpreadPct: 0.15,
		MinVolRel:    1.2,
		MinSharpe:    0.8,
		MaxDrawdown:  0.08,
		MinHitRate:   0.48,
		MinSample:    30,
	}
}
