package models

import "time"

// RiskThresholds parameterize the gate. They are read once per Job.
type RiskThresholds struct {
	SizeRiskPct  float64 `json:"size_risk_pct" yaml:"size_risk_pct"`
	MaxSpreadPct float64 `json:"max_spread_pct" yaml:"max_spread_pct"`
	MinVolRel    float64 `json:"min_vol_rel" yaml:"min_vol_rel"`
	MinSharpe    float64 `json:"min_sharpe" yaml:"min_sharpe"`
	MaxDrawdown  float64 `json:"max_dd" yaml:"max_dd"`
	MinHitRate   float64 `json:"min_hit_rate" yaml:"min_hit_rate"`
	MinSample    int     `json:"min_sample" yaml:"min_sample"`
}

// Settings is the persisted operator configuration.
type Settings struct {
	NewsProvider string    `json:"news_provider"`
	Timezone     string    `json:"timezone"`
	CronHour     int       `json:"cron_hour"`
	UpdatedAt    time.Time `json:"updated_at"`
	RiskThresholds
}

// Location resolves Timezone, falling back to UTC.
func (s Settings) Location() *time.Location {
	if loc, err := time.LoadLocation(s.Timezone); err == nil {
		return loc
	}
	return time.UTC
}
