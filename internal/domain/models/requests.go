package models

// Requests for the HTTP API. Defined in domain for consistency and reuse.

type RunRequest struct {
	Ticker string `param:"ticker" json:"ticker" validate:"omitempty,max=20"`
}

type ListJobsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type JobIDRequest struct {
	ID string `param:"id" json:"id" validate:"required"`
}

type CreateTickerRequest struct {
	Symbol string `json:"symbol" validate:"required,max=20"`
	Market string `json:"market" default:"stock" validate:"oneof=stock crypto fx"`
	Active *bool  `json:"active" default:"true"`
}

type SetTickerActiveRequest struct {
	ID     string `param:"id" json:"-" validate:"required"`
	Active *bool  `json:"active" validate:"required"`
}

// UpdateSettingsRequest is a partial update; nil fields keep their value.
type UpdateSettingsRequest struct {
	NewsProvider *string  `json:"news_provider" validate:"omitempty,oneof=perplexity tavily finnhub"`
	Timezone     *string  `json:"timezone" validate:"omitempty,timezone"`
	CronHour     *int     `json:"cron_hour" validate:"omitempty,gte=0,lte=23"`
	SizeRiskPct  *float64 `json:"size_risk_pct" validate:"omitempty,gt=0,lt=5"`
	MaxSpreadPct *float64 `json:"max_spread_pct" validate:"omitempty,gt=0,lt=5"`
	MinVolRel    *float64 `json:"min_vol_rel" validate:"omitempty,gt=0,lt=10"`
	MinSharpe    *float64 `json:"min_sharpe" validate:"omitempty,gt=-5,lt=5"`
	MaxDrawdown  *float64 `json:"max_dd" validate:"omitempty,gt=0,lt=1"`
	MinHitRate   *float64 `json:"min_hit_rate" validate:"omitempty,gt=0,lt=1"`
	MinSample    *int     `json:"min_sample" validate:"omitempty,gte=1"`
}

// Apply copies the non-nil fields onto s.
func (r *UpdateSettingsRequest) Apply(s *Settings) {
	if r.NewsProvider != nil {
		s.NewsProvider = *r.NewsProvider
	}
	if r.Timezone != nil {
		s.Timezone = *r.Timezone
	}
	if r.CronHour != nil {
		s.CronHour = *r.CronHour
	}
	if r.SizeRiskPct != nil {
		s.SizeRiskPct = *r.SizeRiskPct
	}
	if r.MaxSpreadPct != nil {
		s.MaxSpreadPct = *r.MaxSpreadPct
	}
	if r.MinVolRel != nil {
		s.MinVolRel = *r.MinVolRel
	}
	if r.MinSharpe != nil {
		s.MinSharpe = *r.MinSharpe
	}
	if r.MaxDrawdown != nil {
		s.MaxDrawdown = *r.MaxDrawdown
	}
	if r.MinHitRate != nil {
		s.MinHitRate = *r.MinHitRate
	}
	if r.MinSample != nil {
		s.MinSample = *r.MinSample
	}
}

type ChartRequest struct {
	Filename string `param:"filename" json:"filename" validate:"required"`
}
