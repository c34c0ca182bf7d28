package gate

import (
	"testing"

	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/markettest"

	"github.com/stretchr/testify/assert"
)

func passingInputs() (models.IndicatorSnapshot, models.BacktestStatistics) {
	snap := models.IndicatorSnapshot{SpreadPct: 0.02, VolRel: 1.5}
	stats := models.BacktestStatistics{
		N:           100,
		Status:      models.BacktestOK,
		Sharpe:      1.4,
		MaxDrawdown: 0.03,
		HitRate:     0.55,
	}
	return snap, stats
}

func TestEvaluatePass(t *testing.T) {
	snap, stats := passingInputs()
	v := Evaluate(snap, stats, markettest.DefaultThresholds())

	assert.Equal(t, models.PrecheckPass, v.Precheck)
	assert.Empty(t, v.Reasons)
}

func TestEvaluateSingleViolation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.IndicatorSnapshot, *models.BacktestStatistics)
		reason string
	}{
		{"spread", func(s *models.IndicatorSnapshot, _ *models.BacktestStatistics) { s.SpreadPct = 0.2 }, ReasonSpread},
		{"vol_rel", func(s *models.IndicatorSnapshot, _ *models.BacktestStatistics) { s.VolRel = 0.9 }, ReasonVolRel},
		{"sample", func(_ *models.IndicatorSnapshot, b *models.BacktestStatistics) { b.N = 10 }, ReasonSample},
		{"sharpe", func(_ *models.IndicatorSnapshot, b *models.BacktestStatistics) { b.Sharpe = 0.1 }, ReasonSharpe},
		{"drawdown", func(_ *models.IndicatorSnapshot, b *models.BacktestStatistics) { b.MaxDrawdown = 0.2 }, ReasonDrawdown},
		{"hit_rate", func(_ *models.IndicatorSnapshot, b *models.BacktestStatistics) { b.HitRate = 0.3 }, ReasonHitRate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap, stats := passingInputs()
			tc.mutate(&snap, &stats)

			v := Evaluate(snap, stats, markettest.DefaultThresholds())
			assert.Equal(t, models.PrecheckBlock, v.Precheck)
			assert.Equal(t, []string{tc.reason}, v.Reasons)
		})
	}
}

func TestEvaluateTwoViolationsKeepFixedOrder(t *testing.T) {
	snap, stats := passingInputs()
	stats.HitRate = 0.1
	snap.SpreadPct = 1

	v := Evaluate(snap, stats, markettest.DefaultThresholds())
	assert.Equal(t, models.PrecheckBlock, v.Precheck)
	assert.Equal(t, []string{ReasonSpread, ReasonHitRate}, v.Reasons)
}

func TestEvaluateInsufficientDataSkipsBacktestChecks(t *testing.T) {
	snap, _ := passingInputs()
	snap.VolRel = 0.5
	stats := models.BacktestStatistics{Status: models.BacktestInsufficientData}

	v := Evaluate(snap, stats, markettest.DefaultThresholds())
	assert.Equal(t, []string{ReasonVolRel, ReasonInsufficient}, v.Reasons)
}

func TestEvaluateSkipsVolRelWithoutVolume(t *testing.T) {
	snap, stats := passingInputs()
	snap.VolRel = 0
	snap.NoVolume = true

	v := Evaluate(snap, stats, markettest.DefaultThresholds())
	assert.Equal(t, models.PrecheckPass, v.Precheck)
	assert.Empty(t, v.Reasons)
}

func TestEvaluateBoundariesAreInclusive(t *testing.T) {
	th := markettest.DefaultThresholds()
	snap := models.IndicatorSnapshot{SpreadPct: th.MaxSpreadPct, VolRel: th.MinVolRel}
	stats := models.BacktestStatistics{
		Status:      models.BacktestOK,
		N:           th.MinSample,
		Sharpe:      th.MinSharpe,
		MaxDrawdown: th.MaxDrawdown,
		HitRate:     th.MinHitRate,
	}
	assert.Equal(t, models.PrecheckPass, Evaluate(snap, stats, th).Precheck)
}

func TestLabel(t *testing.T) {
	pass := models.GateVerdict{Precheck: models.PrecheckPass}
	block := models.GateVerdict{Precheck: models.PrecheckBlock, Reasons: []string{ReasonSharpe}}

	assert.Equal(t, models.LabelTradeOK, Label(pass, "BUY"))
	assert.Equal(t, models.LabelNoTrade, Label(pass, models.PlaybookNoTrade))
	assert.Equal(t, models.LabelNoTrade, Label(block, "BUY"))
}
