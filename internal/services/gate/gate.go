// Package gate is the local, authoritative risk check.
package gate

import (
	"ProTrdx/internal/domain/models"
)

// Reasons, in evaluation order.
const (
	ReasonSpread       = "spread above threshold"
	ReasonVolRel       = "vol_rel below minimum"
	ReasonInsufficient = "insufficient data"
	ReasonSample       = "sample too small"
	ReasonSharpe       = "sharpe below min"
	ReasonDrawdown     = "drawdown above max"
	ReasonHitRate      = "hit rate below min"
)

// Evaluate accumulates every violated threshold without short-circuiting,
// except that an INSUFFICIENT_DATA backtest replaces all backtest checks with
// a single reason. The verdict is BLOCK iff any reason was recorded.
func Evaluate(snap models.IndicatorSnapshot, stats models.BacktestStatistics, th models.RiskThresholds) models.GateVerdict {
	reasons := make([]string, 0, 4)

	if snap.SpreadPct > th.MaxSpreadPct {
		reasons = append(reasons, ReasonSpread)
	}
	if !snap.NoVolume && snap.VolRel < th.MinVolRel {
		reasons = append(reasons, ReasonVolRel)
	}

	if stats.Status == models.BacktestInsufficientData {
		reasons = append(reasons, ReasonInsufficient)
	} else {
		if stats.N < th.MinSample {
			reasons = append(reasons, ReasonSample)
		}
		if stats.Sharpe < th.MinSharpe {
			reasons = append(reasons, ReasonSharpe)
		}
		if stats.MaxDrawdown > th.MaxDrawdown {
			reasons = append(reasons, ReasonDrawdown)
		}
		if stats.HitRate < th.MinHitRate {
			reasons = append(reasons, ReasonHitRate)
		}
	}

	if len(reasons) == 0 {
		return models.GateVerdict{Precheck: models.PrecheckPass, Reasons: []string{}}
	}
	return models.GateVerdict{Precheck: models.PrecheckBlock, Reasons: reasons}
}

// Label combines the verdict with the model playbook into the final label.
func Label(v models.GateVerdict, playbook string) models.Label {
	if v.Precheck == models.PrecheckPass && playbook != models.PlaybookNoTrade {
		return models.LabelTradeOK
	}
	return models.LabelNoTrade
}
