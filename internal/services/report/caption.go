package report

import (
	"fmt"
	"strings"

	"ProTrdx/internal/domain/models"
)

// Caption summarizes one ticker's result for an operator message.
func Caption(snap models.IndicatorSnapshot, stats models.BacktestStatistics, d models.RecordedDecision) string {
	playbook := d.Playbook
	if playbook == "" {
		playbook = models.PlaybookNoTrade
	}
	precheck := string(d.Gatekeeper.Precheck)
	if precheck == "" {
		precheck = "n/a"
	}
	lines := []string{
		"Ticker: " + d.Ticker,
		fmt.Sprintf("Close: %.2f | RSI: %.1f", snap.Close, snap.RSI14),
		fmt.Sprintf("Decision: %s (%s)", playbook, precheck),
		"Reason: " + d.Reason,
		fmt.Sprintf("Backtest: sharpe=%.2f hit=%.2f n=%d", stats.Sharpe, stats.HitRate, stats.N),
	}
	if len(d.Gatekeeper.Reasons) > 0 {
		lines = append(lines, "Gate: "+strings.Join(d.Gatekeeper.Reasons, "; "))
	}
	return strings.Join(lines, "\n")
}
