// Package strategy asks a language model for per-ticker trade decisions.
package strategy

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/domain/service"
	applogger "ProTrdx/pkg/logger"
)

// DefaultRetries is the number of extra attempts after the first call.
const DefaultRetries = 1

var (
	//go:embed prompts/system.tmpl
	systemTemplate string
	//go:embed prompts/user.tmpl
	userTemplate string
)

// Input is everything the model sees for one batch.
type Input struct {
	Now        time.Time
	Thresholds models.RiskThresholds
	Watchlist  []string
	Research   map[string][]models.NewsItem
	Features   map[string]models.IndicatorSnapshot
	Backtests  map[string]models.BacktestStatistics
}

// Requester builds the prompt and calls the model with bounded retries.
type Requester struct {
	model   service.LanguageModel
	logger  *applogger.Logger
	retries int
}

type Option func(*Requester)

func WithRetries(n int) Option {
	return func(r *Requester) {
		if n >= 0 {
			r.retries = n
		}
	}
}

func NewRequester(model service.LanguageModel, l *applogger.Logger, opts ...Option) *Requester {
	r := &Requester{model: model, logger: l, retries: DefaultRetries}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RequestDecisions returns the parsed model payload. It never substitutes a
// fallback; every failure after the last attempt wraps errs.ErrGeneration.
func (r *Requester) RequestDecisions(ctx context.Context, in Input) (*models.StrategyPayload, error) {
	const op = "strategy.request_decisions"

	system, user, err := BuildPrompts(in)
	if err != nil {
		return nil, errs.Wrap(errs.ErrGeneration, op, err)
	}

	var lastErr error
	attempts := r.retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		start := time.Now()
		raw, err := r.model.GenerateJSON(ctx, system, user)
		if err == nil {
			var payload *models.StrategyPayload
			payload, err = ParsePayload(raw)
			if err == nil {
				r.logger.Info("decisions received",
					applogger.Int("attempt", attempt),
					applogger.Int("decisions", len(payload.Decisions)),
					applogger.Duration("latency", time.Since(start)))
				return payload, nil
			}
		}
		lastErr = err
		r.logger.Warn("decision request failed",
			applogger.Int("attempt", attempt),
			applogger.Int("max_attempts", attempts),
			applogger.Error(err))
	}
	return nil, errs.Wrap(errs.ErrGeneration, op, fmt.Errorf("after %d attempts: %w", attempts, lastErr))
}

// BuildPrompts renders the system and user prompts for in.
func BuildPrompts(in Input) (string, string, error) {
	settings, err := marshal(in.Thresholds)
	if err != nil {
		return "", "", fmt.Errorf("settings: %w", err)
	}
	watchlist, err := marshal(nonNil(in.Watchlist))
	if err != nil {
		return "", "", fmt.Errorf("watchlist: %w", err)
	}
	research, err := marshal(in.Research)
	if err != nil {
		return "", "", fmt.Errorf("research: %w", err)
	}
	feats, err := marshal(in.Features)
	if err != nil {
		return "", "", fmt.Errorf("features: %w", err)
	}
	backtests, err := marshal(in.Backtests)
	if err != nil {
		return "", "", fmt.Errorf("backtests: %w", err)
	}

	rep := strings.NewReplacer(
		"{{now_utc}}", in.Now.UTC().Format(time.RFC3339),
		"{{settings_json}}", settings,
		"{{watchlist_json}}", watchlist,
		"{{research_json}}", research,
		"{{features_json}}", feats,
		"{{backtests_json}}", backtests,
	)
	return rep.Replace(systemTemplate), rep.Replace(userTemplate), nil
}

// ParsePayload validates a raw completion. Markdown code fences around the
// object are tolerated; anything that is not a JSON object with a decisions
// array is rejected.
func ParsePayload(raw string) (*models.StrategyPayload, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, errors.New("empty response")
	}
	if !strings.HasPrefix(body, "{") {
		return nil, errors.New("response is not a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("malformed json: %w", err)
	}
	decisions, ok := fields["decisions"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(decisions), []byte("[")) {
		return nil, errors.New("response has no decisions array")
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(decisions, &entries); err != nil {
		return nil, fmt.Errorf("decode decisions: %w", err)
	}
	payload := models.StrategyPayload{
		AsOf:      models.RawString(fields["asof_utc"]),
		Notes:     models.RawString(fields["notes"]),
		Decisions: make([]models.ModelDecision, 0, len(entries)),
	}
	if d, ok := fields["discoveries"]; ok {
		payload.Discoveries = d
	}
	// Entries that are not objects carry nothing usable; reconcile treats the
	// ticker as missing.
	for _, e := range entries {
		var d models.ModelDecision
		if err := json.Unmarshal(e, &d); err != nil {
			continue
		}
		payload.Decisions = append(payload.Decisions, d)
	}
	return &payload, nil
}

func marshal(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
