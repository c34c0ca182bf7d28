package models

import (
	"encoding/json"
	"fmt"
)

// PlaybookNoTrade is the only playbook value with meaning to the pipeline.
const PlaybookNoTrade = "NO_TRADE"

type Precheck string

const (
	PrecheckPass  Precheck = "PASS"
	PrecheckBlock Precheck = "BLOCK"
)

// GateVerdict is the outcome of the local risk gate.
type GateVerdict struct {
	Precheck Precheck `json:"precheck"`
	Reasons  []string `json:"reasons"`
}

// ModelDecision is one per-ticker entry of the language model output.
// It is untrusted: the gatekeeper field is replaced before persistence.
type ModelDecision struct {
	Ticker     string         `json:"ticker"`
	Playbook   string         `json:"playbook"`
	Reason     string         `json:"reason,omitempty"`
	Sources    []string       `json:"sources,omitempty"`
	Gatekeeper *GateVerdict   `json:"gatekeeper,omitempty"`
	Plan       map[string]any `json:"-"`
}

var modelDecisionKeys = map[string]struct{}{
	"ticker": {}, "playbook": {}, "reason": {}, "sources": {}, "gatekeeper": {},
}

// UnmarshalJSON keeps any keys it does not model (entry, stop, targets...) in
// Plan. Known fields of the wrong type are dropped rather than failing the
// decision; a single string in sources is read as a one-element list.
func (d *ModelDecision) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = ModelDecision{
		Ticker:     RawString(raw["ticker"]),
		Playbook:   RawString(raw["playbook"]),
		Reason:     RawString(raw["reason"]),
		Sources:    rawStrings(raw["sources"]),
		Gatekeeper: rawVerdict(raw["gatekeeper"]),
	}
	for key, v := range raw {
		if _, ok := modelDecisionKeys[key]; ok {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("decision %s: %w", key, err)
		}
		if d.Plan == nil {
			d.Plan = make(map[string]any)
		}
		d.Plan[key] = val
	}
	return nil
}

// RawString returns v as a string, or "" when it is absent or not a string.
func RawString(v json.RawMessage) string {
	var s string
	if len(v) == 0 || json.Unmarshal(v, &s) != nil {
		return ""
	}
	return s
}

func rawStrings(v json.RawMessage) []string {
	if len(v) == 0 {
		return nil
	}
	if s := RawString(v); s != "" {
		return []string{s}
	}
	var items []any
	if json.Unmarshal(v, &items) != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func rawVerdict(v json.RawMessage) *GateVerdict {
	if len(v) == 0 {
		return nil
	}
	var g GateVerdict
	if json.Unmarshal(v, &g) != nil {
		return nil
	}
	return &g
}

// RecordedDecision is what gets persisted per ticker. Playbook is advisory
// model output; Gatekeeper is always the locally computed verdict.
type RecordedDecision struct {
	Ticker     string         `json:"ticker"`
	Playbook   string         `json:"playbook"`
	Reason     string         `json:"reason,omitempty"`
	Sources    []string       `json:"sources,omitempty"`
	Plan       map[string]any `json:"plan,omitempty"`
	Gatekeeper GateVerdict    `json:"gatekeeper"`
}

// StrategyPayload is the batch-level language model response.
type StrategyPayload struct {
	AsOf        string          `json:"asof_utc"`
	Decisions   []ModelDecision `json:"decisions"`
	Discoveries json.RawMessage `json:"discoveries,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

// ReasonLLMFailed is recorded by the fallback payload.
const ReasonLLMFailed = "llm_failed"

// FallbackPayload is substituted when no usable model output exists.
func FallbackPayload(asOf string, tickers []string) *StrategyPayload {
	p := &StrategyPayload{
		AsOf:        asOf,
		Decisions:   make([]ModelDecision, 0, len(tickers)),
		Discoveries: json.RawMessage("[]"),
		Notes:       "LLM unavailable",
	}
	for _, t := range tickers {
		p.Decisions = append(p.Decisions, ModelDecision{
			Ticker:   t,
			Playbook: PlaybookNoTrade,
			Gatekeeper: &GateVerdict{
				Precheck: PrecheckBlock,
				Reasons:  []string{ReasonLLMFailed},
			},
		})
	}
	return p
}

// DecisionFor returns the model decision for ticker, if any.
func (p *StrategyPayload) DecisionFor(ticker string) (ModelDecision, bool) {
	for _, d := range p.Decisions {
		if d.Ticker == ticker {
			return d, true
		}
	}
	return ModelDecision{}, false
}
