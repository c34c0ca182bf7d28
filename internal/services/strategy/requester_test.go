package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/markettest"
	applogger "ProTrdx/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedModel struct {
	replies []string
	errs    []error
	calls   int
	system  string
	user    string
}

func (m *scriptedModel) GenerateJSON(_ context.Context, system, user string) (string, error) {
	i := m.calls
	m.calls++
	m.system, m.user = system, user
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	reply := ""
	if i < len(m.replies) {
		reply = m.replies[i]
	}
	return reply, err
}

func sampleInput() Input {
	return Input{
		Now:        time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC),
		Thresholds: markettest.DefaultThresholds(),
		Watchlist:  []string{"AAPL"},
		Research: map[string][]models.NewsItem{
			"AAPL": {{Title: "Beat", URL: "https://n/1", Sentiment: "positive", ImpactScore: 0.8}},
		},
		Features:  map[string]models.IndicatorSnapshot{"AAPL": {Ticker: "AAPL", Close: 190.5}},
		Backtests: map[string]models.BacktestStatistics{"AAPL": {N: 100, Status: models.BacktestOK, Sharpe: 1.1}},
	}
}

const validReply = `{"asof_utc":"2024-06-03T07:00:00Z","decisions":[{"ticker":"AAPL","playbook":"BUY","entry":190,"stop":185,"reason":"momentum","gatekeeper":{"precheck":"PASS","reasons":[]}}],"discoveries":[{"ticker":"AMD"}]}`

func TestRequestDecisionsSuccess(t *testing.T) {
	m := &scriptedModel{replies: []string{validReply}}
	r := NewRequester(m, applogger.NewNop())

	p, err := r.RequestDecisions(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Len(t, p.Decisions, 1)
	d := p.Decisions[0]
	assert.Equal(t, "BUY", d.Playbook)
	assert.Equal(t, 190.0, d.Plan["entry"])
	assert.JSONEq(t, `[{"ticker":"AMD"}]`, string(p.Discoveries))
	assert.Equal(t, 1, m.calls)

	assert.Contains(t, m.system, "2024-06-03T07:00:00Z")
	assert.Contains(t, m.system, `"min_sharpe": 0.8`)
	assert.Contains(t, m.user, `"AAPL"`)
	assert.Contains(t, m.user, "https://n/1")
	assert.NotContains(t, m.system+m.user, "{{")
}

func TestRequestDecisionsRetriesOnce(t *testing.T) {
	m := &scriptedModel{
		replies: []string{"not json", "```json\n" + validReply + "\n```"},
	}
	p, err := NewRequester(m, applogger.NewNop()).RequestDecisions(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Len(t, p.Decisions, 1)
	assert.Equal(t, 2, m.calls)
}

func TestRequestDecisionsExhaustsRetries(t *testing.T) {
	m := &scriptedModel{errs: []error{errors.New("timeout"), errors.New("503")}}
	_, err := NewRequester(m, applogger.NewNop()).RequestDecisions(context.Background(), sampleInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGeneration)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, 2, m.calls)

	none := &scriptedModel{}
	_, err = NewRequester(none, applogger.NewNop(), WithRetries(3)).RequestDecisions(context.Background(), sampleInput())
	assert.ErrorIs(t, err, errs.ErrGeneration)
	assert.Equal(t, 4, none.calls)
}

func TestParsePayloadRejects(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"[]",
		`{"decisions": {}}`,
		`{"notes":"nothing"}`,
		`{"decisions": [}`,
	} {
		_, err := ParsePayload(raw)
		assert.Error(t, err, raw)
	}
}

func TestParsePayloadToleratesBadFieldTypes(t *testing.T) {
	raw := `{"asof_utc":7,"notes":{"x":1},"decisions":[` +
		`{"ticker":"AAPL","playbook":"BUY","sources":["https://x",3],"entry":190},` +
		`{"ticker":"MSFT","playbook":"HOLD","sources":"https://y"},` +
		`{"ticker":"NVDA","playbook":"BUY","gatekeeper":"PASS","reason":["a"]},` +
		`"junk"]}`

	p, err := ParsePayload(raw)
	require.NoError(t, err)
	assert.Empty(t, p.AsOf)
	assert.Empty(t, p.Notes)
	require.Len(t, p.Decisions, 3)

	aapl, ok := p.DecisionFor("AAPL")
	require.True(t, ok)
	assert.Equal(t, []string{"https://x"}, aapl.Sources)
	assert.Equal(t, 190.0, aapl.Plan["entry"])

	msft, ok := p.DecisionFor("MSFT")
	require.True(t, ok)
	assert.Equal(t, "HOLD", msft.Playbook)
	assert.Equal(t, []string{"https://y"}, msft.Sources)

	nvda, ok := p.DecisionFor("NVDA")
	require.True(t, ok)
	assert.Equal(t, "BUY", nvda.Playbook)
	assert.Nil(t, nvda.Gatekeeper)
	assert.Empty(t, nvda.Reason)
}

func TestRequestDecisionsKeepsGoodTickersBesideMalformedOnes(t *testing.T) {
	m := &scriptedModel{replies: []string{
		`{"decisions":[{"ticker":"AAPL","playbook":"BUY"},{"ticker":"MSFT","gatekeeper":"PASS","sources":"https://y"}]}`,
	}}
	p, err := NewRequester(m, applogger.NewNop()).RequestDecisions(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, 1, m.calls)
	require.Len(t, p.Decisions, 2)
	assert.Equal(t, "BUY", p.Decisions[0].Playbook)
}

func TestBuildPromptsEmptyInputs(t *testing.T) {
	system, user, err := BuildPrompts(Input{Now: time.Unix(0, 0)})
	require.NoError(t, err)
	assert.True(t, strings.Contains(system, "1970-01-01T00:00:00Z"))
	assert.Contains(t, user, "[]")
	assert.Contains(t, user, "null")
}
