package repository

import (
	"context"
	"testing"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteJobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	job := &models.Job{}
	require.NoError(t, s.CreateJob(ctx, job))
	require.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobRunning, job.Status)

	finished := time.Date(2024, 6, 3, 7, 5, 0, 0, time.UTC)
	results := []models.JobResult{{
		Ticker:    "AAPL",
		Decision:  models.LabelTradeOK,
		Metrics:   models.BacktestStatistics{N: 115, Status: models.BacktestOK, Sharpe: 1.5},
		ChartPath: "charts/AAPL_20240603.svg",
		Sources:   []string{"https://n/1"},
		Payload: models.RecordedDecision{
			Ticker:     "AAPL",
			Playbook:   "BUY",
			Plan:       map[string]any{"entry": 190.0},
			Gatekeeper: models.GateVerdict{Precheck: models.PrecheckPass, Reasons: []string{}},
		},
	}, {
		Ticker:   "MSFT",
		Decision: models.LabelNoTrade,
		Metrics:  models.BacktestStatistics{Status: models.BacktestInsufficientData},
		Payload: models.RecordedDecision{
			Ticker:     "MSFT",
			Playbook:   models.PlaybookNoTrade,
			Gatekeeper: models.GateVerdict{Precheck: models.PrecheckBlock, Reasons: []string{"insufficient data"}},
		},
	}}
	require.NoError(t, s.CompleteJob(ctx, job.ID, results, `{"discoveries":[]}`, finished))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSuccess, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
	require.NotNil(t, got.Summary)
	assert.Equal(t, `{"discoveries":[]}`, *got.Summary)

	require.Len(t, got.Results, 2)
	aapl := got.Results[0]
	assert.Equal(t, "AAPL", aapl.Ticker)
	assert.Equal(t, job.ID, aapl.JobID)
	assert.Equal(t, 115, aapl.Metrics.N)
	assert.Equal(t, []string{"https://n/1"}, aapl.Sources)
	assert.Equal(t, 190.0, aapl.Payload.Plan["entry"])
	assert.Equal(t, models.PrecheckPass, aapl.Payload.Gatekeeper.Precheck)
	assert.Empty(t, got.Results[1].ChartPath)
	assert.Equal(t, []string{}, got.Results[1].Sources)

	err = s.CompleteJob(ctx, job.ID, nil, "", finished)
	assert.ErrorIs(t, err, errs.ErrJobTerminal)
	err = s.FailJob(ctx, job.ID, "late", finished)
	assert.ErrorIs(t, err, errs.ErrJobTerminal)
}

func TestSQLiteCompleteJobIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	job := &models.Job{}
	require.NoError(t, s.CreateJob(ctx, job))

	dup := []models.JobResult{{Ticker: "AAPL", Decision: models.LabelNoTrade}, {Ticker: "AAPL", Decision: models.LabelNoTrade}}
	err := s.CompleteJob(ctx, job.ID, dup, "", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrPersistence)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, got.Status)
	assert.Empty(t, got.Results)

	require.NoError(t, s.FailJob(ctx, job.ID, "boom", time.Now()))
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFail, got.Status)
	assert.Equal(t, "boom", *got.Summary)
}

func TestSQLiteJobNotFoundAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetJob(ctx, "nope")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.ErrorIs(t, s.FailJob(ctx, "nope", "x", time.Now()), errs.ErrNotFound)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateJob(ctx, &models.Job{StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	jobs, err := s.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.True(t, jobs[0].StartedAt.After(jobs[1].StartedAt))
}

func TestSQLiteTickers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, tk := range models.DefaultWatchlist {
		tk := tk
		require.NoError(t, s.CreateTicker(ctx, &tk))
	}
	dup := models.Ticker{Symbol: "AAPL", Market: models.MarketStock, Active: true}
	assert.ErrorIs(t, s.CreateTicker(ctx, &dup), errs.ErrConflict)

	nvda, err := s.GetTickerBySymbol(ctx, "NVDA")
	require.NoError(t, err)
	require.NoError(t, s.SetTickerActive(ctx, nvda.ID, false))

	active, err := s.ListActiveTickers(ctx)
	require.NoError(t, err)
	symbols := make([]string, 0, len(active))
	for _, tk := range active {
		symbols = append(symbols, tk.Symbol)
	}
	assert.Equal(t, []string{"AAPL", "BTC-USD", "EURUSD=X", "MSFT"}, symbols)

	all, err := s.ListTickers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	require.NoError(t, s.DeleteTicker(ctx, nvda.ID))
	assert.ErrorIs(t, s.DeleteTicker(ctx, nvda.ID), errs.ErrNotFound)
	assert.ErrorIs(t, s.SetTickerActive(ctx, "missing", true), errs.ErrNotFound)
	_, err = s.GetTickerBySymbol(ctx, "NVDA")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSQLiteSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetSettings(ctx)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	st := &models.Settings{
		NewsProvider: "tavily",
		Timezone:     "Europe/Brussels",
		CronHour:     7,
		RiskThresholds: models.RiskThresholds{
			MaxSpreadPct: 0.15, MinVolRel: 1.2, MinSharpe: 0.8,
			MaxDrawdown: 0.08, MinHitRate: 0.48, MinSample: 30, SizeRiskPct: 0.75,
		},
	}
	require.NoError(t, s.SaveSettings(ctx, st))
	st.CronHour = 9
	require.NoError(t, s.SaveSettings(ctx, st))

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, got.CronHour)
	assert.Equal(t, "tavily", got.NewsProvider)
	assert.Equal(t, 30, got.MinSample)
	assert.False(t, got.UpdatedAt.IsZero())
}
