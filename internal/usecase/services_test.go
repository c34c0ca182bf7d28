package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	applogger "ProTrdx/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaultsUntilSaved(t *testing.T) {
	ctx := context.Background()
	svc := NewSettingsService(newStoreWithTickers(t), testDefaults())

	st, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, st.CronHour)

	hour, tz := 9, "America/New_York"
	sharpe := 1.1
	updated, err := svc.Update(ctx, &models.UpdateSettingsRequest{CronHour: &hour, Timezone: &tz, MinSharpe: &sharpe})
	require.NoError(t, err)
	assert.Equal(t, 9, updated.CronHour)
	assert.Equal(t, 1.1, updated.MinSharpe)
	assert.Equal(t, 30, updated.MinSample, "untouched fields keep their value")

	st, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", st.Timezone)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestSettingsRejectsUnknownTimezone(t *testing.T) {
	svc := NewSettingsService(newStoreWithTickers(t), testDefaults())
	tz := "Mars/Olympus"
	_, err := svc.Update(context.Background(), &models.UpdateSettingsRequest{Timezone: &tz})
	assert.ErrorIs(t, err, errs.ErrData)
}

func TestWatchlistCreateNormalizes(t *testing.T) {
	ctx := context.Background()
	w := NewWatchlistService(newStoreWithTickers(t), nil)

	tk, err := w.Create(ctx, &models.CreateTickerRequest{Symbol: " nvda "})
	require.NoError(t, err)
	assert.Equal(t, "NVDA", tk.Symbol)
	assert.Equal(t, models.MarketStock, tk.Market)
	assert.True(t, tk.Active)

	_, err = w.Create(ctx, &models.CreateTickerRequest{Symbol: "NVDA"})
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = w.Create(ctx, &models.CreateTickerRequest{Symbol: "XAU", Market: "metal"})
	assert.ErrorIs(t, err, errs.ErrData)

	require.NoError(t, w.SetActive(ctx, tk.ID, false))
	list, err := w.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)

	require.NoError(t, w.Delete(ctx, tk.ID))
	assert.ErrorIs(t, w.Delete(ctx, tk.ID), errs.ErrNotFound)
}

func TestWatchlistSeedOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	w := NewWatchlistService(newStoreWithTickers(t), nil)

	n, err := w.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(models.DefaultWatchlist), n)

	n, err = w.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type fixedSettings struct{ st *models.Settings }

func (f fixedSettings) GetSettings(context.Context) (*models.Settings, error) {
	if f.st == nil {
		return nil, errs.ErrNotFound
	}
	s := *f.st
	return &s, nil
}
func (fixedSettings) SaveSettings(context.Context, *models.Settings) error { return nil }

type countingTrigger struct {
	calls int
	err   error
	fired chan struct{}
}

func (c *countingTrigger) TriggerRun(context.Context, string) (string, error) {
	c.calls++
	select {
	case c.fired <- struct{}{}:
	default:
	}
	return "job-1", c.err
}

func TestSchedulerNextUsesSettingsTimezone(t *testing.T) {
	st := testDefaults()
	st.Timezone = "Asia/Tokyo"
	st.CronHour = 9
	s := NewScheduler(NewSettingsService(fixedSettings{&st}, testDefaults()), &countingTrigger{}, applogger.NewNop())
	s.now = func() time.Time { return time.Date(2024, 6, 3, 1, 0, 0, 0, time.UTC) } // 10:00 in Tokyo

	next, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), next.UTC())
}

func TestSchedulerFiresAndStops(t *testing.T) {
	trig := &countingTrigger{fired: make(chan struct{}, 1), err: errs.New(errs.ErrConflict, "test", "busy")}
	s := NewScheduler(NewSettingsService(fixedSettings{}, testDefaults()), trig, applogger.NewNop())
	s.after = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-trig.fired
	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}

func TestKafkaRunHandler(t *testing.T) {
	ctx := context.Background()
	trig := &countingTrigger{}
	h := NewKafkaRunHandler("protrdx.runs", trig, nil)
	assert.Equal(t, "protrdx.runs", h.Topic())

	require.NoError(t, h.Handle(ctx, []byte(`{"ticker":"aapl"}`)))
	require.NoError(t, h.Handle(ctx, []byte(`not json`)))
	assert.Equal(t, 1, trig.calls)

	trig.err = errs.New(errs.ErrConflict, "test", "busy")
	assert.NoError(t, h.Handle(ctx, []byte(`{}`)))

	trig.err = errs.New(errs.ErrUpstreamUnavailable, "test", "queue down")
	assert.Error(t, h.Handle(ctx, []byte(`{}`)))
}
