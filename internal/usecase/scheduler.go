package usecase

import (
	"context"
	"errors"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	applogger "ProTrdx/pkg/logger"
	"ProTrdx/pkg/util"
)

// Trigger starts a run; *Runner satisfies it.
type Trigger interface {
	TriggerRun(ctx context.Context, ticker string) (string, error)
}

// Scheduler triggers one watchlist run per day at the configured hour. The
// hour and timezone are re-read from settings before every wait.
type Scheduler struct {
	settings *SettingsService
	trigger  Trigger
	logger   *applogger.Logger
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
}

func NewScheduler(settings *SettingsService, trigger Trigger, l *applogger.Logger) *Scheduler {
	return &Scheduler{settings: settings, trigger: trigger, logger: l, now: time.Now, after: time.After}
}

// Next returns the next fire time for the current settings.
func (s *Scheduler) Next(ctx context.Context) (time.Time, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return util.NextDailyRun(s.now(), st.CronHour, st.Location()), nil
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next, err := s.Next(ctx)
		if err != nil {
			s.logger.Error("scheduler settings unavailable", applogger.Error(err))
			next = s.now().Add(time.Hour)
		}
		s.logger.Info("next scheduled run", applogger.Time("at", next))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(next.Sub(s.now())):
		}
		s.fire(ctx)
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	jobID, err := s.trigger.TriggerRun(ctx, "")
	switch {
	case errors.Is(err, errs.ErrConflict):
		s.logger.Warn("scheduled run skipped, previous run still active")
	case err != nil:
		s.logger.Error("scheduled run failed to start", applogger.Error(err))
	default:
		s.logger.Info("scheduled run started", applogger.String("job_id", jobID))
	}
}

// DefaultSettings builds the settings used before any are saved.
func DefaultSettings(newsProvider, timezone string, cronHour int, th models.RiskThresholds) models.Settings {
	return models.Settings{
		NewsProvider:   newsProvider,
		Timezone:       timezone,
		CronHour:       cronHour,
		RiskThresholds: th,
	}
}
