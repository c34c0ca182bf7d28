package usecase

import (
	"context"
	"errors"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	drepo "ProTrdx/internal/domain/repository"
)

// SettingsService reads and updates the operator settings row.
type SettingsService struct {
	store    drepo.SettingsRepository
	defaults models.Settings
	now      func() time.Time
}

func NewSettingsService(store drepo.SettingsRepository, defaults models.Settings) *SettingsService {
	return &SettingsService{store: store, defaults: defaults, now: time.Now}
}

// Get returns the saved settings, or a copy of the defaults before the
// first save.
func (s *SettingsService) Get(ctx context.Context) (*models.Settings, error) {
	st, err := s.store.GetSettings(ctx)
	if errors.Is(err, errs.ErrNotFound) {
		def := s.defaults
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Update applies a partial change and persists the result.
func (s *SettingsService) Update(ctx context.Context, req *models.UpdateSettingsRequest) (*models.Settings, error) {
	const op = "settings.update"
	st, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	req.Apply(st)
	if _, err := time.LoadLocation(st.Timezone); err != nil {
		return nil, errs.Wrap(errs.ErrData, op, err)
	}
	if st.CronHour < 0 || st.CronHour > 23 {
		return nil, errs.New(errs.ErrData, op, "cron hour %d out of range", st.CronHour)
	}
	st.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSettings(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}
