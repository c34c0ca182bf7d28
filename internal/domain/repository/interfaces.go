package repository

import (
	"context"
	"time"

	"ProTrdx/internal/domain/models"
)

type JobRepository interface {
	CreateJob(ctx context.Context, job *models.Job) error
	// GetJob returns the job with its results, or errs.ErrNotFound.
	GetJob(ctx context.Context, id string) (*models.Job, error)
	// ListJobs returns jobs newest first, without results.
	ListJobs(ctx context.Context, limit int) ([]models.Job, error)
	// CompleteJob stores all results and marks the job SUCCESS atomically.
	CompleteJob(ctx context.Context, jobID string, results []models.JobResult, summary string, finishedAt time.Time) error
	FailJob(ctx context.Context, jobID, message string, finishedAt time.Time) error
}

type TickerRepository interface {
	ListTickers(ctx context.Context) ([]models.Ticker, error)
	ListActiveTickers(ctx context.Context) ([]models.Ticker, error)
	GetTickerBySymbol(ctx context.Context, symbol string) (*models.Ticker, error)
	// CreateTicker fails with errs.ErrConflict on a duplicate symbol.
	CreateTicker(ctx context.Context, t *models.Ticker) error
	SetTickerActive(ctx context.Context, id string, active bool) error
	DeleteTicker(ctx context.Context, id string) error
}

type SettingsRepository interface {
	// GetSettings returns errs.ErrNotFound until settings are first saved.
	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, s *models.Settings) error
}

// Store is the transactional persistence used by the pipeline.
type Store interface {
	JobRepository
	TickerRepository
	SettingsRepository
	Close() error
}

// ResultArchive receives finished results for offline analysis.
type ResultArchive interface {
	ArchiveResults(ctx context.Context, job *models.Job, snapshots map[string]models.IndicatorSnapshot) error
}

// JobEvents publishes job lifecycle events.
type JobEvents interface {
	PublishJobEvent(ctx context.Context, ev models.JobEvent) error
}

// Notifier delivers a report to an operator channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, caption, chartPath string) error
}

type Metrics interface {
	RecordJob(status models.JobStatus)
	RecordStageError(stage string)
	RecordDecision(label models.Label)
	RecordLatency(op string, seconds float64)
}
