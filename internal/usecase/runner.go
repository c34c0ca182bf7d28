package usecase

import (
	"context"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	drepo "ProTrdx/internal/domain/repository"
	pkgcache "ProTrdx/pkg/cache"
	applogger "ProTrdx/pkg/logger"
	"ProTrdx/pkg/queue"
)

// DefaultRunLockTTL bounds how long a crashed worker can block a trigger key.
const DefaultRunLockTTL = 30 * time.Minute

// Runner creates jobs synchronously and hands execution to the task queue.
type Runner struct {
	store   drepo.Store
	tasks   queue.Publisher
	locks   pkgcache.Service
	logger  *applogger.Logger
	lockTTL time.Duration
	now     func() time.Time
}

type RunnerOption func(*Runner)

func WithRunLockTTL(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.lockTTL = d
		}
	}
}

func NewRunner(store drepo.Store, tasks queue.Publisher, locks pkgcache.Service, l *applogger.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{store: store, tasks: tasks, locks: locks, logger: l, lockTTL: DefaultRunLockTTL, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunLockKey is the per-trigger lock: one key for the whole watchlist and
// one per single-ticker run.
func RunLockKey(ticker string) string {
	if ticker == "" {
		return "run:watchlist"
	}
	return "run:ticker:" + ticker
}

// TriggerRun returns the new job ID once the job is persisted and queued.
// Unknown or inactive tickers fail with errs.ErrNotFound and a trigger that
// already has a job in flight fails with errs.ErrConflict; nothing is
// created in either case.
func (r *Runner) TriggerRun(ctx context.Context, ticker string) (string, error) {
	const op = "runner.trigger"
	if ticker != "" {
		t, err := r.store.GetTickerBySymbol(ctx, ticker)
		if err != nil {
			return "", err
		}
		if !t.Active {
			return "", errs.New(errs.ErrNotFound, op, "ticker %s is inactive", ticker)
		}
	}

	key := RunLockKey(ticker)
	locked := false
	if r.locks != nil {
		ok, err := r.locks.TryLock(ctx, key, r.lockTTL)
		if err != nil {
			return "", errs.Wrap(errs.ErrUpstreamUnavailable, op, err)
		}
		if !ok {
			return "", errs.New(errs.ErrConflict, op, "a run for %s is already in progress", lockTarget(ticker))
		}
		locked = true
	}
	release := func() {
		if locked {
			_ = r.locks.Unlock(context.WithoutCancel(ctx), key)
		}
	}

	job := &models.Job{StartedAt: r.now().UTC(), Status: models.JobRunning}
	if err := r.store.CreateJob(ctx, job); err != nil {
		release()
		return "", err
	}

	task := PipelineTask{RunRequest: RunRequest{JobID: job.ID, Ticker: ticker}}
	if locked {
		task.LockKey = key
	}
	if err := r.tasks.Enqueue(ctx, TaskPipelineRun, task); err != nil {
		release()
		msg := "run not queued: " + err.Error()
		if ferr := r.store.FailJob(context.WithoutCancel(ctx), job.ID, msg, r.now().UTC()); ferr != nil {
			r.logger.Error("mark unqueued job failed", applogger.String("job_id", job.ID), applogger.Error(ferr))
		}
		return "", errs.Wrap(errs.ErrUpstreamUnavailable, op, err)
	}

	r.logger.Info("run triggered",
		applogger.String("job_id", job.ID),
		applogger.String("ticker", lockTarget(ticker)))
	return job.ID, nil
}

// GetJob returns the job with its results.
func (r *Runner) GetJob(ctx context.Context, id string) (*models.Job, error) {
	return r.store.GetJob(ctx, id)
}

// ListJobs returns the most recent jobs without results.
func (r *Runner) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	return r.store.ListJobs(ctx, limit)
}

func lockTarget(ticker string) string {
	if ticker == "" {
		return "watchlist"
	}
	return ticker
}
