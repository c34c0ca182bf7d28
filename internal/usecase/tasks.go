package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	drepo "ProTrdx/internal/domain/repository"
	pkgcache "ProTrdx/pkg/cache"
	xhttp "ProTrdx/pkg/http"
	applogger "ProTrdx/pkg/logger"
	"ProTrdx/pkg/queue"
)

// Queue message types.
const (
	TaskPipelineRun  = "pipeline.run"
	TaskNotifyReport = "notify.report"
)

// PipelineTask asks a worker to execute a job created by the Runner.
type PipelineTask struct {
	RunRequest
	LockKey string `json:"lock_key,omitempty"`
}

// NotifyTask delivers one ticker report. Delivery is at most best effort:
// the job is already committed when the task is queued.
type NotifyTask struct {
	JobID     string `json:"job_id"`
	Ticker    string `json:"ticker"`
	Caption   string `json:"caption"`
	ChartPath string `json:"chart_path,omitempty"`
}

// JobRunner is satisfied by *Pipeline.
type JobRunner interface {
	Run(ctx context.Context, req RunRequest) (*models.Job, error)
}

// PipelineJob executes queued runs and releases the trigger lock afterwards.
type PipelineJob struct {
	pipeline JobRunner
	locks    pkgcache.Service
	logger   *applogger.Logger
}

func NewPipelineJob(p JobRunner, locks pkgcache.Service, l *applogger.Logger) *PipelineJob {
	return &PipelineJob{pipeline: p, locks: locks, logger: l}
}

func (j *PipelineJob) Name() string { return "pipeline" }
func (j *PipelineJob) Type() string { return TaskPipelineRun }

// Handle never asks for a redelivery once the payload decoded: a retried run
// would find its job terminal.
func (j *PipelineJob) Handle(ctx context.Context, payload json.RawMessage) error {
	task, err := queue.Decode[PipelineTask](payload)
	if err != nil {
		return err
	}
	if task.LockKey != "" && j.locks != nil {
		defer func() {
			if err := j.locks.Unlock(context.WithoutCancel(ctx), task.LockKey); err != nil {
				j.logger.Warn("run lock release failed", applogger.String("key", task.LockKey), applogger.Error(err))
			}
		}()
	}

	job, err := j.pipeline.Run(ctx, task.RunRequest)
	switch {
	case errors.Is(err, errs.ErrJobTerminal):
		j.logger.Warn("duplicate run delivery ignored", applogger.String("job_id", task.JobID))
	case err != nil:
		j.logger.Error("queued run failed", applogger.String("job_id", task.JobID), applogger.Error(err))
	default:
		j.logger.Info("queued run done",
			applogger.String("job_id", job.ID),
			applogger.String("status", string(job.Status)))
	}
	return nil
}

// NotifyJob sends queued reports through the configured channels.
type NotifyJob struct {
	notifier drepo.Notifier
	metrics  drepo.Metrics
	logger   *applogger.Logger
}

func NewNotifyJob(n drepo.Notifier, m drepo.Metrics, l *applogger.Logger) *NotifyJob {
	if m == nil {
		m = NopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &NotifyJob{notifier: n, metrics: m, logger: l}
}

func (j *NotifyJob) Name() string { return "notify" }
func (j *NotifyJob) Type() string { return TaskNotifyReport }

// Handle returns delivery errors for retry, except rejections such as a bad
// chat id or a revoked webhook, which are logged and dropped.
func (j *NotifyJob) Handle(ctx context.Context, payload json.RawMessage) error {
	task, err := queue.Decode[NotifyTask](payload)
	if err != nil {
		return err
	}
	if err := j.notifier.Notify(ctx, task.Caption, task.ChartPath); err != nil {
		j.metrics.RecordStageError("notify")
		if xhttp.IsPermanent(err) {
			j.logger.Error("report rejected by channel",
				applogger.String("job_id", task.JobID),
				applogger.String("ticker", task.Ticker),
				applogger.Error(err))
			return nil
		}
		return err
	}
	return nil
}
