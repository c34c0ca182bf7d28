package models

import "time"

type JobStatus string

const (
	JobRunning JobStatus = "RUNNING"
	JobSuccess JobStatus = "SUCCESS"
	JobFail    JobStatus = "FAIL"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFail
}

// Label is the final per-ticker classification written to a JobResult.
type Label string

const (
	LabelTradeOK Label = "TRADE_OK"
	LabelNoTrade Label = "NO_TRADE"
)

// Job is one execution of the pipeline.
type Job struct {
	ID         string      `json:"id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Status     JobStatus   `json:"status"`
	Summary    *string     `json:"summary,omitempty"`
	Results    []JobResult `json:"results,omitempty"`
}

// JobResult is the immutable outcome for one ticker inside a Job.
type JobResult struct {
	ID        string             `json:"id"`
	JobID     string             `json:"job_id"`
	Ticker    string             `json:"ticker"`
	Decision  Label              `json:"decision"`
	Metrics   BacktestStatistics `json:"metrics"`
	ChartPath string             `json:"chart_path,omitempty"`
	Sources   []string           `json:"sources"`
	Payload   RecordedDecision   `json:"payload"`
	CreatedAt time.Time          `json:"created_at"`
}

// JobEvent is broadcast when a job changes state.
type JobEvent struct {
	Type      string      `json:"type"`
	JobID     string      `json:"job_id"`
	Status    JobStatus   `json:"status"`
	Summary   string      `json:"summary,omitempty"`
	Results   []JobResult `json:"results,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

const (
	EventJobStarted  = "job.started"
	EventJobFinished = "job.finished"
	EventJobFailed   = "job.failed"
)
