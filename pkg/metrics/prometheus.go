package metrics

import (
	"ProTrdx/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	jobs        *prometheus.CounterVec
	stageErrors *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	queueDepth  prometheus.Gauge
}

// New registers the pipeline collectors on reg. Tests pass a fresh
// prometheus.NewRegistry(); the server uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		jobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "protrdx_jobs_total",
				Help: "Finished pipeline jobs by terminal status",
			},
			[]string{"status"},
		),
		stageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "protrdx_stage_errors_total",
				Help: "Per-ticker failures by pipeline stage",
			},
			[]string{"stage"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "protrdx_decisions_total",
				Help: "Recorded ticker decisions by label",
			},
			[]string{"label"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "protrdx_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "protrdx_queue_depth",
			Help: "Pending background tasks",
		}),
	}
}

func (r *Recorder) RecordJob(status models.JobStatus) {
	r.jobs.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) RecordStageError(stage string) {
	r.stageErrors.WithLabelValues(stage).Inc()
}

func (r *Recorder) RecordDecision(label models.Label) {
	r.decisions.WithLabelValues(string(label)).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// SetQueueDepth matches queue.DepthFunc.
func (r *Recorder) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}
