package metrics

import (
	"testing"

	"ProTrdx/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordJob(models.JobSuccess)
	r.RecordJob(models.JobSuccess)
	r.RecordJob(models.JobFail)
	r.RecordStageError("features")
	r.RecordDecision(models.LabelNoTrade)
	r.RecordLatency("pipeline", 1.5)
	r.SetQueueDepth(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.jobs.WithLabelValues("SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobs.WithLabelValues("FAIL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageErrors.WithLabelValues("features")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("NO_TRADE")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.queueDepth))

	n, err := testutil.GatherAndCount(reg, "protrdx_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
