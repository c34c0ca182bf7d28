package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	pkgkafka "ProTrdx/pkg/kafka"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	topics  []string
	keys    [][]byte
	values  []interface{}
	batches map[string][]pkgkafka.Message
	err     error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return p.err
}

func (p *recordingProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	if p.batches == nil {
		p.batches = map[string][]pkgkafka.Message{}
	}
	p.batches[topic] = append(p.batches[topic], msgs...)
	return p.err
}

func TestKafkaJobEventsSplitsResults(t *testing.T) {
	prod := &recordingProducer{}
	ev := models.JobEvent{
		Type:      models.EventJobFinished,
		JobID:     "job-1",
		Status:    models.JobSuccess,
		Timestamp: time.Now(),
		Results:   []models.JobResult{{Ticker: "AAPL"}, {Ticker: "MSFT"}},
	}
	require.NoError(t, NewKafkaJobEvents(prod, "protrdx.jobs").PublishJobEvent(context.Background(), ev))

	require.Len(t, prod.values, 1)
	assert.Equal(t, "protrdx.jobs", prod.topics[0])
	assert.Equal(t, []byte("job-1"), prod.keys[0])
	assert.Nil(t, prod.values[0].(models.JobEvent).Results)

	res := prod.batches["protrdx.jobs.results"]
	require.Len(t, res, 2)
	assert.Equal(t, []byte("AAPL"), res[0].Key)
}

func TestKafkaJobEventsWrapsErrors(t *testing.T) {
	prod := &recordingProducer{err: errors.New("broker down")}
	err := NewKafkaJobEvents(prod, "t").PublishJobEvent(context.Background(), models.JobEvent{JobID: "x"})
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)
}
