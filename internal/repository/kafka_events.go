package repository

import (
	"context"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	pkgkafka "ProTrdx/pkg/kafka"
)

// EventProducer is the slice of the Kafka producer used for job events.
type EventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaJobEvents publishes job lifecycle events keyed by job ID. Finished
// jobs additionally emit one message per result keyed by ticker.
type KafkaJobEvents struct {
	producer     EventProducer
	topic        string
	resultsTopic string
}

func NewKafkaJobEvents(producer EventProducer, topic string) *KafkaJobEvents {
	return &KafkaJobEvents{producer: producer, topic: topic, resultsTopic: topic + ".results"}
}

func (p *KafkaJobEvents) PublishJobEvent(ctx context.Context, ev models.JobEvent) error {
	const op = "kafka.publish_job_event"
	results := ev.Results
	ev.Results = nil
	if err := p.producer.Publish(ctx, p.topic, []byte(ev.JobID), ev); err != nil {
		return errs.Wrap(errs.ErrUpstreamUnavailable, op, err)
	}
	if len(results) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(results))
	for i, r := range results {
		msgs[i] = pkgkafka.Message{Key: []byte(r.Ticker), Value: r}
	}
	if err := p.producer.PublishBatch(ctx, p.resultsTopic, msgs); err != nil {
		return errs.Wrap(errs.ErrUpstreamUnavailable, op, err)
	}
	return nil
}
