package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches []LogBatch
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.(LogBatch))
	return nil
}

func TestCollectorAggregatesRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "protrdx.logs", Publisher: pub, Service: "protrdx"})

	for i := 0; i < 3; i++ {
		l.Error("llm request failed", String("stage", "decide"), Error(errors.New("timeout")))
	}
	l.Error("chart render failed", String("ticker", "AAPL"))
	l.Info("not collected")
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "protrdx.logs", pub.topics[0])
	b := pub.batches[0]
	assert.Equal(t, "protrdx", b.Service)
	require.Len(t, b.Entries, 2)
	assert.Equal(t, "llm request failed", b.Entries[0].Message)
	assert.Equal(t, 3, b.Entries[0].Count)
	assert.Equal(t, "timeout", b.Entries[0].Fields["error"])
	assert.Equal(t, 1, b.Entries[1].Count)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "t", Publisher: pub})
	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")
	c.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0].Entries, 2)
}
