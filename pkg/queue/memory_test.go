package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ProTrdx/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notePayload struct {
	Ticker string `json:"ticker"`
}

func TestMemoryQueueDeliversAndDecodes(t *testing.T) {
	q := NewMemoryQueue(logger.NewNop(), QueueConfig{Workers: 2, QueueSize: 8})
	got := make(chan string, 4)
	q.RegisterJob(JobFunc{JobName: "notify", MsgType: "notify.report", Fn: func(_ context.Context, raw json.RawMessage) error {
		p, err := Decode[notePayload](raw)
		if err != nil {
			return err
		}
		got <- p.Ticker
		return nil
	}})
	require.NoError(t, q.Start())

	require.NoError(t, q.Enqueue(context.Background(), "notify.report", notePayload{Ticker: "AAPL"}))
	select {
	case tk := <-got:
		assert.Equal(t, "AAPL", tk)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	err := q.Enqueue(context.Background(), "unknown", nil)
	assert.ErrorIs(t, err, ErrUnknownType)

	require.NoError(t, q.Stop(context.Background()))
	assert.ErrorIs(t, q.Enqueue(context.Background(), "notify.report", notePayload{}), ErrNotRunning)
}

func TestMemoryQueueFull(t *testing.T) {
	block := make(chan struct{})
	q := NewMemoryQueue(logger.NewNop(), QueueConfig{Workers: 1, QueueSize: 1})
	started := make(chan struct{}, 1)
	q.RegisterJob(JobFunc{JobName: "slow", MsgType: "slow", Fn: func(context.Context, json.RawMessage) error {
		started <- struct{}{}
		<-block
		return nil
	}})
	require.NoError(t, q.Start())

	require.NoError(t, q.Enqueue(context.Background(), "slow", 1))
	<-started
	require.NoError(t, q.Enqueue(context.Background(), "slow", 2))
	assert.ErrorIs(t, q.Enqueue(context.Background(), "slow", 3), ErrQueueFull)

	close(block)
	require.NoError(t, q.Stop(context.Background()))
}

func TestMemoryQueueRetriesThenGivesUp(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	q := NewMemoryQueue(logger.NewNop(), QueueConfig{Workers: 1, RetryLimit: 2, RetryDelay: 10 * time.Millisecond})
	q.RegisterJob(JobFunc{JobName: "flaky", MsgType: "flaky", Fn: func(context.Context, json.RawMessage) error {
		if calls.Add(1) == 3 {
			close(done)
		}
		return errors.New("upstream down")
	}})
	require.NoError(t, q.Start())
	require.NoError(t, q.Enqueue(context.Background(), "flaky", nil))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retries not attempted")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	require.NoError(t, q.Stop(context.Background()))
}

func TestMemoryQueueRecoversPanics(t *testing.T) {
	ok := make(chan struct{})
	q := NewMemoryQueue(logger.NewNop(), QueueConfig{Workers: 1})
	q.RegisterJob(JobFunc{JobName: "boom", MsgType: "boom", Fn: func(context.Context, json.RawMessage) error {
		panic("bad")
	}})
	q.RegisterJob(JobFunc{JobName: "fine", MsgType: "fine", Fn: func(context.Context, json.RawMessage) error {
		close(ok)
		return nil
	}})
	require.NoError(t, q.Start())
	require.NoError(t, q.Enqueue(context.Background(), "boom", nil))
	require.NoError(t, q.Enqueue(context.Background(), "fine", nil))

	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
	require.NoError(t, q.Stop(context.Background()))
}
