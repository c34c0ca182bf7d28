package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ProTrdx/pkg/logger"
)

// MemoryQueue is a bounded in-process worker pool. Enqueue never blocks:
// a full buffer fails with ErrQueueFull.
type MemoryQueue struct {
	registry
	config  QueueConfig
	msgs    chan Message
	depth   DepthFunc
	wg      sync.WaitGroup
	timers  sync.WaitGroup
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// MemoryQueueOption configures MemoryQueue.
type MemoryQueueOption func(*MemoryQueue)

// WithMemoryDepth reports the buffer length after every enqueue and dequeue.
func WithMemoryDepth(fn DepthFunc) MemoryQueueOption {
	return func(q *MemoryQueue) { q.depth = fn }
}

func NewMemoryQueue(lgr *logger.Logger, config QueueConfig, opts ...MemoryQueueOption) *MemoryQueue {
	config.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	q := &MemoryQueue{
		registry: newRegistry(lgr),
		config:   config,
		msgs:     make(chan Message, config.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}
	q.running = true
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("memory queue started",
		logger.Int("workers", q.config.Workers),
		logger.Int("size", q.config.QueueSize))
	return nil
}

// Stop stops accepting work, drains what is buffered and waits for workers.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.mu.Unlock()

	q.cancel()
	q.timers.Wait()
	close(q.msgs)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		q.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		q.logger.Info("memory queue stopped gracefully")
		return nil
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	if _, ok := q.lookup(msgType); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, msgType)
	}
	msg, err := newMessage(msgType, payload)
	if err != nil {
		return err
	}
	return q.push(msg)
}

func (q *MemoryQueue) push(msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return ErrNotRunning
	}
	select {
	case q.msgs <- msg:
		q.report()
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of buffered messages.
func (q *MemoryQueue) Len() int { return len(q.msgs) }

func (q *MemoryQueue) report() {
	if q.depth != nil {
		q.depth(len(q.msgs))
	}
}

func (q *MemoryQueue) worker(id int) {
	defer q.wg.Done()
	q.logger.Debug("queue worker started", logger.Int("worker_id", id))
	for msg := range q.msgs {
		q.report()
		// Buffered work still runs after Stop; handlers get a live context.
		if q.dispatch(context.WithoutCancel(q.ctx), msg, q.config.RetryLimit) != outcomeRetry {
			continue
		}
		msg.Attempts++
		q.scheduleRetry(msg)
	}
}

func (q *MemoryQueue) scheduleRetry(msg Message) {
	q.timers.Add(1)
	go func() {
		defer q.timers.Done()
		t := time.NewTimer(q.config.RetryDelay)
		defer t.Stop()
		select {
		case <-q.ctx.Done():
			q.logger.Warn("retry dropped on shutdown",
				logger.String("id", msg.ID),
				logger.String("type", msg.Type))
		case <-t.C:
			if err := q.push(msg); err != nil {
				q.logger.Error("retry enqueue failed",
					logger.String("id", msg.ID),
					logger.Error(err))
			}
		}
	}()
}
