package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	pkgcache "ProTrdx/pkg/cache"
	xhttp "ProTrdx/pkg/http"
	applogger "ProTrdx/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu    sync.Mutex
	types []string
	tasks []json.RawMessage
	err   error
}

func (p *capturePublisher) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	if p.err != nil {
		return p.err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, msgType)
	p.tasks = append(p.tasks, b)
	return nil
}

func newTestRunner(t *testing.T, pub *capturePublisher, symbols ...string) (*Runner, *pkgcache.MemoryCache) {
	t.Helper()
	store := newStoreWithTickers(t, symbols...)
	locks := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = locks.Close() })
	return NewRunner(store, pub, locks, applogger.NewNop()), locks
}

func TestRunnerQueuesPipelineTask(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	r, _ := newTestRunner(t, pub, "AAPL")

	id, err := r.TriggerRun(ctx, "AAPL")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := r.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobRunning, job.Status)

	require.Len(t, pub.tasks, 1)
	assert.Equal(t, TaskPipelineRun, pub.types[0])
	var task PipelineTask
	require.NoError(t, json.Unmarshal(pub.tasks[0], &task))
	assert.Equal(t, id, task.JobID)
	assert.Equal(t, "AAPL", task.Ticker)
	assert.Equal(t, RunLockKey("AAPL"), task.LockKey)
}

func TestRunnerRejectsConcurrentTrigger(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	r, locks := newTestRunner(t, pub, "AAPL")

	_, err := r.TriggerRun(ctx, "")
	require.NoError(t, err)
	_, err = r.TriggerRun(ctx, "")
	assert.ErrorIs(t, err, errs.ErrConflict)

	// A single-ticker run uses its own key.
	_, err = r.TriggerRun(ctx, "AAPL")
	require.NoError(t, err)

	require.NoError(t, locks.Unlock(ctx, RunLockKey("")))
	_, err = r.TriggerRun(ctx, "")
	assert.NoError(t, err)

	jobs, err := r.ListJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestRunnerUnknownAndInactiveTickers(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	r, _ := newTestRunner(t, pub, "AAPL")

	_, err := r.TriggerRun(ctx, "ZZZ")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	tk, err := r.store.GetTickerBySymbol(ctx, "AAPL")
	require.NoError(t, err)
	require.NoError(t, r.store.SetTickerActive(ctx, tk.ID, false))
	_, err = r.TriggerRun(ctx, "AAPL")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	jobs, err := r.ListJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, pub.tasks)
}

func TestRunnerEnqueueFailureFailsJobAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{err: errors.New("queue closed")}
	r, locks := newTestRunner(t, pub, "AAPL")

	_, err := r.TriggerRun(ctx, "")
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)

	jobs, err := r.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobFail, jobs[0].Status)

	ok, err := locks.TryLock(ctx, RunLockKey(""), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock must be released")
}

type stubRunner struct {
	job *models.Job
	err error
	got RunRequest
}

func (s *stubRunner) Run(_ context.Context, req RunRequest) (*models.Job, error) {
	s.got = req
	return s.job, s.err
}

func TestPipelineJobReleasesLock(t *testing.T) {
	ctx := context.Background()
	locks := pkgcache.NewMemoryCache()
	defer locks.Close()
	ok, err := locks.TryLock(ctx, RunLockKey(""), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	runner := &stubRunner{err: errs.New(errs.ErrJobTerminal, "test", "done")}
	job := NewPipelineJob(runner, locks, applogger.NewNop())
	payload, _ := json.Marshal(PipelineTask{RunRequest: RunRequest{JobID: "j1"}, LockKey: RunLockKey("")})

	require.NoError(t, job.Handle(ctx, payload))
	assert.Equal(t, "j1", runner.got.JobID)

	ok, err = locks.TryLock(ctx, RunLockKey(""), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

type recordingNotifier struct {
	err      error
	captions []string
}

func (n *recordingNotifier) Name() string { return "recording" }
func (n *recordingNotifier) Notify(_ context.Context, caption, _ string) error {
	n.captions = append(n.captions, caption)
	return n.err
}

func TestNotifyJobReturnsDeliveryError(t *testing.T) {
	ctx := context.Background()
	payload, _ := json.Marshal(NotifyTask{JobID: "j1", Ticker: "AAPL", Caption: "AAPL TRADE_OK"})

	ok := &recordingNotifier{}
	require.NoError(t, NewNotifyJob(ok, nil, nil).Handle(ctx, payload))
	assert.Equal(t, []string{"AAPL TRADE_OK"}, ok.captions)

	bad := &recordingNotifier{err: errors.New("telegram 502")}
	assert.Error(t, NewNotifyJob(bad, nil, nil).Handle(ctx, payload))
}

func TestNotifyJobDropsPermanentRejections(t *testing.T) {
	ctx := context.Background()
	payload, _ := json.Marshal(NotifyTask{JobID: "j1", Ticker: "AAPL", Caption: "AAPL TRADE_OK"})

	rejected := &recordingNotifier{err: errors.Join(
		fmt.Errorf("telegram sendDocument: %w", &xhttp.StatusError{Code: 400, Body: "chat not found"}),
		fmt.Errorf("slack webhook: %w", &xhttp.StatusError{Code: 404, Body: "no_service"}),
	)}
	assert.NoError(t, NewNotifyJob(rejected, nil, nil).Handle(ctx, payload))

	mixed := &recordingNotifier{err: errors.Join(
		fmt.Errorf("telegram sendDocument: %w", &xhttp.StatusError{Code: 400, Body: "chat not found"}),
		fmt.Errorf("slack webhook: %w", &xhttp.StatusError{Code: 503, Body: "busy"}),
	)}
	assert.Error(t, NewNotifyJob(mixed, nil, nil).Handle(ctx, payload))

	throttled := &recordingNotifier{err: &xhttp.StatusError{Code: 429}}
	assert.Error(t, NewNotifyJob(throttled, nil, nil).Handle(ctx, payload))
}
