package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements repository.Store on Redis. Jobs are JSON strings
// indexed by a sorted set on start time; results live in a list per job;
// tickers are a hash keyed by ID plus a symbol index.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

var _ repository.Store = (*RedisStore)(nil)

// redisReader is satisfied by both *redis.Client and *redis.Tx.
type redisReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *RedisStore) jobKey(id string) string     { return s.key("job", id) }
func (s *RedisStore) resultsKey(id string) string { return s.key("job", id, "results") }
func (s *RedisStore) jobIndex() string            { return s.key("jobs") }
func (s *RedisStore) tickersKey() string          { return s.key("tickers") }
func (s *RedisStore) symbolsKey() string          { return s.key("ticker_symbols") }
func (s *RedisStore) settingsKey() string         { return s.key("settings") }

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error { return nil }

func (s *RedisStore) CreateJob(ctx context.Context, job *models.Job) error {
	const op = "redis.create_job"
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = s.now().UTC()
	}
	if job.Status == "" {
		job.Status = models.JobRunning
	}
	data, err := json.Marshal(jobRecord(job))
	if err != nil {
		return persistence(op, err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.jobKey(job.ID), data, 0)
		p.ZAdd(ctx, s.jobIndex(), redis.Z{Score: float64(job.StartedAt.UnixNano()), Member: job.ID})
		return nil
	})
	return persistence(op, err)
}

func jobRecord(job *models.Job) models.Job {
	rec := *job
	rec.Results = nil
	return rec
}

func (s *RedisStore) loadJob(ctx context.Context, c redisReader, id, op string) (*models.Job, error) {
	data, err := c.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.New(errs.ErrNotFound, op, "job %s", id)
	}
	if err != nil {
		return nil, persistence(op, err)
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, persistence(op, err)
	}
	return &job, nil
}

func (s *RedisStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	const op = "redis.get_job"
	job, err := s.loadJob(ctx, s.client, id, op)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, s.resultsKey(id), 0, -1).Result()
	if err != nil {
		return nil, persistence(op, err)
	}
	job.Results = make([]models.JobResult, 0, len(raw))
	for _, r := range raw {
		var res models.JobResult
		if err := json.Unmarshal([]byte(r), &res); err != nil {
			return nil, persistence(op, err)
		}
		job.Results = append(job.Results, res)
	}
	sort.Slice(job.Results, func(i, j int) bool { return job.Results[i].Ticker < job.Results[j].Ticker })
	return job, nil
}

func (s *RedisStore) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	const op = "redis.list_jobs"
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.ZRevRange(ctx, s.jobIndex(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, persistence(op, err)
	}
	out := make([]models.Job, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence(op, err)
	}
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var job models.Job
		if err := json.Unmarshal([]byte(str), &job); err != nil {
			return nil, persistence(op, err)
		}
		out = append(out, job)
	}
	return out, nil
}

// finish runs fn under WATCH on the job key so a concurrent transition
// aborts the transaction instead of overwriting it.
func (s *RedisStore) finish(ctx context.Context, jobID, op string, fn func(job *models.Job, p redis.Pipeliner) error) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		job, err := s.loadJob(ctx, tx, jobID, op)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return errs.New(errs.ErrJobTerminal, op, "job %s is %s", jobID, job.Status)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			return fn(job, p)
		})
		return err
	}, s.jobKey(jobID))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrJobTerminal), errors.Is(err, errs.ErrPersistence):
		return err
	default:
		return persistence(op, err)
	}
}

func (s *RedisStore) CompleteJob(ctx context.Context, jobID string, results []models.JobResult, summary string, finishedAt time.Time) error {
	const op = "redis.complete_job"
	encoded := make([]interface{}, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for i := range results {
		r := &results[i]
		if _, dup := seen[r.Ticker]; dup {
			return errs.New(errs.ErrPersistence, op, "duplicate result for %s", r.Ticker)
		}
		seen[r.Ticker] = struct{}{}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.JobID = jobID
		if r.CreatedAt.IsZero() {
			r.CreatedAt = finishedAt
		}
		if r.Sources == nil {
			r.Sources = []string{}
		}
		b, err := json.Marshal(r)
		if err != nil {
			return persistence(op, err)
		}
		encoded = append(encoded, b)
	}

	return s.finish(ctx, jobID, op, func(job *models.Job, p redis.Pipeliner) error {
		ft := finishedAt.UTC()
		job.Status = models.JobSuccess
		job.FinishedAt = &ft
		job.Summary = &summary
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if len(encoded) > 0 {
			p.RPush(ctx, s.resultsKey(jobID), encoded...)
		}
		p.Set(ctx, s.jobKey(jobID), data, 0)
		return nil
	})
}

func (s *RedisStore) FailJob(ctx context.Context, jobID, message string, finishedAt time.Time) error {
	return s.finish(ctx, jobID, "redis.fail_job", func(job *models.Job, p redis.Pipeliner) error {
		ft := finishedAt.UTC()
		job.Status = models.JobFail
		job.FinishedAt = &ft
		job.Summary = &message
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		p.Set(ctx, s.jobKey(jobID), data, 0)
		return nil
	})
}

func (s *RedisStore) ListTickers(ctx context.Context) ([]models.Ticker, error) {
	const op = "redis.list_tickers"
	vals, err := s.client.HVals(ctx, s.tickersKey()).Result()
	if err != nil {
		return nil, persistence(op, err)
	}
	out := make([]models.Ticker, 0, len(vals))
	for _, v := range vals {
		var t models.Ticker
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, persistence(op, err)
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *RedisStore) ListActiveTickers(ctx context.Context) ([]models.Ticker, error) {
	all, err := s.ListTickers(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, t := range all {
		if t.Active {
			active = append(active, t)
		}
	}
	return active, nil
}

func (s *RedisStore) getTicker(ctx context.Context, c redisReader, id, op string) (*models.Ticker, error) {
	data, err := c.HGet(ctx, s.tickersKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.New(errs.ErrNotFound, op, "ticker %s", id)
	}
	if err != nil {
		return nil, persistence(op, err)
	}
	var t models.Ticker
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, persistence(op, err)
	}
	return &t, nil
}

func (s *RedisStore) GetTickerBySymbol(ctx context.Context, symbol string) (*models.Ticker, error) {
	const op = "redis.get_ticker"
	id, err := s.client.HGet(ctx, s.symbolsKey(), symbol).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errs.New(errs.ErrNotFound, op, "ticker %s", symbol)
	}
	if err != nil {
		return nil, persistence(op, err)
	}
	return s.getTicker(ctx, s.client, id, op)
}

func (s *RedisStore) CreateTicker(ctx context.Context, t *models.Ticker) error {
	const op = "redis.create_ticker"
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return persistence(op, err)
	}
	ok, err := s.client.HSetNX(ctx, s.symbolsKey(), t.Symbol, t.ID).Result()
	if err != nil {
		return persistence(op, err)
	}
	if !ok {
		return errs.New(errs.ErrConflict, op, "ticker %s already exists", t.Symbol)
	}
	if err := s.client.HSet(ctx, s.tickersKey(), t.ID, data).Err(); err != nil {
		_ = s.client.HDel(ctx, s.symbolsKey(), t.Symbol).Err()
		return persistence(op, err)
	}
	return nil
}

func (s *RedisStore) SetTickerActive(ctx context.Context, id string, active bool) error {
	const op = "redis.set_ticker_active"
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		t, err := s.getTicker(ctx, tx, id, op)
		if err != nil {
			return err
		}
		t.Active = active
		data, err := json.Marshal(t)
		if err != nil {
			return persistence(op, err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, s.tickersKey(), id, data)
			return nil
		})
		return err
	}, s.tickersKey())
	if err != nil && !errors.Is(err, errs.ErrNotFound) && !errors.Is(err, errs.ErrPersistence) {
		return persistence(op, err)
	}
	return err
}

func (s *RedisStore) DeleteTicker(ctx context.Context, id string) error {
	const op = "redis.delete_ticker"
	t, err := s.getTicker(ctx, s.client, id, op)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, s.tickersKey(), id)
		p.HDel(ctx, s.symbolsKey(), t.Symbol)
		return nil
	})
	return persistence(op, err)
}

func (s *RedisStore) GetSettings(ctx context.Context) (*models.Settings, error) {
	const op = "redis.get_settings"
	data, err := s.client.Get(ctx, s.settingsKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.New(errs.ErrNotFound, op, "settings not initialized")
	}
	if err != nil {
		return nil, persistence(op, err)
	}
	var st models.Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, persistence(op, fmt.Errorf("decode settings: %w", err))
	}
	return &st, nil
}

func (s *RedisStore) SaveSettings(ctx context.Context, st *models.Settings) error {
	st.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(st)
	if err != nil {
		return persistence("redis.save_settings", err)
	}
	return persistence("redis.save_settings", s.client.Set(ctx, s.settingsKey(), data, 0).Err())
}
