package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/domain/repository"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    started_at  TEXT NOT NULL,
    finished_at TEXT,
    status      TEXT NOT NULL,
    summary     TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_started_at ON jobs(started_at);

CREATE TABLE IF NOT EXISTS job_results (
    id         TEXT PRIMARY KEY,
    job_id     TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    ticker     TEXT NOT NULL,
    decision   TEXT NOT NULL,
    metrics    TEXT NOT NULL,
    chart_path TEXT,
    sources    TEXT NOT NULL,
    payload    TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE (job_id, ticker)
);

CREATE TABLE IF NOT EXISTS tickers (
    id         TEXT PRIMARY KEY,
    symbol     TEXT NOT NULL UNIQUE,
    market     TEXT NOT NULL,
    active     INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    body       TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// SQLiteStore implements repository.Store on a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and creates if needed) the database at path and
// applies the schema. ":memory:" is accepted for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; also keeps one shared :memory: database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Ping checks that the database file is still reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// timeLayout keeps a fixed width so TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func persistence(op string, err error) error {
	return errs.Wrap(errs.ErrPersistence, op, err)
}

// Jobs

func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = s.now().UTC()
	}
	if job.Status == "" {
		job.Status = models.JobRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, started_at, status) VALUES (?, ?, ?)`,
		job.ID, formatTime(job.StartedAt), string(job.Status))
	return persistence("sqlite.create_job", err)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, summary FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.ErrNotFound, "sqlite.get_job", "job %s", id)
	}
	if err != nil {
		return nil, persistence("sqlite.get_job", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, ticker, decision, metrics, chart_path, sources, payload, created_at
		FROM job_results WHERE job_id = ? ORDER BY ticker`, id)
	if err != nil {
		return nil, persistence("sqlite.get_job_results", err)
	}
	defer rows.Close()

	job.Results = []models.JobResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, persistence("sqlite.get_job_results", err)
		}
		job.Results = append(job.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("sqlite.get_job_results", err)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, summary
		FROM jobs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, persistence("sqlite.list_jobs", err)
	}
	defer rows.Close()

	out := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, persistence("sqlite.list_jobs", err)
		}
		out = append(out, *job)
	}
	return out, persistence("sqlite.list_jobs", rows.Err())
}

// CompleteJob inserts every result and flips the job to SUCCESS in one
// transaction. A job that is no longer RUNNING is left untouched.
func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, results []models.JobResult, summary string, finishedAt time.Time) error {
	const op = "sqlite.complete_job"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireRunning(ctx, tx, jobID, op); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO job_results (id, job_id, ticker, decision, metrics, chart_path, sources, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return persistence(op, err)
	}
	defer stmt.Close()

	for i := range results {
		r := &results[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.JobID = jobID
		if r.CreatedAt.IsZero() {
			r.CreatedAt = finishedAt
		}
		metrics, sources, payload, err := encodeResult(r)
		if err != nil {
			return persistence(op, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, jobID, r.Ticker, string(r.Decision), metrics,
			nullString(r.ChartPath), sources, payload, formatTime(r.CreatedAt)); err != nil {
			return persistence(op, fmt.Errorf("insert result %s: %w", r.Ticker, err))
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, finished_at = ?, summary = ? WHERE id = ?`,
		string(models.JobSuccess), formatTime(finishedAt), summary, jobID); err != nil {
		return persistence(op, err)
	}
	return persistence(op, tx.Commit())
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID, message string, finishedAt time.Time) error {
	const op = "sqlite.fail_job"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireRunning(ctx, tx, jobID, op); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, finished_at = ?, summary = ? WHERE id = ?`,
		string(models.JobFail), formatTime(finishedAt), message, jobID); err != nil {
		return persistence(op, err)
	}
	return persistence(op, tx.Commit())
}

func requireRunning(ctx context.Context, tx *sql.Tx, jobID, op string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.New(errs.ErrNotFound, op, "job %s", jobID)
	}
	if err != nil {
		return persistence(op, err)
	}
	if models.JobStatus(status).Terminal() {
		return errs.New(errs.ErrJobTerminal, op, "job %s is %s", jobID, status)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.Job, error) {
	var (
		job               models.Job
		started, status   string
		finished, summary sql.NullString
	)
	if err := row.Scan(&job.ID, &started, &finished, &status, &summary); err != nil {
		return nil, err
	}
	t, err := parseTime(started)
	if err != nil {
		return nil, fmt.Errorf("job %s started_at: %w", job.ID, err)
	}
	job.StartedAt = t
	job.Status = models.JobStatus(status)
	if finished.Valid {
		ft, err := parseTime(finished.String)
		if err != nil {
			return nil, fmt.Errorf("job %s finished_at: %w", job.ID, err)
		}
		job.FinishedAt = &ft
	}
	if summary.Valid {
		job.Summary = &summary.String
	}
	return &job, nil
}

func scanResult(row scanner) (models.JobResult, error) {
	var (
		r                         models.JobResult
		decision, created         string
		metrics, sources, payload string
		chart                     sql.NullString
	)
	if err := row.Scan(&r.ID, &r.JobID, &r.Ticker, &decision, &metrics, &chart, &sources, &payload, &created); err != nil {
		return r, err
	}
	r.Decision = models.Label(decision)
	r.ChartPath = chart.String
	if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
		return r, fmt.Errorf("result %s metrics: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return r, fmt.Errorf("result %s sources: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
		return r, fmt.Errorf("result %s payload: %w", r.ID, err)
	}
	t, err := parseTime(created)
	if err != nil {
		return r, fmt.Errorf("result %s created_at: %w", r.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}

func encodeResult(r *models.JobResult) (metrics, sources, payload string, err error) {
	if r.Sources == nil {
		r.Sources = []string{}
	}
	m, err := json.Marshal(r.Metrics)
	if err != nil {
		return "", "", "", fmt.Errorf("encode metrics: %w", err)
	}
	src, err := json.Marshal(r.Sources)
	if err != nil {
		return "", "", "", fmt.Errorf("encode sources: %w", err)
	}
	p, err := json.Marshal(r.Payload)
	if err != nil {
		return "", "", "", fmt.Errorf("encode payload: %w", err)
	}
	return string(m), string(src), string(p), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Tickers

func (s *SQLiteStore) ListTickers(ctx context.Context) ([]models.Ticker, error) {
	return s.queryTickers(ctx, "sqlite.list_tickers",
		`SELECT id, symbol, market, active, created_at FROM tickers ORDER BY symbol`)
}

func (s *SQLiteStore) ListActiveTickers(ctx context.Context) ([]models.Ticker, error) {
	return s.queryTickers(ctx, "sqlite.list_active_tickers",
		`SELECT id, symbol, market, active, created_at FROM tickers WHERE active = 1 ORDER BY symbol`)
}

func (s *SQLiteStore) queryTickers(ctx context.Context, op, query string, args ...any) ([]models.Ticker, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence(op, err)
	}
	defer rows.Close()

	out := []models.Ticker{}
	for rows.Next() {
		t, err := scanTicker(rows)
		if err != nil {
			return nil, persistence(op, err)
		}
		out = append(out, t)
	}
	return out, persistence(op, rows.Err())
}

func scanTicker(row scanner) (models.Ticker, error) {
	var (
		t               models.Ticker
		market, created string
	)
	if err := row.Scan(&t.ID, &t.Symbol, &market, &t.Active, &created); err != nil {
		return t, err
	}
	t.Market = models.Market(market)
	ct, err := parseTime(created)
	if err != nil {
		return t, fmt.Errorf("ticker %s created_at: %w", t.Symbol, err)
	}
	t.CreatedAt = ct
	return t, nil
}

func (s *SQLiteStore) GetTickerBySymbol(ctx context.Context, symbol string) (*models.Ticker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, market, active, created_at FROM tickers WHERE symbol = ?`, symbol)
	t, err := scanTicker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.ErrNotFound, "sqlite.get_ticker", "ticker %s", symbol)
	}
	if err != nil {
		return nil, persistence("sqlite.get_ticker", err)
	}
	return &t, nil
}

func (s *SQLiteStore) CreateTicker(ctx context.Context, t *models.Ticker) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickers (id, symbol, market, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, string(t.Market), t.Active, formatTime(t.CreatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return errs.New(errs.ErrConflict, "sqlite.create_ticker", "ticker %s already exists", t.Symbol)
	}
	return persistence("sqlite.create_ticker", err)
}

func (s *SQLiteStore) SetTickerActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tickers SET active = ? WHERE id = ?`, active, id)
	return affectedOne(res, err, "sqlite.set_ticker_active", id)
}

func (s *SQLiteStore) DeleteTicker(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tickers WHERE id = ?`, id)
	return affectedOne(res, err, "sqlite.delete_ticker", id)
}

func affectedOne(res sql.Result, err error, op, id string) error {
	if err != nil {
		return persistence(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence(op, err)
	}
	if n == 0 {
		return errs.New(errs.ErrNotFound, op, "ticker %s", id)
	}
	return nil
}

// Settings

func (s *SQLiteStore) GetSettings(ctx context.Context) (*models.Settings, error) {
	var body, updated string
	err := s.db.QueryRowContext(ctx, `SELECT body, updated_at FROM settings WHERE id = 1`).Scan(&body, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.ErrNotFound, "sqlite.get_settings", "settings not initialized")
	}
	if err != nil {
		return nil, persistence("sqlite.get_settings", err)
	}
	var st models.Settings
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		return nil, persistence("sqlite.get_settings", err)
	}
	if t, err := parseTime(updated); err == nil {
		st.UpdatedAt = t
	}
	return &st, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, st *models.Settings) error {
	st.UpdatedAt = s.now().UTC()
	body, err := json.Marshal(st)
	if err != nil {
		return persistence("sqlite.save_settings", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (id, body, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		string(body), formatTime(st.UpdatedAt))
	return persistence("sqlite.save_settings", err)
}
