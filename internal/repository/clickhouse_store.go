package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	pkgch "ProTrdx/pkg/clickhouse"
	applogger "ProTrdx/pkg/logger"
)

// ClickHouseSchema returns the idempotent DDL for the candle and archive tables.
func ClickHouseSchema(database string) []string {
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + database,
		`CREATE TABLE IF NOT EXISTS ` + database + `.daily_candles (
			symbol String,
			day    Date,
			open   Float64,
			high   Float64,
			low    Float64,
			close  Float64,
			volume Float64
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, day)`,
		`CREATE TABLE IF NOT EXISTS ` + database + `.job_results (
			job_id     String,
			finished   DateTime,
			ticker     String,
			decision   LowCardinality(String),
			playbook   LowCardinality(String),
			precheck   LowCardinality(String),
			reasons    Array(String),
			close      Float64,
			rsi        Float64,
			atr_pct    Float64,
			vol_rel    Float64,
			spread_pct Float64,
			sharpe     Float64,
			max_dd     Float64,
			hit_rate   Float64,
			n          UInt32,
			payload    String
		) ENGINE = MergeTree ORDER BY (ticker, finished)`,
	}
}

// CHCandleStore serves daily bars from ClickHouse and accepts writes to warm it.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
	now   func() time.Time
}

func NewCHCandleStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHCandleStore {
	return &CHCandleStore{db: ch.DB(), table: database + ".daily_candles", l: l, now: time.Now}
}

// FetchHistory reads bars newer than lookbackDays calendar days, oldest first.
func (s *CHCandleStore) FetchHistory(ctx context.Context, t models.Ticker, lookbackDays int) ([]models.Candle, error) {
	const op = "clickhouse.fetch_history"
	start := time.Now()
	from := s.now().UTC().AddDate(0, 0, -lookbackDays)

	// FINAL collapses rows re-inserted by StoreCandles.
	q := fmt.Sprintf(`
		SELECT day, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ? AND day >= ?
		ORDER BY day ASC
	`, s.table)
	rows, err := s.db.QueryContext(ctx, q, t.Symbol, from)
	if err != nil {
		s.l.Error("clickhouse fetch_history query error",
			applogger.String("table", s.table),
			applogger.String("ticker", t.Symbol),
			applogger.Error(err))
		return nil, errs.Wrap(errs.ErrUpstreamUnavailable, op, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, lookbackDays)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, errs.Wrap(errs.ErrUpstreamUnavailable, op, fmt.Errorf("scan candle: %w", err))
		}
		c.Time = c.Time.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrUpstreamUnavailable, op, err)
	}
	if len(out) == 0 {
		return nil, errs.New(errs.ErrUpstreamUnavailable, op, "no candles for %s", t.Symbol)
	}
	s.l.Debug("clickhouse fetch_history ok",
		applogger.String("ticker", t.Symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

// StoreCandles inserts bars in multi-row VALUES chunks.
func (s *CHCandleStore) StoreCandles(ctx context.Context, symbol string, candles []models.Candle) error {
	const chunkSize = 1000
	for start := 0; start < len(candles); start += chunkSize {
		end := start + chunkSize
		if end > len(candles) {
			end = len(candles)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, c := range candles[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, symbol, c.Time.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, day, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return errs.Wrap(errs.ErrPersistence, "clickhouse.store_candles", err)
		}
	}
	return nil
}

// CHResultArchive appends one analytics row per JobResult.
type CHResultArchive struct {
	ch    *pkgch.Client
	table string
}

func NewCHResultArchive(ch *pkgch.Client, database string) *CHResultArchive {
	return &CHResultArchive{ch: ch, table: database + ".job_results"}
}

func (a *CHResultArchive) ArchiveResults(ctx context.Context, job *models.Job, snapshots map[string]models.IndicatorSnapshot) error {
	if len(job.Results) == 0 {
		return nil
	}
	finished := job.StartedAt
	if job.FinishedAt != nil {
		finished = *job.FinishedAt
	}
	q := fmt.Sprintf(`INSERT INTO %s (job_id, finished, ticker, decision, playbook, precheck, reasons,
		close, rsi, atr_pct, vol_rel, spread_pct, sharpe, max_dd, hit_rate, n, payload)`, a.table)

	err := a.ch.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range job.Results {
			payload, err := json.Marshal(r.Payload)
			if err != nil {
				return err
			}
			snap := snapshots[r.Ticker]
			reasons := r.Payload.Gatekeeper.Reasons
			if reasons == nil {
				reasons = []string{}
			}
			if _, err := stmt.ExecContext(ctx,
				job.ID, finished.UTC(), r.Ticker, string(r.Decision), r.Payload.Playbook,
				string(r.Payload.Gatekeeper.Precheck), reasons,
				snap.Close, snap.RSI14, snap.ATRPct, snap.VolRel, snap.SpreadPct,
				r.Metrics.Sharpe, r.Metrics.MaxDrawdown, r.Metrics.HitRate, uint32(r.Metrics.N),
				string(payload),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, "clickhouse.archive_results", err)
	}
	return nil
}
