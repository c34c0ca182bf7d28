package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	drepo "ProTrdx/internal/domain/repository"
	"ProTrdx/internal/domain/service"
	"ProTrdx/internal/services/backtest"
	"ProTrdx/internal/services/features"
	"ProTrdx/internal/services/gate"
	"ProTrdx/internal/services/report"
	"ProTrdx/internal/services/research"
	"ProTrdx/internal/services/strategy"
	applogger "ProTrdx/pkg/logger"
	"ProTrdx/pkg/queue"

	"golang.org/x/sync/errgroup"
)

// RunRequest selects what one pipeline invocation processes. JobID resumes
// a RUNNING job created by the Runner; Ticker restricts the run to one symbol.
type RunRequest struct {
	JobID  string `json:"job_id,omitempty"`
	Ticker string `json:"ticker,omitempty"`
}

// NewsSourceFactory resolves a provider name once per job.
type NewsSourceFactory func(provider string) (service.NewsSource, error)

// DecisionRequester is the batch language model call.
type DecisionRequester interface {
	RequestDecisions(ctx context.Context, in strategy.Input) (*models.StrategyPayload, error)
}

// ChartWriter persists a rendered report artifact and returns its path.
type ChartWriter interface {
	Save(ticker string, snap models.IndicatorSnapshot, svg []byte) (string, error)
}

// PipelineConfig is the immutable part of the configuration a job reads.
type PipelineConfig struct {
	Concurrency  int
	LookbackDays int
	ChartBars    int
	// Defaults apply when no settings row was saved yet.
	Defaults models.Settings
}

// PipelineDeps groups the collaborators. Charts, Tasks, Archive and Events
// are optional.
type PipelineDeps struct {
	Store    drepo.Store
	Market   drepo.MarketData
	News     NewsSourceFactory
	Decider  DecisionRequester
	Charts   ChartWriter
	Tasks    queue.Publisher
	Archive  drepo.ResultArchive
	Events   drepo.JobEvents
	Metrics  drepo.Metrics
	Logger   *applogger.Logger
	Now      func() time.Time
	Research []research.Option
}

// Pipeline runs one job from ticker snapshot to the persisted results.
type Pipeline struct {
	PipelineDeps
	cfg PipelineConfig
}

func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 120
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = applogger.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics{}
	}
	return &Pipeline{PipelineDeps: deps, cfg: cfg}
}

// tickerWork accumulates one ticker's inputs across stages.
type tickerWork struct {
	ticker    models.Ticker
	news      research.Result
	snap      models.IndicatorSnapshot
	stats     models.BacktestStatistics
	chartPath string
	ok        bool
}

// Run executes the pipeline. Any error after the job was opened marks it
// FAIL with the error text as summary and is returned to the caller.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (job *models.Job, err error) {
	start := p.Now()
	job, err = p.openJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	log := p.Logger.With(applogger.String("job_id", job.ID))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("pipeline panic", applogger.Any("panic", rec), applogger.String("stack", string(debug.Stack())))
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
		if err != nil {
			p.fail(ctx, job, err, log)
		}
		p.Metrics.RecordJob(job.Status)
		p.Metrics.RecordLatency("pipeline", p.Now().Sub(start).Seconds())
	}()

	log.Info("pipeline started", applogger.String("ticker", req.Ticker))
	tickers, settings, err := p.snapshot(ctx, req.Ticker)
	if err != nil {
		return job, err
	}

	work := make([]*tickerWork, len(tickers))
	for i, t := range tickers {
		work[i] = &tickerWork{ticker: t}
	}

	p.collectResearch(ctx, work, settings.NewsProvider, log)
	p.computeFeatures(ctx, work, log)

	kept := make([]*tickerWork, 0, len(work))
	for _, w := range work {
		if !w.ok {
			continue
		}
		w.stats = backtest.Run(w.snap.History)
		kept = append(kept, w)
	}

	payload := p.decide(ctx, kept, settings.RiskThresholds, log)

	results := make([]models.JobResult, 0, len(kept))
	for _, w := range kept {
		decision, label := Reconcile(w.ticker.Symbol, w.snap, w.stats, settings.RiskThresholds, payload)
		sources := decision.Sources
		if len(sources) == 0 {
			sources = research.Sources(w.news.Items)
		}
		results = append(results, models.JobResult{
			Ticker:    w.ticker.Symbol,
			Decision:  label,
			Metrics:   w.stats,
			ChartPath: w.chartPath,
			Sources:   sources,
			Payload:   decision,
		})
	}

	summary, err := discoveriesSummary(payload)
	if err != nil {
		return job, err
	}
	finished := p.Now().UTC()
	commitStart := p.Now()
	if err := p.Store.CompleteJob(ctx, job.ID, results, summary, finished); err != nil {
		return job, fmt.Errorf("commit job results: %w", err)
	}
	p.Metrics.RecordLatency("commit", p.Now().Sub(commitStart).Seconds())

	job.Status = models.JobSuccess
	job.FinishedAt = &finished
	job.Summary = &summary
	job.Results = results
	for _, r := range results {
		p.Metrics.RecordDecision(r.Decision)
	}
	log.Info("pipeline finished",
		applogger.Int("tickers", len(tickers)),
		applogger.Int("results", len(results)),
		applogger.Duration("duration_ms", p.Now().Sub(start)))

	snaps := make(map[string]models.IndicatorSnapshot, len(kept))
	for _, w := range kept {
		snaps[w.ticker.Symbol] = w.snap
	}
	p.afterCommit(ctx, job, snaps, kept, log)
	return job, nil
}

func (p *Pipeline) openJob(ctx context.Context, jobID string) (*models.Job, error) {
	const op = "pipeline.open_job"
	if jobID != "" {
		job, err := p.Store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return nil, errs.New(errs.ErrJobTerminal, op, "job %s is %s", job.ID, job.Status)
		}
		return job, nil
	}
	job := &models.Job{StartedAt: p.Now().UTC(), Status: models.JobRunning}
	if err := p.Store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	p.publish(ctx, models.JobEvent{Type: models.EventJobStarted, JobID: job.ID, Status: job.Status}, p.Logger)
	return job, nil
}

// snapshot freezes the ticker set and the settings for the rest of the job.
func (p *Pipeline) snapshot(ctx context.Context, symbol string) ([]models.Ticker, models.Settings, error) {
	active, err := p.Store.ListActiveTickers(ctx)
	if err != nil {
		return nil, models.Settings{}, err
	}
	tickers := active
	if symbol != "" {
		tickers = nil
		for _, t := range active {
			if t.Symbol == symbol {
				tickers = append(tickers, t)
			}
		}
		if len(tickers) == 0 {
			return nil, models.Settings{}, errs.New(errs.ErrNotFound, "pipeline.snapshot", "no active ticker %s", symbol)
		}
	}

	settings, err := p.Store.GetSettings(ctx)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		def := p.cfg.Defaults
		if err := p.Store.SaveSettings(ctx, &def); err != nil {
			return nil, models.Settings{}, err
		}
		return tickers, def, nil
	case err != nil:
		return nil, models.Settings{}, err
	}
	return tickers, *settings, nil
}

func (p *Pipeline) collectResearch(ctx context.Context, work []*tickerWork, provider string, log *applogger.Logger) {
	var source service.NewsSource
	if p.News != nil {
		var err error
		if source, err = p.News(provider); err != nil {
			log.Warn("news provider unavailable", applogger.String("provider", provider), applogger.Error(err))
			source = nil
		}
	}
	opts := append([]research.Option{research.WithClock(p.Now)}, p.Research...)
	collector := research.NewCollector(source, log, opts...)

	start := p.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, w := range work {
		g.Go(func() error {
			w.news = collector.FetchFreshResult(gctx, w.ticker.Symbol)
			if w.news.Status == research.StatusFailed {
				p.Metrics.RecordStageError("research")
			}
			return nil
		})
	}
	_ = g.Wait()
	p.Metrics.RecordLatency("research", p.Now().Sub(start).Seconds())
}

func (p *Pipeline) computeFeatures(ctx context.Context, work []*tickerWork, log *applogger.Logger) {
	start := p.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, w := range work {
		g.Go(func() error {
			history, err := p.Market.FetchHistory(gctx, w.ticker, p.cfg.LookbackDays)
			if err == nil {
				w.snap, err = features.ComputeSnapshot(history)
			}
			if err != nil {
				log.Error("feature generation failed",
					applogger.String("ticker", w.ticker.Symbol),
					applogger.Error(err))
				p.Metrics.RecordStageError("features")
				return nil
			}
			w.snap.Ticker = w.ticker.Symbol
			w.ok = true
			w.chartPath = p.renderChart(w, log)
			return nil
		})
	}
	_ = g.Wait()
	p.Metrics.RecordLatency("features", p.Now().Sub(start).Seconds())
}

// renderChart returns "" when no artifact was produced.
func (p *Pipeline) renderChart(w *tickerWork, log *applogger.Logger) string {
	if p.Charts == nil {
		return ""
	}
	svg, err := report.RenderChart(w.ticker.Symbol, w.snap.History, p.cfg.ChartBars)
	if err == nil {
		var path string
		if path, err = p.Charts.Save(w.ticker.Symbol, w.snap, svg); err == nil {
			return path
		}
	}
	log.Warn("chart skipped", applogger.String("ticker", w.ticker.Symbol), applogger.Error(err))
	p.Metrics.RecordStageError("chart")
	return ""
}

// decide asks the model once for the batch and substitutes the fallback
// payload on failure.
func (p *Pipeline) decide(ctx context.Context, kept []*tickerWork, th models.RiskThresholds, log *applogger.Logger) *models.StrategyPayload {
	now := p.Now().UTC()
	symbols := make([]string, len(kept))
	for i, w := range kept {
		symbols[i] = w.ticker.Symbol
	}
	if len(kept) == 0 {
		return &models.StrategyPayload{AsOf: now.Format(time.RFC3339), Discoveries: json.RawMessage("[]")}
	}

	in := strategy.Input{
		Now:        now,
		Thresholds: th,
		Watchlist:  symbols,
		Research:   make(map[string][]models.NewsItem, len(kept)),
		Features:   make(map[string]models.IndicatorSnapshot, len(kept)),
		Backtests:  make(map[string]models.BacktestStatistics, len(kept)),
	}
	for _, w := range kept {
		in.Research[w.ticker.Symbol] = w.news.Items
		in.Features[w.ticker.Symbol] = w.snap
		in.Backtests[w.ticker.Symbol] = w.stats
	}

	start := p.Now()
	payload, err := p.Decider.RequestDecisions(ctx, in)
	if err == nil && payload == nil {
		err = errs.New(errs.ErrGeneration, "pipeline.decide", "empty payload")
	}
	p.Metrics.RecordLatency("decide", p.Now().Sub(start).Seconds())
	if err != nil {
		log.Error("strategy generation failed, using fallback payload",
			applogger.Strings("tickers", symbols),
			applogger.Error(err))
		p.Metrics.RecordStageError("decide")
		return models.FallbackPayload(now.Format(time.RFC3339), symbols)
	}
	return payload
}

// Reconcile builds the persisted decision for one ticker. The gate verdict
// is recomputed locally and always replaces the one the model returned; the
// model only contributes the advisory playbook and its notes. A fallback
// decision keeps its llm_failed reason and forces BLOCK, since that can only
// tighten the verdict.
func Reconcile(symbol string, snap models.IndicatorSnapshot, stats models.BacktestStatistics, th models.RiskThresholds, payload *models.StrategyPayload) (models.RecordedDecision, models.Label) {
	verdict := gate.Evaluate(snap, stats, th)
	rec := models.RecordedDecision{
		Ticker:     symbol,
		Playbook:   models.PlaybookNoTrade,
		Gatekeeper: verdict,
	}
	if d, ok := payload.DecisionFor(symbol); ok {
		if d.Playbook != "" {
			rec.Playbook = d.Playbook
		}
		rec.Reason = d.Reason
		rec.Sources = d.Sources
		rec.Plan = d.Plan
		if d.Gatekeeper != nil && slices.Contains(d.Gatekeeper.Reasons, models.ReasonLLMFailed) {
			rec.Gatekeeper = models.GateVerdict{
				Precheck: models.PrecheckBlock,
				Reasons:  append(slices.Clone(verdict.Reasons), models.ReasonLLMFailed),
			}
		}
	}
	return rec, gate.Label(rec.Gatekeeper, rec.Playbook)
}

func discoveriesSummary(payload *models.StrategyPayload) (string, error) {
	disc := payload.Discoveries
	if len(disc) == 0 || string(disc) == "null" {
		disc = json.RawMessage("[]")
	}
	b, err := json.Marshal(struct {
		Discoveries json.RawMessage `json:"discoveries"`
	}{disc})
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	return string(b), nil
}

// afterCommit runs the best-effort side effects. None of them can change
// the job outcome.
func (p *Pipeline) afterCommit(ctx context.Context, job *models.Job, snaps map[string]models.IndicatorSnapshot, kept []*tickerWork, log *applogger.Logger) {
	if p.Tasks != nil {
		for i, r := range job.Results {
			if r.ChartPath == "" {
				continue
			}
			task := NotifyTask{
				JobID:     job.ID,
				Ticker:    r.Ticker,
				Caption:   report.Caption(kept[i].snap, r.Metrics, r.Payload),
				ChartPath: r.ChartPath,
			}
			if err := p.Tasks.Enqueue(ctx, TaskNotifyReport, task); err != nil {
				log.Warn("notification not queued", applogger.String("ticker", r.Ticker), applogger.Error(err))
			}
		}
	}

	if p.Archive != nil {
		if err := p.Archive.ArchiveResults(ctx, job, snaps); err != nil {
			log.Warn("result archive failed", applogger.Error(err))
		}
	}
	p.publish(ctx, models.JobEvent{
		Type:    models.EventJobFinished,
		JobID:   job.ID,
		Status:  job.Status,
		Summary: *job.Summary,
		Results: job.Results,
	}, log)
}

func (p *Pipeline) fail(ctx context.Context, job *models.Job, cause error, log *applogger.Logger) {
	finished := p.Now().UTC()
	msg := cause.Error()
	log.Error("pipeline failed", applogger.Error(cause))
	// The caller's context may be the reason for the failure.
	if err := p.Store.FailJob(context.WithoutCancel(ctx), job.ID, msg, finished); err != nil {
		log.Error("mark job failed", applogger.Error(err))
	}
	job.Status = models.JobFail
	job.FinishedAt = &finished
	job.Summary = &msg
	job.Results = nil
	p.publish(ctx, models.JobEvent{Type: models.EventJobFailed, JobID: job.ID, Status: job.Status, Summary: msg}, log)
}

func (p *Pipeline) publish(ctx context.Context, ev models.JobEvent, log *applogger.Logger) {
	if p.Events == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = p.Now().UTC()
	}
	if err := p.Events.PublishJobEvent(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn("job event not published", applogger.String("type", ev.Type), applogger.Error(err))
	}
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordJob(models.JobStatus)    {}
func (NopMetrics) RecordStageError(string)       {}
func (NopMetrics) RecordDecision(models.Label)   {}
func (NopMetrics) RecordLatency(string, float64) {}

// EventFanout publishes every event to each sink, joining failures.
type EventFanout []drepo.JobEvents

func (f EventFanout) PublishJobEvent(ctx context.Context, ev models.JobEvent) error {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed []error
	)
	for _, sink := range f {
		wg.Add(1)
		go func(s drepo.JobEvents) {
			defer wg.Done()
			if err := s.PublishJobEvent(ctx, ev); err != nil {
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
			}
		}(sink)
	}
	wg.Wait()
	return errors.Join(failed...)
}
