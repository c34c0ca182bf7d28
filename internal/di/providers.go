package di

import (
	"context"
	"fmt"
	"time"

	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/domain/repository"
	"ProTrdx/internal/domain/service"
	"ProTrdx/internal/handler/api"
	"ProTrdx/internal/handler/health"
	"ProTrdx/internal/handler/ws"
	internalrepo "ProTrdx/internal/repository"
	cachesvc "ProTrdx/internal/service/cache"
	"ProTrdx/internal/service/finnhub"
	"ProTrdx/internal/service/llm"
	"ProTrdx/internal/service/notify"
	"ProTrdx/internal/service/ratelimit"
	"ProTrdx/internal/services/report"
	"ProTrdx/internal/services/research"
	"ProTrdx/internal/services/strategy"
	"ProTrdx/internal/usecase"
	pkgcache "ProTrdx/pkg/cache"
	pkgch "ProTrdx/pkg/clickhouse"
	"ProTrdx/pkg/config"
	xhttp "ProTrdx/pkg/http"
	pkgkafka "ProTrdx/pkg/kafka"
	applogger "ProTrdx/pkg/logger"
	"ProTrdx/pkg/metrics"
	"ProTrdx/pkg/queue"
	"ProTrdx/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	serviceName = "protrdx"
	userAgent   = serviceName + "-pipeline"

	// maxRunRequestBytes bounds run-trigger messages; a request is one symbol.
	maxRunRequestBytes = 4 << 10
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. Error logs are aggregated
// and shipped to the logs topic when a producer is available.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
			Service:        serviceName,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry returns the registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the pipeline metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Recorder {
	return metrics.New(reg)
}

func usesRedis(cfg *config.Config) bool {
	return cfg.Storage.Backend == "redis" || cfg.Queue.Backend == "redis" ||
		cfg.Cache.Backend == "redis" || cfg.Cache.Backend == "layered"
}

// ProvideRedisCache connects to Redis when any backend needs it. The client
// is shared by the store, the task queue and the cache.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !usesRedis(cfg) {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/2, 30*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideStore opens the configured job, ticker and settings store.
func ProvideStore(cfg *config.Config, rc *pkgcache.RedisCache) (repository.Store, error) {
	if cfg.Storage.Backend == "redis" {
		return internalrepo.NewRedisStore(rc.Client(), cfg.Redis.Prefix), nil
	}
	store, err := internalrepo.NewSQLiteStore(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	return store, nil
}

// ProvideCache returns the cache used for history memoization and run locks.
func ProvideCache(cfg *config.Config, rc *pkgcache.RedisCache) pkgcache.Service {
	switch cfg.Cache.Backend {
	case "redis":
		return rc
	case "layered":
		return pkgcache.NewLayeredCache(rc,
			pkgcache.WithLayeredMemorySize(cfg.Cache.MaxEntries),
			pkgcache.WithLayeredMemoryTTL(cfg.Cache.HistoryTTL),
		)
	default:
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MaxEntries))
	}
}

// ProvideClickHouseClient connects and creates the analytics tables, or
// returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
		if cerr := client.Close(); cerr != nil {
			l.Warn("clickhouse close failed", applogger.Error(cerr))
		}
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse schema ready", applogger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

// ProvideMarketData picks the candle provider and puts the history cache in
// front of it. Finnhub fetches are copied into ClickHouse when it is on.
func ProvideMarketData(cfg *config.Config, c pkgcache.Service, ch *pkgch.Client, l *applogger.Logger) repository.MarketData {
	var (
		next repository.MarketData
		opts []cachesvc.Option
	)
	switch cfg.MarketData.Provider {
	case "clickhouse":
		next = internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Database, l)
	default:
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.MarketData.Timeout), xhttp.WithHeader("User-Agent", userAgent))
		next = finnhub.New(client, cfg.MarketData.FinnhubURL, cfg.MarketData.APIKey, cfg.MarketData.RateLimitPerMinute, l)
		if ch != nil {
			opts = append(opts, cachesvc.WithCandleSink(internalrepo.NewCHCandleStore(ch, cfg.ClickHouse.Database, l)))
		}
	}
	return cachesvc.NewMarketData(next, c, cfg.Cache.HistoryTTL, l, opts...)
}

// ProvideNewsFactory resolves the provider named in the saved settings.
func ProvideNewsFactory(cfg *config.Config) usecase.NewsSourceFactory {
	client := xhttp.NewClient(xhttp.WithTimeout(20*time.Second), xhttp.WithHeader("User-Agent", userAgent))
	rc := research.Config{
		PerplexityURL: cfg.News.PerplexityURL,
		PerplexityKey: cfg.News.PerplexityKey,
		TavilyURL:     cfg.News.TavilyURL,
		TavilyKey:     cfg.News.TavilyKey,
		FinnhubURL:    cfg.News.FinnhubURL,
		FinnhubKey:    cfg.MarketData.APIKey,
		ResultSize:    cfg.News.ResultSize,
	}
	return func(provider string) (service.NewsSource, error) {
		return research.NewSource(provider, rc, client)
	}
}

// ProvideDecider builds the language model requester.
func ProvideDecider(cfg *config.Config, l *applogger.Logger) (*strategy.Requester, error) {
	model, err := llm.NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	l.Info("llm ready", applogger.String("provider", model.Provider()), applogger.String("model", model.Model()))
	return strategy.NewRequester(model, l, strategy.WithRetries(cfg.LLM.Retries)), nil
}

func ProvideNotifier(cfg *config.Config) *notify.Multi {
	return notify.FromConfig(cfg)
}

func ProvideChartStore(cfg *config.Config) *report.ChartStore {
	return report.NewChartStore(cfg.Pipeline.ChartsDir)
}

// ProvideQueue creates the background task queue. Jobs are registered by
// ProvideJobs before it starts.
func ProvideQueue(cfg *config.Config, l *applogger.Logger, rc *pkgcache.RedisCache, rec *metrics.Recorder) queue.Queue {
	qc := queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		QueueSize:  cfg.Queue.QueueSize,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}
	if cfg.Queue.Backend == "redis" {
		// Validate has already rejected unknown modes.
		mode, _ := queue.ParseMode(cfg.Queue.Mode)
		return queue.NewRedisQueue(l, qc, rc.Client(), mode,
			queue.WithKeyPrefix(cfg.Redis.Prefix+":tasks"),
			queue.WithRedisDepth(rec.SetQueueDepth),
		)
	}
	return queue.NewMemoryQueue(l, qc, queue.WithMemoryDepth(rec.SetQueueDepth))
}

func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

// ProvideJobEvents fans job events out to websocket clients and, when
// enabled, the Kafka events topic.
func ProvideJobEvents(cfg *config.Config, hub *ws.Hub, producer *pkgkafka.Producer) usecase.EventFanout {
	sinks := usecase.EventFanout{hub}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaJobEvents(producer, cfg.Kafka.EventsTopic))
	}
	return sinks
}

// ProvideResultArchive returns the ClickHouse archive, or nil.
func ProvideResultArchive(cfg *config.Config, ch *pkgch.Client) repository.ResultArchive {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHResultArchive(ch, cfg.ClickHouse.Database)
}

// ProvideSettingsService seeds the defaults from configuration.
func ProvideSettingsService(cfg *config.Config, store repository.Store) *usecase.SettingsService {
	return usecase.NewSettingsService(store, settingsDefaults(cfg))
}

func settingsDefaults(cfg *config.Config) models.Settings {
	return usecase.DefaultSettings(cfg.News.Provider, cfg.Scheduler.Timezone, cfg.Scheduler.CronHour, models.RiskThresholds{
		SizeRiskPct:  cfg.Risk.SizeRiskPct,
		MaxSpreadPct: cfg.Risk.MaxSpreadPct,
		MinVolRel:    cfg.Risk.MinVolRel,
		MinSharpe:    cfg.Risk.MinSharpe,
		MaxDrawdown:  cfg.Risk.MaxDrawdown,
		MinHitRate:   cfg.Risk.MinHitRate,
		MinSample:    cfg.Risk.MinSample,
	})
}

func ProvideWatchlistService(store repository.Store, l *applogger.Logger) *usecase.WatchlistService {
	return usecase.NewWatchlistService(store, l)
}

// ProvidePipeline wires the job stages. Reports are queued for delivery only
// when a notification channel is configured.
func ProvidePipeline(
	cfg *config.Config,
	store repository.Store,
	market repository.MarketData,
	news usecase.NewsSourceFactory,
	decider *strategy.Requester,
	charts *report.ChartStore,
	tasks queue.Queue,
	notifier *notify.Multi,
	archive repository.ResultArchive,
	events usecase.EventFanout,
	rec *metrics.Recorder,
	l *applogger.Logger,
) *usecase.Pipeline {
	deps := usecase.PipelineDeps{
		Store:    store,
		Market:   market,
		News:     news,
		Decider:  decider,
		Charts:   charts,
		Archive:  archive,
		Events:   events,
		Metrics:  rec,
		Logger:   l.With(applogger.String("component", "pipeline")),
		Research: []research.Option{research.WithWindow(cfg.News.Window)},
	}
	if notifier.Enabled() {
		deps.Tasks = tasks
	}
	return usecase.NewPipeline(deps, usecase.PipelineConfig{
		Concurrency:  cfg.Pipeline.Concurrency,
		LookbackDays: cfg.MarketData.LookbackDays,
		ChartBars:    cfg.Pipeline.ChartBars,
		Defaults:     settingsDefaults(cfg),
	})
}

func ProvideRunner(cfg *config.Config, store repository.Store, tasks queue.Queue, locks pkgcache.Service, l *applogger.Logger) *usecase.Runner {
	return usecase.NewRunner(store, tasks, locks, l.With(applogger.String("component", "runner")),
		usecase.WithRunLockTTL(cfg.Pipeline.RunLockTTL),
	)
}

// ProvideJobs lists the queue handlers for pipeline runs and report
// delivery.
func ProvideJobs(p *usecase.Pipeline, locks pkgcache.Service, notifier *notify.Multi, rec *metrics.Recorder, l *applogger.Logger) []queue.Job {
	return []queue.Job{
		usecase.NewPipelineJob(p, locks, l),
		usecase.NewNotifyJob(notifier, rec, l),
	}
}

func ProvideScheduler(settings *usecase.SettingsService, runner *usecase.Runner, l *applogger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(settings, runner, l.With(applogger.String("component", "scheduler")))
}

// ProvideRunLimiter throttles the run endpoints per client IP.
func ProvideRunLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RunPerMinute, cfg.Server.RunBurst, 10*time.Minute)
}

func ProvideAPIHandler(
	cfg *config.Config,
	runner *usecase.Runner,
	settings *usecase.SettingsService,
	watchlist *usecase.WatchlistService,
	charts *report.ChartStore,
	limiter *ratelimit.Limiter,
	l *applogger.Logger,
) *api.Handler {
	return api.NewHandler(runner, settings, watchlist, charts, limiter, cfg.Auth.AdminPassword, l)
}

// ProvideHealth registers a readiness check per configured backend.
func ProvideHealth(store repository.Store, rc *pkgcache.RedisCache, ch *pkgch.Client, l *applogger.Logger) *health.Handler {
	h := health.NewHandler(2*time.Second, l)
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		h.Add("store", p.Ping)
	}
	if rc != nil {
		h.Add("redis", func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() })
	}
	if ch != nil {
		h.Add("clickhouse", ch.Health)
	}
	return h
}

// ProvideHTTPServer mounts the REST API, the websocket endpoint and the
// health endpoints.
func ProvideHTTPServer(cfg *config.Config, h *api.Handler, hub *ws.Hub, hc *health.Handler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithRegistry(reg), xhttp.WithSlowRequest(cfg.Metrics.SlowThreshold))
	}
	return xhttp.NewServer(xhttp.Handlers{h, hub, hc}, l, opts...)
}

// ProvideKafkaConsumer creates the run-trigger consumer, or nil when Kafka is
// off.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerLogger(l)
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.LoggingHook(l),
		pkgkafka.MaxSizeHook(maxRunRequestBytes),
	))
	return consumer, nil
}

func ProvideKafkaRunHandler(cfg *config.Config, runner *usecase.Runner, l *applogger.Logger) *usecase.KafkaRunHandler {
	return usecase.NewKafkaRunHandler(cfg.Kafka.RunTopic, runner, l)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	tasks queue.Queue,
	jobs []queue.Job,
	pipeline *usecase.Pipeline,
	scheduler *usecase.Scheduler,
	watchlist *usecase.WatchlistService,
	consumer *pkgkafka.Consumer,
	runHandler *usecase.KafkaRunHandler,
	hub *ws.Hub,
	store repository.Store,
	c pkgcache.Service,
	rc *pkgcache.RedisCache,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
) *server.App {
	return server.New(server.Deps{
		Config:     cfg,
		Logger:     l,
		HTTP:       httpServer,
		Tasks:      tasks,
		Jobs:       jobs,
		Pipeline:   pipeline,
		Scheduler:  scheduler,
		Watchlist:  watchlist,
		Consumer:   consumer,
		RunHandler: runHandler,
		Hub:        hub,
		Store:      store,
		Cache:      c,
		Redis:      rc,
		ClickHouse: ch,
		Producer:   producer,
	})
}
