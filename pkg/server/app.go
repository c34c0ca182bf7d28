package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"ProTrdx/internal/domain/models"
	"ProTrdx/internal/domain/repository"
	"ProTrdx/internal/handler/ws"
	"ProTrdx/internal/usecase"
	pkgcache "ProTrdx/pkg/cache"
	pkgch "ProTrdx/pkg/clickhouse"
	"ProTrdx/pkg/config"
	xhttp "ProTrdx/pkg/http"
	pkgkafka "ProTrdx/pkg/kafka"
	applogger "ProTrdx/pkg/logger"
	"ProTrdx/pkg/queue"
)

// Deps lists what the App starts and closes. Consumer, RunHandler, Redis,
// ClickHouse and Producer are nil when their backend is disabled.
type Deps struct {
	Config     *config.Config
	Logger     *applogger.Logger
	HTTP       *xhttp.Server
	Tasks      queue.Queue
	Jobs       []queue.Job
	Pipeline   *usecase.Pipeline
	Scheduler  *usecase.Scheduler
	Watchlist  *usecase.WatchlistService
	Consumer   *pkgkafka.Consumer
	RunHandler pkgkafka.MessageHandler
	Hub        *ws.Hub
	Store      repository.Store
	Cache      pkgcache.Service
	Redis      *pkgcache.RedisCache
	ClickHouse *pkgch.Client
	Producer   *pkgkafka.Producer
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
	logger      *applogger.Logger
	tasksActive bool
}

func New(d Deps) *App {
	l := d.Logger
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{Deps: d, logger: l}
}

func (a *App) startTasks() error {
	if a.tasksActive {
		return nil
	}
	for _, job := range a.Jobs {
		a.Tasks.RegisterJob(job)
	}
	if err := a.Tasks.Start(); err != nil {
		return err
	}
	a.tasksActive = true
	return nil
}

// Run serves HTTP, the task workers, the daily scheduler and the Kafka
// run-trigger consumer until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.startTasks(); err != nil {
		a.close(ctx)
		return err
	}

	if a.Config.Scheduler.Enabled && a.Scheduler != nil {
		go func() {
			if err := a.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("scheduler stopped", applogger.Error(err))
			}
		}()
	}

	if a.Consumer != nil && a.RunHandler != nil {
		a.Consumer.RegisterHandler(a.RunHandler)
		if err := a.Consumer.Start(); err != nil {
			a.logger.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.logger.Info("kafka consumer started", applogger.String("topic", a.RunHandler.Topic()))
		}
	}

	if err := a.HTTP.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		a.shutdown(ctx)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	a.logger.Info("shutdown signal received", applogger.String("signal", sig.String()))

	cancel()
	a.shutdown(context.Background())
	return nil
}

// RunOnce executes one pipeline run in the foreground. Report delivery tasks
// are drained before it returns.
func (a *App) RunOnce(ctx context.Context, ticker string) (*models.Job, error) {
	defer a.close(ctx)
	if err := a.startTasks(); err != nil {
		return nil, err
	}
	return a.Pipeline.Run(ctx, usecase.RunRequest{Ticker: ticker})
}

// Seed inserts the default watchlist into an empty store.
func (a *App) Seed(ctx context.Context) (int, error) {
	defer a.close(ctx)
	return a.Watchlist.Seed(ctx)
}

// shutdown stops accepting work before closing infrastructure.
func (a *App) shutdown(ctx context.Context) {
	a.logger.Info("shutting down")

	if err := a.HTTP.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}
	if a.Consumer != nil {
		stopCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
		if err := a.Consumer.Stop(stopCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
		cancel()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	a.close(ctx)
	a.logger.Info("shutdown complete")
}

// close drains the task queue and releases clients.
func (a *App) close(ctx context.Context) {
	if a.tasksActive {
		stopCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
		if err := a.Tasks.Stop(stopCtx); err != nil {
			a.logger.Warn("task queue stop error", applogger.Error(err))
		}
		cancel()
		a.tasksActive = false
	}

	if err := a.Store.Close(); err != nil {
		a.logger.Warn("store close error", applogger.Error(err))
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	// The redis client is shared; the cache closes it when it wraps it.
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.logger.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.Redis != nil && a.Cache != pkgcache.Service(a.Redis) {
		if _, layered := a.Cache.(*pkgcache.LayeredCache); !layered {
			if err := a.Redis.Close(); err != nil {
				a.logger.Warn("redis close error", applogger.Error(err))
			}
		}
	}

	a.logger.RemoveCollector()
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.logger.Warn("kafka producer close error", applogger.Error(err))
		}
	}
}
