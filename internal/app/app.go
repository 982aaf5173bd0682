package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/common"
	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
	"github.com/hydrafrog/hydrafrog/internal/queue"
	"github.com/hydrafrog/hydrafrog/internal/services/crawler"
	"github.com/hydrafrog/hydrafrog/internal/services/scheduler"
	"github.com/hydrafrog/hydrafrog/internal/storage/sqlite"
)

// App owns the engine's long-lived components: the relational store, the
// job queue, the worker pool, the crawl service, and the scheduler.
type App struct {
	Config    *common.Config
	Storage   interfaces.StorageManager
	Queue     interfaces.QueueManager
	Crawler   *crawler.Service
	Scheduler *scheduler.Service
	workers   *queue.WorkerPool
	logger    arbor.ILogger
}

// New wires the application together. Components initialize in dependency
// order: storage, queue, services, workers.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := sqlite.NewManager(logger, &config.Storage.SQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	queueMgr, err := queue.NewManager(logger, &config.Storage.Badger, &config.Queue)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	crawlerService := crawler.NewService(storage, queueMgr, &config.Crawler, logger)
	schedulerService := scheduler.NewService(crawlerService, storage.Projects(), logger)

	workers := queue.NewWorkerPool(queueMgr, config.Queue.PollIntervalDuration(), config.Queue.Concurrency, logger)
	workers.RegisterHandler(models.JobTypeCrawl, crawlerService.Runner().HandleCrawlJob)

	return &App{
		Config:    config,
		Storage:   storage,
		Queue:     queueMgr,
		Crawler:   crawlerService,
		Scheduler: schedulerService,
		workers:   workers,
		logger:    logger,
	}, nil
}

// Start launches the worker pool and, if enabled, the scheduler.
func (a *App) Start(ctx context.Context) error {
	if err := a.workers.Start(); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	if a.Config.Scheduler.Enabled {
		if err := a.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		a.logger.Info().Msg("Scheduler disabled by configuration")
	}

	a.logger.Info().
		Str("environment", a.Config.Environment).
		Msg("Application started")
	return nil
}

// Close shuts components down in reverse initialization order.
func (a *App) Close() {
	if a.Config.Scheduler.Enabled {
		a.Scheduler.Stop()
	}
	if a.workers != nil {
		if err := a.workers.Stop(); err != nil {
			a.logger.Warn().Err(err).Msg("Worker pool shutdown failed")
		}
	}
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Queue shutdown failed")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Storage shutdown failed")
		}
	}
	a.logger.Info().Msg("Application stopped")
}
