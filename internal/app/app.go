// Package app wires configuration to the pipeline components and owns the
// process lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"newsdesk/internal/alert"
	"newsdesk/internal/api"
	"newsdesk/internal/cache"
	"newsdesk/internal/classify"
	"newsdesk/internal/config"
	"newsdesk/internal/fetch"
	"newsdesk/internal/ingest"
	"newsdesk/internal/logging"
	"newsdesk/internal/monitor"
	"newsdesk/internal/normalize"
	"newsdesk/internal/publish"
	"newsdesk/internal/push"
	"newsdesk/internal/queue"
	"newsdesk/internal/search"
	"newsdesk/internal/storage"
	"newsdesk/internal/translate"
)

// Job names owned by this package.
const (
	jobIngest        = "ingest"
	jobMonitorHealth = "monitor-health"
	jobTranslate     = "translate-backfill"
)

const renderCacheTTL = 5 * time.Minute

// Application holds the fully wired pipeline.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	Store        *storage.Store
	Queue        *queue.Queue
	Index        *search.Index
	Orchestrator *ingest.Orchestrator
	Publisher    *publish.Publisher
	Monitor      *monitor.Monitor
	Translator   *translate.Service
	Push         *push.Sender
	API          *api.Server
}

// New wires every component from configuration.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	index, err := search.NewIndex()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open search index: %w", err)
	}

	renderCache := cache.New(renderCacheTTL)
	q := queue.New(store, baseLogger.With("component", "queue"), 2*time.Second)

	fetcher := fetch.NewService(cfg.Fetch, nil, baseLogger.With("component", "fetch"))
	normalizer := normalize.New()
	topics := classify.NewTopicPredictor(cfg.Classifier.ModelPath, baseLogger.With("component", "topics"))

	orchestrator := ingest.New(store, fetcher, normalizer, topics, index,
		baseLogger.With("component", "ingest"))

	publisher := publish.New(store, q, renderCache, topics, index,
		cfg.Scheduler.TrendWindow, cfg.Scheduler.TrendSingleton,
		baseLogger.With("component", "publish"))

	translator := translate.NewService(cfg.Translation, translate.ChooseProvider(cfg.Translation), store,
		cfg.Location(), baseLogger.With("component", "translate"))

	var channels []alert.Channel
	if cfg.Alerts.Email.Endpoint != "" {
		channels = append(channels, alert.NewEmailChannel(cfg.Alerts.Email))
	}
	if cfg.Alerts.SMS.Endpoint != "" {
		channels = append(channels, alert.NewSMSChannel(cfg.Alerts.SMS))
	}
	dispatcher := alert.NewDispatcher(baseLogger.With("component", "alert"), channels...)

	mon := monitor.New(store, q, dispatcher, cfg.Monitoring,
		baseLogger.With("component", "monitor"))

	pusher := push.NewSender(store, nil, baseLogger.With("component", "push"))

	app := &Application{
		cfg:          cfg,
		logger:       baseLogger,
		Store:        store,
		Queue:        q,
		Index:        index,
		Orchestrator: orchestrator,
		Publisher:    publisher,
		Monitor:      mon,
		Translator:   translator,
		Push:         pusher,
	}
	app.API = api.New(cfg, store, q, index, renderCache, translator,
		baseLogger.With("component", "api"))

	app.registerWorkers()
	return app, nil
}

// registerWorkers binds every job name to its handler and sets the
// recurring schedules. Each worker run is heartbeat-wrapped so the monitor
// sees it.
func (a *Application) registerWorkers() {
	a.Queue.RegisterWorker(jobIngest, func(ctx context.Context, _ []byte) error {
		return monitor.WithHeartbeatMessage(ctx, a.Store, jobIngest, func(ctx context.Context) (string, error) {
			stats, err := a.Orchestrator.Run(ctx)
			if err != nil {
				return "", err
			}
			return stats.Encode(), nil
		})
	})

	a.Queue.RegisterWorker(publish.JobPublishDue, func(ctx context.Context, _ []byte) error {
		return monitor.WithHeartbeat(ctx, a.Store, publish.JobPublishDue, func(ctx context.Context) error {
			_, err := a.Publisher.PublishDue(ctx)
			return err
		})
	})

	a.Queue.RegisterWorker(publish.JobRevalidate, func(ctx context.Context, payload []byte) error {
		return monitor.WithHeartbeat(ctx, a.Store, publish.JobRevalidate, func(ctx context.Context) error {
			p, err := publish.ParseSlugPayload(payload)
			if err != nil {
				return err
			}
			return a.Publisher.Revalidate(ctx, p.Slug)
		})
	})

	a.Queue.RegisterWorker(publish.JobRefreshTrends, func(ctx context.Context, _ []byte) error {
		return monitor.WithHeartbeat(ctx, a.Store, publish.JobRefreshTrends, func(ctx context.Context) error {
			return a.Publisher.RefreshTrends(ctx)
		})
	})

	a.Queue.RegisterWorker(publish.JobNotifyPush, func(ctx context.Context, payload []byte) error {
		p, err := publish.ParseSlugPayload(payload)
		if err != nil {
			return err
		}
		article, err := a.Store.GetArticleBySlug(ctx, p.Slug)
		if err != nil {
			return err
		}
		if article == nil {
			return fmt.Errorf("article %s not found", p.Slug)
		}
		_, err = a.Push.NotifyPublished(ctx, article)
		return err
	})

	a.Queue.RegisterWorker(jobMonitorHealth, func(ctx context.Context, _ []byte) error {
		return monitor.WithHeartbeat(ctx, a.Store, jobMonitorHealth, func(ctx context.Context) error {
			return a.Monitor.RunHealthCheck(ctx)
		})
	})

	a.Queue.RegisterWorker(jobTranslate, func(ctx context.Context, _ []byte) error {
		stats, err := a.Translator.Backfill(ctx, 50)
		if err != nil {
			return err
		}
		a.logger.Info("translation backfill pass",
			"translated", stats.Translated, "fallback", stats.Fallback,
			"queued", stats.Queued, "skipped", stats.Skipped, "failed", stats.Failed)
		return nil
	})

	a.Queue.Every(jobIngest, a.cfg.Scheduler.IngestInterval)
	a.Queue.Every(publish.JobPublishDue, a.cfg.Scheduler.PublishInterval)
	a.Queue.Every(jobMonitorHealth, a.cfg.Scheduler.MonitorInterval)
	a.Queue.Every(jobTranslate, a.cfg.Scheduler.IngestInterval)
}

// warmIndex loads the current review queue and the published window into
// the in-memory search index.
func (a *Application) warmIndex(ctx context.Context) error {
	items, _, err := a.Store.ReviewQueue(ctx, storage.ReviewQueueFilter{Limit: 500})
	if err != nil {
		return err
	}
	if err := a.Index.IndexBatch(items); err != nil {
		return err
	}

	published, err := a.Store.ListPublishedSince(ctx, time.Now().Add(-30*24*time.Hour))
	if err != nil {
		return err
	}
	return a.Index.IndexBatch(published)
}

// Serve runs the queue workers and the API server until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.warmIndex(ctx); err != nil {
		a.logger.Warn("search index warmup failed", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.API.Start(ctx)
	}()
	go a.Queue.Run(ctx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return <-errCh
	}
}

// IngestOnce runs a single ingestion pass, for the CLI.
func (a *Application) IngestOnce(ctx context.Context) (ingest.Stats, error) {
	var stats ingest.Stats
	err := monitor.WithHeartbeatMessage(ctx, a.Store, jobIngest, func(ctx context.Context) (string, error) {
		var runErr error
		stats, runErr = a.Orchestrator.Run(ctx)
		if runErr != nil {
			return "", runErr
		}
		return stats.Encode(), nil
	})
	return stats, err
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			a.logger.Warn("close search index", "error", err)
		}
	}
	return a.Store.Close()
}
