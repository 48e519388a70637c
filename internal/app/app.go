package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/pulse/internal/adapters"
	"github.com/ternarybob/pulse/internal/common"
	"github.com/ternarybob/pulse/internal/handlers"
	"github.com/ternarybob/pulse/internal/interfaces"
	"github.com/ternarybob/pulse/internal/models"
	"github.com/ternarybob/pulse/internal/queue"
	"github.com/ternarybob/pulse/internal/services/cache"
	"github.com/ternarybob/pulse/internal/services/events"
	"github.com/ternarybob/pulse/internal/services/scheduler"
	syncsvc "github.com/ternarybob/pulse/internal/services/sync"
	"github.com/ternarybob/pulse/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// Sync pipeline
	CacheService    interfaces.CacheService
	QueueManager    interfaces.QueueManager
	AdapterRegistry interfaces.AdapterRegistry
	SyncService     interfaces.SyncService
	WorkerPool      *queue.WorkerPool

	// HTTP handlers
	APIHandler         *handlers.APIHandler
	IntegrationHandler *handlers.IntegrationHandler
	TeamHandler        *handlers.TeamHandler
	JobHandler         *handlers.JobHandler
	StatusHandler      *handlers.StatusHandler
	WSHandler          *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to subscribe event logger")
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Workers start last so every handler and subscription is in place
	// before the first queued job is picked up
	if err := app.WorkerPool.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker pool: %w", err)
	}

	if cfg.Scheduler.Enabled {
		if err := app.SchedulerService.Start(); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to start scheduler service")
		}
	} else {
		app.Logger.Info().Msg("Scheduler disabled, periodic sweeps will not run")
	}

	logger.Info().
		Str("queue", cfg.Queue.QueueName).
		Int("workers", cfg.Queue.Concurrency).
		Bool("scheduler", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger) and loads
// bootstrap definitions
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	ctx := context.Background()

	// Load secrets from .env into the KV store before seeds, so seed
	// files can reference them with {key-name} syntax
	if err := a.StorageManager.LoadEnvFile(ctx, ".env"); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load .env file")
	}

	if err := a.StorageManager.LoadSeedsFromFiles(ctx, a.Config.Seeds.Dir); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load seed definitions")
	}

	// Resolve {key-name} references in config values against the KV store
	kvMap, err := a.StorageManager.KVStorage().GetAll(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
	} else if len(kvMap) > 0 {
		if err := common.ReplaceInStruct(a.Config, kvMap, a.Logger); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to replace key references in config")
		} else {
			a.Logger.Debug().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
		}
	}

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	// Cache tiers (session and task-result in memory, persistent in Badger)
	a.CacheService = cache.NewService(a.Config, a.StorageManager.CacheStorage(), a.Logger)
	a.Logger.Debug().Msg("Cache service initialized")

	// The queue shares the storage manager's Badger database so queued
	// jobs and job records commit to the same store
	badgerStore, ok := a.StorageManager.DB().(*badgerhold.Store)
	if !ok {
		return fmt.Errorf("storage manager is not backed by BadgerDB (got %T)", a.StorageManager.DB())
	}

	queueMgr, err := queue.NewBadgerQueue(badgerStore.Badger(), &a.Config.Queue, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize queue manager: %w", err)
	}
	a.QueueManager = queueMgr
	a.Logger.Debug().Str("queue_name", a.Config.Queue.QueueName).Msg("Queue manager initialized")

	a.AdapterRegistry = adapters.NewRegistry(a.Config, a.Logger)
	a.Logger.Debug().Msg("Adapter registry initialized")

	a.SyncService = syncsvc.NewService(
		a.Config,
		a.StorageManager,
		a.AdapterRegistry,
		a.QueueManager,
		a.CacheService,
		a.EventService,
		a.Logger,
	)
	a.Logger.Debug().Msg("Sync service initialized")

	// Worker pool dispatches both job kinds to the sync service
	a.WorkerPool = queue.NewWorkerPool(a.QueueManager, &a.Config.Queue, a.Logger)
	a.WorkerPool.RegisterHandler(models.JobKindSync, a.SyncService.ExecuteJob)
	a.WorkerPool.RegisterHandler(models.JobKindSweep, a.SyncService.ExecuteJob)

	if err := a.initScheduler(); err != nil {
		return err
	}

	// A new integration gets its first sync automatically
	_, err = a.EventService.Subscribe(interfaces.EventIntegrationCreated, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			return nil
		}
		integrationID, _ := payload["integration_id"].(string)
		if integrationID == "" {
			return nil
		}

		if _, err := a.SyncService.EnqueueSync(ctx, integrationID, models.SyncTriggerInitial); err != nil {
			if errors.Is(err, models.ErrSyncInFlight) {
				return nil
			}
			a.Logger.Warn().Err(err).
				Str("integration_id", integrationID).
				Msg("Failed to enqueue initial sync")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to integration events: %w", err)
	}

	return nil
}

// initScheduler registers the periodic background jobs
func (a *App) initScheduler() error {
	a.SchedulerService = scheduler.NewService(a.Logger)

	err := a.SchedulerService.RegisterJob(
		"sync_sweep",
		a.Config.Scheduler.SweepSchedule,
		"Enqueue a sync sweep over all integrations",
		func() error {
			_, err := a.SyncService.EnqueueSweep(context.Background())
			return err
		},
	)
	if err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	retention := common.ParseDurationOr(a.Config.Scheduler.JobRetention, 72*time.Hour)
	err = a.SchedulerService.RegisterJob(
		"job_cleanup",
		a.Config.Scheduler.CleanupSchedule,
		"Delete finished sync jobs past the retention window",
		func() error {
			cutoff := time.Now().Add(-retention)
			deleted, err := a.StorageManager.SyncJobStorage().DeleteFinishedBefore(context.Background(), cutoff)
			if err != nil {
				return err
			}
			if deleted > 0 {
				a.Logger.Info().Int("deleted", deleted).Msg("Pruned finished sync jobs")
			}
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}

	err = a.SchedulerService.RegisterJob(
		"cache_cleanup",
		"@every "+a.Config.Cache.CleanupInterval,
		"Remove expired cache entries from all tiers",
		func() error {
			removed, err := a.CacheService.CleanupExpired(context.Background())
			if err != nil {
				return err
			}
			if removed > 0 {
				a.Logger.Debug().Int("removed", removed).Msg("Removed expired cache entries")
			}
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("failed to register cache cleanup job: %w", err)
	}

	a.Logger.Debug().
		Str("sweep_schedule", a.Config.Scheduler.SweepSchedule).
		Str("cleanup_schedule", a.Config.Scheduler.CleanupSchedule).
		Msg("Scheduler jobs registered")

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()

	a.WSHandler = handlers.NewWebSocketHandler(a.Logger)

	// Bridge bus events to WebSocket clients with config-driven
	// filtering and throttling
	_ = handlers.NewEventSubscriber(a.WSHandler, a.EventService, a.Logger, &a.Config.WebSocket)
	a.Logger.Debug().
		Int("allowed_events", len(a.Config.WebSocket.AllowedEvents)).
		Int("throttle_intervals", len(a.Config.WebSocket.ThrottleIntervals)).
		Msg("EventSubscriber initialized")

	a.IntegrationHandler = handlers.NewIntegrationHandler(
		a.StorageManager,
		a.SyncService,
		a.CacheService,
		a.EventService,
		a.Logger,
	)

	a.TeamHandler = handlers.NewTeamHandler(
		a.StorageManager,
		a.Config,
		a.EventService,
		a.Logger,
	)

	a.JobHandler = handlers.NewJobHandler(a.StorageManager, a.CacheService, a.Logger)

	a.StatusHandler = handlers.NewStatusHandler(
		a.StorageManager,
		a.QueueManager,
		a.CacheService,
		a.SchedulerService,
		a.Logger,
	)

	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop worker pool")
		} else {
			a.Logger.Info().Msg("Worker pool stopped")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
