package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/valora-io/valora/internal/common"
	"github.com/valora-io/valora/internal/handlers"
	"github.com/valora-io/valora/internal/interfaces"
	"github.com/valora-io/valora/internal/models"
	"github.com/valora-io/valora/internal/queue"
	"github.com/valora-io/valora/internal/services/delivery"
	"github.com/valora-io/valora/internal/services/events"
	"github.com/valora-io/valora/internal/services/llm"
	"github.com/valora-io/valora/internal/services/mailer"
	"github.com/valora-io/valora/internal/services/render"
	"github.com/valora-io/valora/internal/services/reports"
	"github.com/valora-io/valora/internal/services/scheduler"
	badgerstore "github.com/valora-io/valora/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Durable queues and their worker pools
	ReportQueue   *queue.BadgerQueue
	DeliveryQueue *queue.BadgerQueue
	reportPool    *queue.WorkerPool
	deliveryPool  *queue.WorkerPool

	// Services
	EventService     interfaces.EventService
	LLMService       interfaces.LLMService
	RenderService    interfaces.RenderService
	MailService      interfaces.MailService
	ReportService    *reports.Service
	DeliveryService  *delivery.Service
	SchedulerService *scheduler.Service

	// HTTP handlers
	ReportHandler       *handlers.ReportHandler
	EmailHandler        *handlers.EmailHandler
	NotificationHandler *handlers.NotificationHandler
	StatusHandler       *handlers.StatusHandler
	EventsHandler       *handlers.EventsHandler
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

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// Workers start only after every handler they can reach is wired
	app.reportPool.Start()
	app.deliveryPool.Start()

	if err := app.SchedulerService.Start(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start scheduler service")
	}

	logger.Info().
		Str("report_queue", app.ReportQueue.Name()).
		Str("delivery_queue", app.DeliveryQueue.Name()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	manager, err := badgerstore.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = manager

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Both queues share the storage database; each gets its own key prefix
	badgerDB := manager.DB().Badger()

	reportCfg := a.Config.Queues.Report
	a.ReportQueue, err = queue.NewBadgerQueue(
		badgerDB,
		reportCfg.Name,
		common.ParseDurationOr(reportCfg.VisibilityTimeout, 15*time.Minute),
		reportCfg.MaxReceive,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize report queue: %w", err)
	}

	deliveryCfg := a.Config.Queues.Delivery
	a.DeliveryQueue, err = queue.NewBadgerQueue(
		badgerDB,
		deliveryCfg.Name,
		common.ParseDurationOr(deliveryCfg.VisibilityTimeout, 5*time.Minute),
		deliveryCfg.MaxReceive,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize delivery queue: %w", err)
	}

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	var err error

	a.EventService = events.NewService(a.Logger)

	a.LLMService, err = llm.NewService(a.Config, a.StorageManager.KVStorage(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	a.Logger.Debug().
		Str("provider", string(a.Config.LLM.DefaultProvider)).
		Msg("LLM service initialized")

	a.RenderService = render.NewService(a.Logger)

	a.MailService = mailer.NewService(a.StorageManager.KVStorage(), &a.Config.Delivery, a.Logger)

	a.ReportService = reports.NewService(
		a.StorageManager.ReportStorage(),
		a.StorageManager.NotificationStorage(),
		a.EventService,
		a.LLMService,
		a.RenderService,
		a.DeliveryQueue,
		a.Config,
		a.Logger,
	)

	a.DeliveryService = delivery.NewService(
		a.StorageManager.ReportStorage(),
		a.StorageManager.NotificationStorage(),
		a.EventService,
		a.MailService,
		a.Logger,
	)

	reportCfg := a.Config.Queues.Report
	a.reportPool = queue.NewWorkerPool(
		a.ReportQueue,
		common.ParseDurationOr(reportCfg.PollInterval, time.Second),
		reportCfg.Concurrency,
		a.Logger,
	)
	a.reportPool.RegisterHandler(models.JobTypeReport, a.ReportService.HandleJob)

	deliveryCfg := a.Config.Queues.Delivery
	a.deliveryPool = queue.NewWorkerPool(
		a.DeliveryQueue,
		common.ParseDurationOr(deliveryCfg.PollInterval, time.Second),
		deliveryCfg.Concurrency,
		a.Logger,
	)
	a.deliveryPool.RegisterHandler(models.JobTypeEmail, a.DeliveryService.HandleJob)

	a.SchedulerService = scheduler.NewService(
		a.StorageManager.ReportStorage(),
		a.StorageManager.NotificationStorage(),
		a.Config,
		a.Logger,
	)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.ReportHandler = handlers.NewReportHandler(
		a.StorageManager.ReportStorage(),
		a.ReportQueue,
		a.Logger,
	)

	a.EmailHandler = handlers.NewEmailHandler(a.DeliveryQueue, a.Logger)

	a.NotificationHandler = handlers.NewNotificationHandler(
		a.StorageManager.NotificationStorage(),
		a.Logger,
	)

	a.StatusHandler = handlers.NewStatusHandler(a.Logger, a.ReportQueue, a.DeliveryQueue)

	a.EventsHandler = handlers.NewEventsHandler(a.EventService, &a.Config.WebSocket, a.Logger)
}

// Close closes all application resources in reverse dependency order
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.reportPool != nil {
		a.reportPool.Stop()
	}
	if a.deliveryPool != nil {
		a.deliveryPool.Stop()
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
