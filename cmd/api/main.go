package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightsmile/dental-scheduling/cmd/mainconfig"
	"github.com/brightsmile/dental-scheduling/internal/api/router"
	"github.com/brightsmile/dental-scheduling/internal/app/bootstrap"
	"github.com/brightsmile/dental-scheduling/internal/audit"
	appconfig "github.com/brightsmile/dental-scheduling/internal/config"
	"github.com/brightsmile/dental-scheduling/internal/events"
	"github.com/brightsmile/dental-scheduling/internal/notify"
	"github.com/brightsmile/dental-scheduling/internal/observability/metrics"
	"github.com/brightsmile/dental-scheduling/internal/practice"
	"github.com/brightsmile/dental-scheduling/internal/queue"
	"github.com/brightsmile/dental-scheduling/internal/quickbook"
	"github.com/brightsmile/dental-scheduling/internal/reminders"
	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	notificationsworker "github.com/brightsmile/dental-scheduling/internal/worker/notifications"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dental-scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	sqlDB := connectSQLDB(cfg.DatabaseURL, logger)
	if sqlDB != nil {
		defer func() { _ = sqlDB.Close() }()
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	practiceStore := bootstrap.BuildPracticeStore(redisClient)
	auditService := bootstrap.BuildAuditService(sqlDB, logger)

	metricsHandler, schedMetrics := setupSchedulingMetrics()

	// Initialize scheduling services
	var outbox *events.OutboxStore
	if pool != nil {
		outbox = events.NewOutboxStore(pool)
	}
	svc := setupScheduling(pool, outbox, practiceStore, schedMetrics, logger)

	// Initialize handlers
	schedulingHandler := scheduling.NewHandler(svc, logger)
	if auditService != nil {
		schedulingHandler = schedulingHandler.WithAudit(auditService)
	}

	quickBookHandler, quickBookQueue, quickBookJobs := setupQuickBook(cfg, awsCfg, logger)
	notificationQueue := setupNotificationQueue(cfg, awsCfg)

	var practiceHandler *practice.Handler
	if practiceStore != nil {
		practiceHandler = practice.NewHandler(practiceStore, logger)
	}
	var reportsHandler *practice.ReportsHandler
	if sqlDB != nil {
		reportsHandler = practice.NewReportsHandler(practice.NewReportRepository(sqlDB), logger)
	}

	// Start inline workers when running single-process
	workers := startInlineWorkers(ctx, cfg, inlineDeps{
		awsCfg:            awsCfg,
		pool:              pool,
		practiceStore:     practiceStore,
		svc:               svc,
		outbox:            outbox,
		quickBookQueue:    quickBookQueue,
		quickBookJobs:     quickBookJobs,
		notificationQueue: notificationQueue,
	}, schedMetrics, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		Scheduling:         schedulingHandler,
		QuickBook:          quickBookHandler,
		Practice:           practiceHandler,
		Reports:            reportsHandler,
		Audit:              audit.NewHandler(auditService, logger),
		MetricsHandler:     metricsHandler,
		PortalJWTSecret:    cfg.PortalJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSec,
		RateLimitBurst:     cfg.RateLimitBurst,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop inline workers after the listener drains
	cancel()
	waitForInlineWorkers(workers, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// connectPostgresPool connects the pgx pool, or returns nil when no
// DATABASE_URL is configured so the in-memory stores take over.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory scheduling stores")
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	return pool
}

// connectSQLDB opens the database/sql handle used by the audit trail
// and the utilization reports.
func connectSQLDB(databaseURL string, logger *logging.Logger) *sql.DB {
	if databaseURL == "" {
		return nil
	}
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		logger.Error("failed to open sql db", "error", err)
		return nil
	}
	return db
}

func setupSchedulingMetrics() (http.Handler, *metrics.SchedulingMetrics) {
	registry := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(registry)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return handler, m
}

// setupScheduling builds the scheduling services over Postgres when a
// pool is available, otherwise over the in-memory stores.
func setupScheduling(pool *pgxpool.Pool, outbox *events.OutboxStore, settings *practice.Store, m *metrics.SchedulingMetrics, logger *logging.Logger) scheduling.Services {
	var (
		slots   scheduling.SlotRepository
		appts   scheduling.AppointmentRepository
		booking scheduling.BookingStore
	)
	if pool != nil {
		slotStore := scheduling.NewSlotStore(pool)
		apptStore := scheduling.NewAppointmentStore(pool, outbox)
		slots, appts, booking = slotStore, apptStore, apptStore
	} else {
		mem := scheduling.NewMemoryStore()
		slots, appts, booking = mem.Slots, mem.Appointments, mem.Appointments
	}

	engine := scheduling.NewEngine(booking, logger).WithMetrics(m)
	generator := scheduling.NewGenerator(slots, logger).WithMetrics(m)
	manager := scheduling.NewManager(appts, logger).WithMetrics(m)
	if settings != nil {
		engine = engine.WithSettings(settings)
		generator = generator.WithSettings(settings)
		manager = manager.WithSettings(settings)
	}

	return scheduling.Services{
		Slots:        slots,
		Appointments: appts,
		Availability: scheduling.NewAvailability(slots),
		Engine:       engine,
		Generator:    generator,
		Manager:      manager,
	}
}

// setupQuickBook wires the quick-book handler with its queue and job
// store: in-memory for single-process dev, SQS + DynamoDB otherwise.
func setupQuickBook(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*quickbook.Handler, queue.Client, quickbook.JobUpdater) {
	var (
		q       queue.Client
		jobs    quickbook.JobRecorder
		updater quickbook.JobUpdater
	)
	if cfg.UseMemoryQueue {
		mem := quickbook.NewMemoryJobStore()
		q, jobs, updater = queue.NewMemoryQueue(64), mem, mem
		logger.Info("quick-book using in-memory queue and job store")
	} else {
		store := quickbook.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.QuickBookJobsTable, logger)
		q = queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.QuickBookQueueURL)
		jobs, updater = store, store
	}
	publisher := quickbook.NewPublisher(q, logger)
	return quickbook.NewHandler(jobs, publisher, logger), q, updater
}

// setupNotificationQueue returns the queue the outbox deliverer feeds,
// or nil when event delivery is not configured.
func setupNotificationQueue(cfg *appconfig.Config, awsCfg aws.Config) queue.Client {
	if cfg.UseMemoryQueue {
		return queue.NewMemoryQueue(64)
	}
	if cfg.NotificationQueueURL == "" {
		return nil
	}
	return queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL)
}

type inlineDeps struct {
	awsCfg            aws.Config
	pool              *pgxpool.Pool
	practiceStore     *practice.Store
	svc               scheduling.Services
	outbox            *events.OutboxStore
	quickBookQueue    queue.Client
	quickBookJobs     quickbook.JobUpdater
	notificationQueue queue.Client
}

type waiter interface{ Wait() }

// startInlineWorkers runs the queue consumers in-process when the
// memory queue is enabled, so one binary serves requests and works the
// jobs during local development. Deployed environments run
// cmd/scheduling-worker instead.
func startInlineWorkers(ctx context.Context, cfg *appconfig.Config, deps inlineDeps, m *metrics.SchedulingMetrics, logger *logging.Logger) []waiter {
	if !cfg.UseMemoryQueue {
		return nil
	}

	var workers []waiter

	orch := quickbook.NewOrchestrator(deps.svc.Availability, deps.svc.Engine, deps.quickBookJobs, logger).WithMetrics(m)
	if deps.practiceStore != nil {
		orch = orch.WithSettings(deps.practiceStore)
	}
	qbWorker := quickbook.NewWorker(deps.quickBookQueue, orch, logger, quickbook.WithWorkerCount(cfg.WorkerCount))
	qbWorker.Start(ctx)
	workers = append(workers, qbWorker)

	sender, provider, reason := bootstrap.BuildEmailSender(cfg, sesv2.NewFromConfig(deps.awsCfg), logger)
	if sender == nil {
		logger.Warn("no email transport; using stub sender", "reason", reason)
		sender, provider = notify.NewStubEmailSender(logger), "stub"
	}
	logger.Info("email transport selected", "provider", provider)

	var settingsSource notify.SettingsSource
	if deps.practiceStore != nil {
		settingsSource = deps.practiceStore
	}
	mailer := notify.NewService(sender, settingsSource, logger)

	if deps.outbox != nil && deps.notificationQueue != nil {
		deliverer := events.NewDeliverer(deps.outbox, events.NewQueuePublisher(deps.notificationQueue), logger).
			WithInterval(cfg.OutboxInterval).
			WithBatchSize(int32(cfg.OutboxBatchSize))
		go deliverer.Start(ctx)

		nw := notificationsworker.NewWorker(deps.notificationQueue, mailer, logger,
			notificationsworker.WithWorkerCount(cfg.WorkerCount))
		if deps.pool != nil {
			nw = nw.WithDedup(events.NewProcessedStore(deps.pool)).
				WithReminders(reminders.NewStore(deps.pool))
		}
		nw.Start(ctx)
		workers = append(workers, nw)
	}

	if deps.pool != nil {
		remStore := reminders.NewStore(deps.pool)
		remScheduler := reminders.NewScheduler(remStore, deps.svc.Appointments, logger).WithInterval(cfg.ReminderInterval)
		if deps.practiceStore != nil {
			remScheduler = remScheduler.WithSettings(deps.practiceStore)
		}
		go remScheduler.Run(ctx)

		remSender := reminders.NewSender(remStore, mailer, logger).
			WithMaxAttempts(cfg.ReminderMaxAttempts).
			WithBaseDelay(cfg.ReminderBaseDelay)
		go remSender.Run(ctx)
	}

	return workers
}

func waitForInlineWorkers(workers []waiter, logger *logging.Logger) {
	if len(workers) == 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			w.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Error("inline workers shutdown timed out")
	}
}
