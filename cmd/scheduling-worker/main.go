package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightsmile/dental-scheduling/cmd/mainconfig"
	"github.com/brightsmile/dental-scheduling/internal/app/bootstrap"
	appconfig "github.com/brightsmile/dental-scheduling/internal/config"
	"github.com/brightsmile/dental-scheduling/internal/events"
	"github.com/brightsmile/dental-scheduling/internal/notify"
	"github.com/brightsmile/dental-scheduling/internal/queue"
	"github.com/brightsmile/dental-scheduling/internal/quickbook"
	"github.com/brightsmile/dental-scheduling/internal/reminders"
	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	notificationsworker "github.com/brightsmile/dental-scheduling/internal/worker/notifications"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting scheduling worker", "env", cfg.Env)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("scheduling worker requires DATABASE_URL")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	practiceStore := bootstrap.BuildPracticeStore(redisClient)

	outbox := events.NewOutboxStore(pool)
	slotStore := scheduling.NewSlotStore(pool)
	apptStore := scheduling.NewAppointmentStore(pool, outbox)
	remStore := reminders.NewStore(pool)

	sender, provider, reason := bootstrap.BuildEmailSender(cfg, sesv2.NewFromConfig(awsCfg), logger)
	var mailer *notify.Service
	if sender != nil {
		logger.Info("email transport selected", "provider", provider)
		var settings notify.SettingsSource
		if practiceStore != nil {
			settings = practiceStore
		}
		mailer = notify.NewService(sender, settings, logger)
	} else {
		logger.Warn("no email transport; notification and reminder delivery disabled", "reason", reason)
	}

	var waiters []interface{ Wait() }

	// Outbox deliverer feeds the notification queue.
	if cfg.NotificationQueueURL != "" {
		notificationQueue := queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL)
		deliverer := events.NewDeliverer(outbox, events.NewQueuePublisher(notificationQueue), logger.Component("outbox")).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxInterval)
		go deliverer.Start(ctx)

		if mailer != nil {
			nw := notificationsworker.NewWorker(notificationQueue, mailer, logger.Component("notifications"),
				notificationsworker.WithWorkerCount(cfg.WorkerCount)).
				WithDedup(events.NewProcessedStore(pool)).
				WithReminders(remStore)
			if archiveStore := bootstrap.BuildArchiveStore(s3.NewFromConfig(awsCfg), cfg, logger); archiveStore != nil {
				nw = nw.WithArchiver(archiveStore)
			}
			nw.Start(ctx)
			waiters = append(waiters, nw)
		}
	} else {
		logger.Warn("NOTIFICATION_QUEUE_URL not set; outbox delivery disabled")
	}

	// Quick-book job consumer.
	if cfg.QuickBookQueueURL != "" {
		jobStore := quickbook.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.QuickBookJobsTable, logger)
		engine := scheduling.NewEngine(apptStore, logger)
		if practiceStore != nil {
			engine = engine.WithSettings(practiceStore)
		}
		orch := quickbook.NewOrchestrator(scheduling.NewAvailability(slotStore), engine, jobStore, logger)
		if practiceStore != nil {
			orch = orch.WithSettings(practiceStore)
		}
		qbWorker := quickbook.NewWorker(queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.QuickBookQueueURL), orch, logger.Component("quickbook"),
			quickbook.WithWorkerCount(cfg.WorkerCount))
		qbWorker.Start(ctx)
		waiters = append(waiters, qbWorker)
	} else {
		logger.Warn("QUICKBOOK_QUEUE_URL not set; quick-book worker disabled")
	}

	// Reminder scan and delivery.
	remLogger := logger.Component("reminders")
	remScheduler := reminders.NewScheduler(remStore, apptStore, remLogger).WithInterval(cfg.ReminderInterval)
	if practiceStore != nil {
		remScheduler = remScheduler.WithSettings(practiceStore)
	}
	go remScheduler.Run(ctx)

	if mailer != nil {
		remSender := reminders.NewSender(remStore, mailer, remLogger).
			WithMaxAttempts(cfg.ReminderMaxAttempts).
			WithBaseDelay(cfg.ReminderBaseDelay)
		go remSender.Run(ctx)
	}

	// Past-appointment sweeper.
	if cfg.SweeperEnabled {
		sweepLogger := logger.Component("sweeper")
		manager := scheduling.NewManager(apptStore, sweepLogger)
		if practiceStore != nil {
			manager = manager.WithSettings(practiceStore)
		}
		sweeper := scheduling.NewSweeper(apptStore, manager, sweepLogger).WithInterval(cfg.SweepInterval)
		go sweeper.Start(ctx)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down scheduling worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		for _, w := range waiters {
			w.Wait()
		}
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("scheduling worker stopped")
	case <-doneCtx.Done():
		logger.Error("scheduling worker shutdown timed out", "error", doneCtx.Err())
	}
}
