package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/brightsmile/dental-scheduling/internal/config"
	"github.com/brightsmile/dental-scheduling/internal/queue"
	"github.com/brightsmile/dental-scheduling/internal/quickbook"
	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

func TestSetupSchedulingMetricsExposesMetrics(t *testing.T) {
	handler, metrics := setupSchedulingMetrics()
	if handler == nil || metrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	metrics.ObserveBooking("success", 0.05)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "dental_scheduling_bookings_total") {
		t.Fatalf("expected bookings counter to be exported")
	}
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	logger := logging.New("error")
	if pool := connectPostgresPool(context.Background(), "", logger); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestConnectSQLDBEmptyURLReturnsNil(t *testing.T) {
	logger := logging.New("error")
	if db := connectSQLDB("", logger); db != nil {
		t.Fatalf("expected nil db for empty URL")
	}
}

func TestSetupSchedulingMemoryFallback(t *testing.T) {
	logger := logging.New("error")
	_, m := setupSchedulingMetrics()

	svc := setupScheduling(nil, nil, nil, m, logger)
	if svc.Slots == nil || svc.Appointments == nil {
		t.Fatalf("expected in-memory repositories")
	}
	if svc.Availability == nil || svc.Engine == nil || svc.Generator == nil || svc.Manager == nil {
		t.Fatalf("expected all scheduling services to be wired")
	}

	ctx := context.Background()
	slot := &scheduling.TimeSlot{
		Date:        "2025-06-02",
		Time:        "9:00 AM",
		DoctorName:  "Dr. Smith",
		IsAvailable: true,
		MaxBookings: 1,
	}
	if err := svc.Slots.Create(ctx, slot); err != nil {
		t.Fatalf("create slot: %v", err)
	}
	open, err := svc.Availability.AvailableSlots(ctx, "2025-06-02", "")
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open slot, got %d", len(open))
	}
}

func TestSetupQuickBookSQSPath(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{
		UseMemoryQueue:     false,
		QuickBookQueueURL:  "http://localhost:4566/queue/quickbook",
		QuickBookJobsTable: "quickbook_jobs",
	}
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	handler, q, updater := setupQuickBook(cfg, aws.Config{Region: "us-east-1"}, logger)
	if handler == nil || updater == nil {
		t.Fatalf("expected handler and job updater")
	}
	if _, ok := q.(*queue.SQSQueue); !ok {
		t.Fatalf("expected SQS queue for non-memory mode, got %T", q)
	}
}

func TestSetupQuickBookMemoryMode(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{UseMemoryQueue: true}

	handler, q, updater := setupQuickBook(cfg, aws.Config{}, logger)
	if handler == nil {
		t.Fatalf("expected handler")
	}
	if _, ok := q.(*queue.MemoryQueue); !ok {
		t.Fatalf("expected memory queue, got %T", q)
	}
	if _, ok := updater.(*quickbook.MemoryJobStore); !ok {
		t.Fatalf("expected memory job store, got %T", updater)
	}
}

func TestSetupNotificationQueueMemoryMode(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: true}
	if _, ok := setupNotificationQueue(cfg, aws.Config{}).(*queue.MemoryQueue); !ok {
		t.Fatalf("expected memory queue")
	}
}

func TestSetupNotificationQueueUnconfigured(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: false}
	if q := setupNotificationQueue(cfg, aws.Config{}); q != nil {
		t.Fatalf("expected nil queue without a queue URL")
	}
}

func TestStartInlineWorkersDisabled(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{UseMemoryQueue: false}

	workers := startInlineWorkers(context.Background(), cfg, inlineDeps{}, nil, logger)
	if workers != nil {
		t.Fatalf("expected no inline workers when memory queue is disabled")
	}
}

func TestStartInlineWorkersStartAndStop(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{
		UseMemoryQueue: true,
		WorkerCount:    1,
	}
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	_, m := setupSchedulingMetrics()
	svc := setupScheduling(nil, nil, nil, m, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workers := startInlineWorkers(ctx, cfg, inlineDeps{
		awsCfg:            aws.Config{Region: "us-east-1"},
		svc:               svc,
		quickBookQueue:    queue.NewMemoryQueue(2),
		quickBookJobs:     quickbook.NewMemoryJobStore(),
		notificationQueue: queue.NewMemoryQueue(2),
	}, m, logger)
	if len(workers) == 0 {
		t.Fatalf("expected inline workers when memory queue is enabled")
	}

	cancel()
	waitForInlineWorkers(workers, logger)
}
