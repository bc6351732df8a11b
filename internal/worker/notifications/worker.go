// Package notificationsworker consumes appointment events from the
// notifications queue and fans them out: mail through the notify
// service, reminder bookkeeping, and sweep archival.
package notificationsworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brightsmile/dental-scheduling/internal/archive"
	"github.com/brightsmile/dental-scheduling/internal/events"
	"github.com/brightsmile/dental-scheduling/internal/queue"
	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 2
	defaultBatchSize    = 5
	maxWaitSeconds      = 20
	maxReceiveBatchSize = 10
	deleteTimeout       = 5 * time.Second

	// consumerName keys the processed-events dedup rows.
	consumerName = "notifications"
)

// Mailer sends the appointment mails. The notify service implements it.
type Mailer interface {
	SendBookingConfirmation(ctx context.Context, evt events.AppointmentBookedV1) error
	SendStatusUpdate(ctx context.Context, evt events.AppointmentStatusChangedV1) error
}

// Dedup records which events this consumer already handled.
type Dedup interface {
	AlreadyProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
}

// ReminderCanceller drops pending reminders when an appointment leaves
// the confirmed state.
type ReminderCanceller interface {
	CancelByAppointment(ctx context.Context, appointmentID string) (int64, error)
}

// SweepArchiver retains cleanup sweep records.
type SweepArchiver interface {
	ArchiveSweep(ctx context.Context, record *archive.SweepRecord) error
}

// Worker consumes appointment events and dispatches them. Events that
// fail to dispatch stay on the queue for redelivery; the processed-
// events table keeps redelivered successes from double-sending.
type Worker struct {
	queue     queue.Client
	mailer    Mailer
	dedup     Dedup
	reminders ReminderCanceller
	archiver  SweepArchiver
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// NewWorker constructs the notifications consumer.
func NewWorker(q queue.Client, mailer Mailer, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if q == nil {
		panic("notifications: queue cannot be nil")
	}
	if mailer == nil {
		panic("notifications: mailer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		queue:  q,
		mailer: mailer,
		logger: logger,
		cfg:    cfg,
	}
}

// WithDedup attaches the processed-events store. Without one every
// delivery is handled, so redeliveries can double-send.
func (w *Worker) WithDedup(dedup Dedup) *Worker {
	w.dedup = dedup
	return w
}

// WithReminders attaches the reminder store used to cancel pending
// reminders on terminal status changes.
func (w *Worker) WithReminders(reminders ReminderCanceller) *Worker {
	w.reminders = reminders
	return w
}

// WithArchiver attaches the sweep archive store.
func (w *Worker) WithArchiver(archiver SweepArchiver) *Worker {
	w.archiver = archiver
	return w
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("notifications worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("notifications worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive appointment events", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) {
	var env events.Envelope
	if err := json.Unmarshal([]byte(msg.Body), &env); err != nil {
		w.logger.Error("failed to decode event envelope", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if w.dedup != nil && env.EventID != "" {
		seen, err := w.dedup.AlreadyProcessed(ctx, consumerName, env.EventID)
		if err != nil {
			// Leave the message for redelivery; the check is cheap to rerun.
			w.logger.Error("dedup check failed", "error", err, "event_id", env.EventID)
			return
		}
		if seen {
			w.logger.Debug("skipping already-processed event", "event_id", env.EventID, "type", env.Type)
			w.deleteMessage(context.Background(), msg.ReceiptHandle)
			return
		}
	}

	if err := w.dispatch(ctx, env); err != nil {
		w.logger.Error("event dispatch failed", "error", err, "event_id", env.EventID, "type", env.Type)
		return
	}

	if w.dedup != nil && env.EventID != "" {
		if _, err := w.dedup.MarkProcessed(ctx, consumerName, env.EventID); err != nil {
			w.logger.Warn("failed to record processed event", "error", err, "event_id", env.EventID)
		}
	}
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) dispatch(ctx context.Context, env events.Envelope) error {
	switch env.Type {
	case events.TypeAppointmentBooked:
		var evt events.AppointmentBookedV1
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("decode booked payload: %w", err)
		}
		return w.mailer.SendBookingConfirmation(ctx, evt)

	case events.TypeAppointmentStatusChanged:
		var evt events.AppointmentStatusChangedV1
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("decode status payload: %w", err)
		}
		if w.reminders != nil && terminalStatus(evt.Status) {
			n, err := w.reminders.CancelByAppointment(ctx, evt.AppointmentID)
			if err != nil {
				w.logger.Warn("failed to cancel pending reminder", "error", err, "appointment_id", evt.AppointmentID)
			} else if n > 0 {
				w.logger.Info("cancelled pending reminder", "appointment_id", evt.AppointmentID, "status", evt.Status)
			}
		}
		return w.mailer.SendStatusUpdate(ctx, evt)

	case events.TypeAppointmentsSwept:
		if w.archiver == nil {
			return nil
		}
		var evt events.AppointmentsSweptV1
		if err := json.Unmarshal(env.Payload, &evt); err != nil {
			return fmt.Errorf("decode sweep payload: %w", err)
		}
		return w.archiver.ArchiveSweep(ctx, &archive.SweepRecord{
			SweepID:        env.EventID,
			ActorID:        evt.ActorID,
			AppointmentIDs: evt.AppointmentIDs,
			Updated:        evt.Updated,
			SweptAt:        evt.SweptAt,
		})

	default:
		w.logger.Warn("unknown event type", "type", env.Type, "event_id", env.EventID)
		return nil
	}
}

// terminalStatus reports whether the appointment has left the states a
// reminder makes sense for.
func terminalStatus(status string) bool {
	switch scheduling.Status(status) {
	case scheduling.StatusCancelled, scheduling.StatusCompleted, scheduling.StatusMissed:
		return true
	}
	return false
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete event message", "error", err)
	}
}
