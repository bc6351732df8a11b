package reminders

import (
	"context"
	"time"

	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// Notifier delivers one reminder. The notify service implements it.
type Notifier interface {
	SendReminder(ctx context.Context, reminder Reminder) error
}

// Sender drains due reminders on a ticker, retrying transient send
// failures with exponential backoff until max attempts.
type Sender struct {
	store       *Store
	notifier    Notifier
	logger      *logging.Logger
	maxAttempts int
	baseDelay   time.Duration
	interval    time.Duration
	batchSize   int
}

// NewSender creates a reminder sender.
func NewSender(store *Store, notifier Notifier, logger *logging.Logger) *Sender {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sender{
		store:       store,
		notifier:    notifier,
		logger:      logger,
		maxAttempts: 5,
		baseDelay:   5 * time.Minute,
		interval:    1 * time.Minute,
		batchSize:   25,
	}
}

func (s *Sender) WithMaxAttempts(n int) *Sender {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

func (s *Sender) WithBaseDelay(d time.Duration) *Sender {
	if d > 0 {
		s.baseDelay = d
	}
	return s
}

func (s *Sender) WithInterval(d time.Duration) *Sender {
	if d > 0 {
		s.interval = d
	}
	return s
}

func (s *Sender) WithBatchSize(n int) *Sender {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Run drains immediately, then on every tick until the context ends.
func (s *Sender) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

func (s *Sender) drain(ctx context.Context) {
	if s.store == nil || s.notifier == nil {
		return
	}
	due, err := s.store.ListDue(ctx, time.Now().UTC(), s.batchSize, s.maxAttempts)
	if err != nil {
		s.logger.Error("reminder fetch failed", "error", err)
		return
	}
	for _, r := range due {
		if err := s.notifier.SendReminder(ctx, r); err != nil {
			next := s.nextDelay(r.Attempts)
			s.logger.Warn("reminder send failed",
				"error", err, "reminder_id", r.ID, "attempts", r.Attempts+1, "retry_in", next)
			if err := s.store.ScheduleRetry(ctx, r.ID, time.Now().Add(next)); err != nil {
				s.logger.Error("schedule retry failed", "error", err, "reminder_id", r.ID)
			}
			continue
		}
		if err := s.store.MarkSent(ctx, r.ID); err != nil {
			s.logger.Error("mark sent failed", "error", err, "reminder_id", r.ID)
			continue
		}
		s.logger.Info("reminder sent",
			"reminder_id", r.ID, "appointment_id", r.AppointmentID, "date", r.Date, "time", r.Time)
	}
}

func (s *Sender) nextDelay(attempts int) time.Duration {
	delay := s.baseDelay * time.Duration(1<<attempts)
	if delay > 24*time.Hour {
		delay = 24 * time.Hour
	}
	return delay
}
