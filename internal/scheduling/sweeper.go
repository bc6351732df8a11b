package scheduling

import (
	"context"
	"time"

	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

const sweepActor = "system:sweeper"

// Sweeper periodically applies the missed classification to pending
// appointments whose day has passed. The explicit cleanup endpoint
// remains the primary path; the sweeper is opt-in via configuration.
type Sweeper struct {
	appts    AppointmentRepository
	manager  *Manager
	logger   *logging.Logger
	interval time.Duration
}

func NewSweeper(appts AppointmentRepository, manager *Manager, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		appts:    appts,
		manager:  manager,
		logger:   logger,
		interval: 10 * time.Minute,
	}
}

func (s *Sweeper) WithInterval(interval time.Duration) *Sweeper {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

func (s *Sweeper) Start(ctx context.Context) {
	if s.appts == nil || s.manager == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	today := time.Now().In(s.manager.location(ctx)).Format(DateLayout)
	candidates, err := s.appts.ListPendingThrough(ctx, today)
	if err != nil {
		s.logger.Error("sweep candidate query failed", "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}
	ids := make([]string, 0, len(candidates))
	for i := range candidates {
		ids = append(ids, candidates[i].ID)
	}
	if _, err := s.manager.CleanupMissed(ctx, sweepActor, ids); err != nil {
		s.logger.Error("sweep failed", "error", err)
	}
}
