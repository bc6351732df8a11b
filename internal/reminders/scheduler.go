package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// AppointmentSource lists appointments for the scheduler scan. The
// scheduling repositories implement it.
type AppointmentSource interface {
	List(ctx context.Context, f scheduling.AppointmentFilter) ([]scheduling.Appointment, error)
}

// LocationSource resolves the practice timezone. The practice settings
// store implements it; a nil source falls back to the host zone.
type LocationSource interface {
	Location(ctx context.Context) (*time.Location, error)
}

// Scheduler turns tomorrow's confirmed appointments into reminder rows.
type Scheduler struct {
	store        *Store
	appointments AppointmentSource
	settings     LocationSource
	logger       *logging.Logger
	interval     time.Duration
	now          func() time.Time
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(store *Store, appointments AppointmentSource, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		store:        store,
		appointments: appointments,
		logger:       logger,
		interval:     time.Hour,
		now:          time.Now,
	}
}

// WithSettings attaches the practice settings source used to resolve
// the timezone the day boundary is computed in.
func (s *Scheduler) WithSettings(settings LocationSource) *Scheduler {
	s.settings = settings
	return s
}

// WithInterval overrides the scan interval.
func (s *Scheduler) WithInterval(d time.Duration) *Scheduler {
	if d > 0 {
		s.interval = d
	}
	return s
}

// Run scans on a ticker until the context ends. The first scan happens
// immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Scheduler) scan(ctx context.Context) {
	created, err := s.ScheduleDue(ctx)
	if err != nil {
		s.logger.Error("reminder scan failed", "error", err)
		return
	}
	if created > 0 {
		s.logger.Info("reminders scheduled", "count", created)
	}
}

// ScheduleDue creates reminder rows for confirmed appointments
// happening tomorrow and returns how many new rows were written.
// Appointments that already have a reminder are skipped, so the scan is
// safe to repeat.
func (s *Scheduler) ScheduleDue(ctx context.Context) (int, error) {
	if s.store == nil || s.appointments == nil {
		return 0, nil
	}

	target := s.now().In(s.location(ctx)).AddDate(0, 0, 1).Format(scheduling.DateLayout)
	appts, err := s.appointments.List(ctx, scheduling.AppointmentFilter{
		Date:   target,
		Status: scheduling.StatusConfirmed,
	})
	if err != nil {
		return 0, fmt.Errorf("reminders: list confirmed appointments: %w", err)
	}

	created := 0
	for i := range appts {
		appt := &appts[i]
		reminder := &Reminder{
			AppointmentID: appt.ID,
			PatientID:     appt.PatientID,
			DoctorName:    appt.DoctorName,
			TreatmentType: appt.TreatmentType,
			Date:          appt.Date,
			Time:          appt.Time,
		}
		ok, err := s.store.Create(ctx, reminder)
		if err != nil {
			s.logger.Error("reminder create failed", "error", err, "appointment_id", appt.ID)
			continue
		}
		if !ok {
			continue
		}
		created++
		s.logger.Info("reminder scheduled",
			"reminder_id", reminder.ID,
			"appointment_id", appt.ID,
			"date", appt.Date,
			"time", appt.Time,
		)
	}
	return created, nil
}

func (s *Scheduler) location(ctx context.Context) *time.Location {
	if s.settings == nil {
		return time.Local
	}
	loc, err := s.settings.Location(ctx)
	if err != nil || loc == nil {
		if err != nil {
			s.logger.Warn("failed to load practice timezone", "error", err)
		}
		return time.Local
	}
	return loc
}
