package scheduling

import (
	"context"
	"time"

	"github.com/brightsmile/dental-scheduling/internal/observability/metrics"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// legacyScheduled is an old portal status still present on some rows.
// It counts as upcoming but has no outgoing transitions.
const legacyScheduled Status = "scheduled"

// allowedTransitions is the lifecycle table. Completed, cancelled, and
// missed are terminal. Missed is never a transition target; it is only
// reachable through the cleanup sweep.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether the lifecycle table allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsMissed reports whether the appointment should be classified as
// missed: still pending with its date and time already in the past.
// Rows whose stored date or time cannot be parsed are left alone.
func IsMissed(appt *Appointment, now time.Time, loc *time.Location) bool {
	if appt.Status != StatusPending {
		return false
	}
	at, err := CombineDateTime(appt.Date, appt.Time, loc)
	if err != nil {
		return false
	}
	return at.Before(now)
}

// IsUpcoming reports whether the appointment shows in the upcoming set:
// pending, confirmed, or the legacy scheduled value, and not missed.
func IsUpcoming(appt *Appointment, now time.Time, loc *time.Location) bool {
	switch appt.Status {
	case StatusPending, StatusConfirmed, legacyScheduled:
	default:
		return false
	}
	return !IsMissed(appt, now, loc)
}

// Manager drives appointment status changes. Every write re-checks the
// stored status, so a stale read never silently overwrites a concurrent
// change.
type Manager struct {
	appts    AppointmentRepository
	settings SettingsSource
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics
}

func NewManager(appts AppointmentRepository, logger *logging.Logger) *Manager {
	if appts == nil {
		panic("scheduling: appointment repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{appts: appts, logger: logger}
}

// WithSettings supplies the practice timezone for missed
// classification. Without it the host timezone is used.
func (m *Manager) WithSettings(settings SettingsSource) *Manager {
	m.settings = settings
	return m
}

func (m *Manager) WithMetrics(mx *metrics.SchedulingMetrics) *Manager {
	m.metrics = mx
	return m
}

// UpdateStatus applies one lifecycle transition. Unknown target
// statuses and moves outside the table are rejected before any write.
func (m *Manager) UpdateStatus(ctx context.Context, id string, next Status) (*Appointment, error) {
	if !ValidStatus(next) {
		return nil, ErrUnknownStatus
	}
	appt, err := m.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, next) {
		return nil, ErrInvalidTransition
	}

	prev := appt.Status
	if err := m.appts.Transition(ctx, appt, next, time.Now().UTC()); err != nil {
		return nil, err
	}
	m.metrics.ObserveTransition(string(prev), string(next))
	m.logger.Info("appointment status updated",
		"appointment_id", appt.ID,
		"from", string(prev),
		"to", string(next),
	)
	return appt, nil
}

// CleanupMissed marks the given appointments missed where the
// classification rule holds, and reports how many rows changed.
// Ids that are unknown, no longer pending, or not yet in the past are
// skipped, which makes re-running a sweep a no-op.
func (m *Manager) CleanupMissed(ctx context.Context, actorID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrNoAppointmentIDs
	}
	appts, err := m.appts.ListByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}

	loc := m.location(ctx)
	now := time.Now().In(loc)
	eligible := make([]string, 0, len(appts))
	for i := range appts {
		if IsMissed(&appts[i], now, loc) {
			eligible = append(eligible, appts[i].ID)
		}
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	updated, err := m.appts.MarkMissed(ctx, actorID, eligible, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	m.metrics.ObserveCleanup(updated)
	m.logger.Info("missed appointment sweep",
		"actor", actorID,
		"requested", len(ids),
		"eligible", len(eligible),
		"updated", updated,
	)
	return updated, nil
}

func (m *Manager) location(ctx context.Context) *time.Location {
	if m.settings == nil {
		return time.Local
	}
	loc, err := m.settings.Location(ctx)
	if err != nil || loc == nil {
		return time.Local
	}
	return loc
}
