package scheduling

import (
	"context"
	"time"
)

// SlotRepository stores the bookable slot inventory. Capacity mutations
// outside Create/Update happen only through the BookingStore claim and
// Release, so the capacity invariant has a single owner.
type SlotRepository interface {
	Create(ctx context.Context, slot *TimeSlot) error
	BulkCreate(ctx context.Context, slots []TimeSlot) (created int, skipped int, err error)
	GetByID(ctx context.Context, id string) (*TimeSlot, error)
	ListByDate(ctx context.Context, date string, doctor string) ([]TimeSlot, error)
	Update(ctx context.Context, id string, upd UpdateSlotRequest) (*TimeSlot, error)
	Delete(ctx context.Context, id string) error
}

// AppointmentRepository stores appointment records. Status writes go
// through Transition and MarkMissed so every mutation re-checks the
// current state.
type AppointmentRepository interface {
	GetByID(ctx context.Context, id string) (*Appointment, error)
	List(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
	ListByIDs(ctx context.Context, ids []string) ([]Appointment, error)
	// ListPendingThrough returns pending appointments dated on or
	// before the given day, for the missed sweep.
	ListPendingThrough(ctx context.Context, date string) ([]Appointment, error)
	// Transition moves an appointment from its current status to
	// next, releasing slot capacity on cancellation. The write is
	// guarded on the previous status; a concurrent change surfaces
	// as ErrStaleStatus.
	Transition(ctx context.Context, appt *Appointment, next Status, now time.Time) error
	// MarkMissed flips the given pending appointments to missed and
	// returns how many rows changed. Already-missed ids do not match
	// the pending guard, which makes the sweep idempotent.
	MarkMissed(ctx context.Context, actorID string, ids []string, now time.Time) (int, error)
}

// BookingStore performs the atomic booking: claim one unit of slot
// capacity and insert the appointment as a single unit, so concurrent
// bookings of the same (date, time, doctor) key can never exceed
// maxBookings.
type BookingStore interface {
	Book(ctx context.Context, appt *Appointment) error
}

// SettingsSource supplies practice-level configuration to the
// scheduling services. The practice store implements it; a nil source
// falls back to built-in defaults.
type SettingsSource interface {
	// Roster returns the doctors slots are generated for.
	Roster(ctx context.Context) ([]string, error)
	// Location returns the practice timezone used to classify
	// appointments as past or upcoming.
	Location(ctx context.Context) (*time.Location, error)
}
