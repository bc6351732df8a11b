package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/brightsmile/dental-scheduling/internal/scheduling"
)

type stubAppointments struct {
	filter scheduling.AppointmentFilter
	appts  []scheduling.Appointment
	err    error
}

func (s *stubAppointments) List(ctx context.Context, f scheduling.AppointmentFilter) ([]scheduling.Appointment, error) {
	s.filter = f
	return s.appts, s.err
}

type fixedZone struct {
	loc *time.Location
}

func (z fixedZone) Location(ctx context.Context) (*time.Location, error) {
	return z.loc, nil
}

func confirmedAppointment(id, patient, clock string) scheduling.Appointment {
	return scheduling.Appointment{
		ID:            id,
		PatientID:     patient,
		DoctorName:    "Dr. Smith",
		TreatmentType: "cleaning",
		Date:          "2025-03-10",
		Time:          clock,
		Status:        scheduling.StatusConfirmed,
	}
}

func expectReminderInsert(mock pgxmock.PgxPoolIface, appointmentID string, inserted int64) {
	mock.ExpectExec("INSERT INTO appointment_reminders").
		WithArgs(pgxmock.AnyArg(), appointmentID, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "pending", 0,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", inserted))
}

func TestSchedulerCreatesRemindersForTomorrow(t *testing.T) {
	store, mock := newMockStore(t)
	appts := &stubAppointments{appts: []scheduling.Appointment{
		confirmedAppointment("appt-1", "patient-1", "10:30 AM"),
		confirmedAppointment("appt-2", "patient-2", "2:00 PM"),
	}}

	sched := NewScheduler(store, appts, nil).WithSettings(fixedZone{time.UTC})
	sched.now = func() time.Time { return time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC) }

	expectReminderInsert(mock, "appt-1", 1)
	expectReminderInsert(mock, "appt-2", 1)

	created, err := sched.ScheduleDue(context.Background())
	if err != nil {
		t.Fatalf("schedule due failed: %v", err)
	}
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}
	if appts.filter.Date != "2025-03-10" {
		t.Errorf("scanned date = %q, want %q", appts.filter.Date, "2025-03-10")
	}
	if appts.filter.Status != scheduling.StatusConfirmed {
		t.Errorf("scanned status = %q, want %q", appts.filter.Status, scheduling.StatusConfirmed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSchedulerSkipsAlreadyScheduled(t *testing.T) {
	store, mock := newMockStore(t)
	appts := &stubAppointments{appts: []scheduling.Appointment{
		confirmedAppointment("appt-1", "patient-1", "10:30 AM"),
		confirmedAppointment("appt-2", "patient-2", "2:00 PM"),
	}}

	sched := NewScheduler(store, appts, nil).WithSettings(fixedZone{time.UTC})
	sched.now = func() time.Time { return time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC) }

	expectReminderInsert(mock, "appt-1", 0)
	expectReminderInsert(mock, "appt-2", 1)

	created, err := sched.ScheduleDue(context.Background())
	if err != nil {
		t.Fatalf("schedule due failed: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
}

func TestSchedulerContinuesPastCreateError(t *testing.T) {
	store, mock := newMockStore(t)
	appts := &stubAppointments{appts: []scheduling.Appointment{
		confirmedAppointment("appt-1", "patient-1", "10:30 AM"),
		confirmedAppointment("appt-2", "patient-2", "2:00 PM"),
	}}

	sched := NewScheduler(store, appts, nil).WithSettings(fixedZone{time.UTC})
	sched.now = func() time.Time { return time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC) }

	mock.ExpectExec("INSERT INTO appointment_reminders").
		WithArgs(pgxmock.AnyArg(), "appt-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "pending", 0,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	expectReminderInsert(mock, "appt-2", 1)

	created, err := sched.ScheduleDue(context.Background())
	if err != nil {
		t.Fatalf("schedule due failed: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
}

func TestSchedulerComputesTomorrowInPracticeZone(t *testing.T) {
	store, _ := newMockStore(t)
	appts := &stubAppointments{}

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	sched := NewScheduler(store, appts, nil).WithSettings(fixedZone{ny})
	// 03:00 UTC on March 10 is still March 9 on the US east coast, so
	// "tomorrow" is March 10 there.
	sched.now = func() time.Time { return time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC) }

	if _, err := sched.ScheduleDue(context.Background()); err != nil {
		t.Fatalf("schedule due failed: %v", err)
	}
	if appts.filter.Date != "2025-03-10" {
		t.Errorf("scanned date = %q, want %q", appts.filter.Date, "2025-03-10")
	}
}

func TestSchedulerPropagatesListError(t *testing.T) {
	store, _ := newMockStore(t)
	appts := &stubAppointments{err: errors.New("db down")}

	sched := NewScheduler(store, appts, nil).WithSettings(fixedZone{time.UTC})
	if _, err := sched.ScheduleDue(context.Background()); err == nil {
		t.Fatal("expected list failure to propagate")
	}
}
