package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/brightsmile/dental-scheduling/internal/events"
)

func TestSlotStoreCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &SlotStore{pool: mock}

	mock.ExpectQuery("INSERT INTO time_slots").
		WithArgs(pgxmock.AnyArg(), "2025-01-06", "10:00 AM", "Dr. Smith", true, "standard", 30, 1, 0, "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))

	slot := &TimeSlot{
		Date: "2025-01-06", Time: "10:00 AM", DoctorName: "Dr. Smith",
		IsAvailable: true, SlotType: "standard", DurationMinutes: 30, MaxBookings: 1,
	}
	if err := store.Create(context.Background(), slot); err != nil {
		t.Fatalf("create: %v", err)
	}
	if slot.ID == "" {
		t.Fatal("expected generated slot id")
	}
}

func TestSlotStoreCreateDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &SlotStore{pool: mock}

	mock.ExpectQuery("INSERT INTO time_slots").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	slot := &TimeSlot{Date: "2025-01-06", Time: "10:00 AM", DoctorName: "Dr. Smith", MaxBookings: 1}
	if err := store.Create(context.Background(), slot); !errors.Is(err, ErrDuplicateSlot) {
		t.Fatalf("got %v, want ErrDuplicateSlot", err)
	}
}

func TestSlotStoreBulkCreateCounts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &SlotStore{pool: mock}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO time_slots").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO time_slots").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	slots := []TimeSlot{
		{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Smith", MaxBookings: 1},
		{Date: "2025-01-06", Time: "8:30 AM", DoctorName: "Dr. Smith", MaxBookings: 1},
	}
	created, skipped, err := store.BulkCreate(context.Background(), slots)
	if err != nil {
		t.Fatalf("bulk create: %v", err)
	}
	if created != 1 || skipped != 1 {
		t.Fatalf("created=%d skipped=%d, want 1/1", created, skipped)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSlotStoreUpdateDiagnosesCapacity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &SlotStore{pool: mock}
	id := uuid.New().String()

	mock.ExpectQuery("UPDATE time_slots SET max_bookings").
		WithArgs(1, pgxmock.AnyArg(), id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT current_bookings FROM time_slots").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"current_bookings"}).AddRow(2))

	one := 1
	if _, err := store.Update(context.Background(), id, UpdateSlotRequest{MaxBookings: &one}); !errors.Is(err, ErrCapacityTooLow) {
		t.Fatalf("got %v, want ErrCapacityTooLow", err)
	}
}

func TestSlotStoreDeleteMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &SlotStore{pool: mock}
	id := uuid.New().String()

	mock.ExpectExec("DELETE FROM time_slots").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := store.Delete(context.Background(), id); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("got %v, want ErrSlotNotFound", err)
	}
}

func TestAppointmentStoreBook(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &AppointmentStore{pool: mock, outbox: events.NewOutboxStore(mock)}
	slotID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE time_slots").
		WithArgs("2025-01-06", "10:00 AM", "Dr. Smith", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(slotID))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), "p1", "Dr. Smith", "cleaning", "2025-01-06", "10:00 AM", "pending", "", slotID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO appointment_events").
		WithArgs(pgxmock.AnyArg(), events.TypeAppointmentBooked, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt := &Appointment{
		PatientID: "p1", DoctorName: "Dr. Smith", TreatmentType: "cleaning",
		Date: "2025-01-06", Time: "10:00 AM",
	}
	if err := store.Book(context.Background(), appt); err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.ID == "" {
		t.Fatal("expected generated appointment id")
	}
	if appt.Status != StatusPending {
		t.Fatalf("status = %s, want pending", appt.Status)
	}
	if appt.SlotID != slotID {
		t.Fatalf("slot id = %s, want %s", appt.SlotID, slotID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppointmentStoreBookFullSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &AppointmentStore{pool: mock, outbox: events.NewOutboxStore(mock)}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE time_slots").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT is_available, current_bookings").
		WithArgs("2025-01-06", "10:00 AM", "Dr. Smith").
		WillReturnRows(pgxmock.NewRows([]string{"is_available", "current_bookings", "max_bookings"}).AddRow(true, 3, 3))
	mock.ExpectRollback()

	appt := &Appointment{
		PatientID: "p1", DoctorName: "Dr. Smith", TreatmentType: "cleaning",
		Date: "2025-01-06", Time: "10:00 AM",
	}
	if err := store.Book(context.Background(), appt); !errors.Is(err, ErrSlotFull) {
		t.Fatalf("got %v, want ErrSlotFull", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppointmentStoreBookBlockedSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &AppointmentStore{pool: mock, outbox: events.NewOutboxStore(mock)}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE time_slots").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT is_available, current_bookings").
		WillReturnRows(pgxmock.NewRows([]string{"is_available", "current_bookings", "max_bookings"}).AddRow(false, 0, 3))
	mock.ExpectRollback()

	appt := &Appointment{
		PatientID: "p1", DoctorName: "Dr. Smith", TreatmentType: "cleaning",
		Date: "2025-01-06", Time: "10:00 AM",
	}
	if err := store.Book(context.Background(), appt); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable", err)
	}
}

func TestAppointmentStoreBookMissingSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &AppointmentStore{pool: mock, outbox: events.NewOutboxStore(mock)}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE time_slots").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT is_available, current_bookings").
		WillReturnRows(pgxmock.NewRows([]string{"is_available", "current_bookings", "max_bookings"}))
	mock.ExpectRollback()

	appt := &Appointment{
		PatientID: "p1", DoctorName: "Dr. Smith", TreatmentType: "cleaning",
		Date: "2025-01-06", Time: "10:00 AM",
	}
	if err := store.Book(context.Background(), appt); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("got %v, want ErrSlotNotFound", err)
	}
}

func TestAppointmentStoreTransitionStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &AppointmentStore{pool: mock, outbox: events.NewOutboxStore(mock)}
	apptID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs("confirmed", pgxmock.AnyArg(), apptID, "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM appointments").
		WithArgs(apptID).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("cancelled"))
	mock.ExpectRollback()

	appt := &Appointment{ID: apptID, Status: StatusPending}
	if err := store.Transition(context.Background(), appt, StatusConfirmed, time.Now().UTC()); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("got %v, want ErrStaleStatus", err)
	}
	if appt.Status != StatusPending {
		t.Fatalf("status mutated to %s on failed transition", appt.Status)
	}
}

func TestAppointmentStoreTransitionCancelReleasesSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &AppointmentStore{pool: mock, outbox: events.NewOutboxStore(mock)}
	apptID := uuid.New().String()
	slotID := uuid.New().String()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs("cancelled", pgxmock.AnyArg(), apptID, "confirmed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE time_slots").
		WithArgs(slotID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO appointment_events").
		WithArgs(pgxmock.AnyArg(), events.TypeAppointmentStatusChanged, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt := &Appointment{ID: apptID, SlotID: slotID, Status: StatusConfirmed}
	if err := store.Transition(context.Background(), appt, StatusCancelled, time.Now().UTC()); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if appt.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", appt.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppointmentStoreMarkMissed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &AppointmentStore{pool: mock, outbox: events.NewOutboxStore(mock)}
	ids := []string{uuid.New().String(), uuid.New().String()}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE appointments SET status").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec("INSERT INTO appointment_events").
		WithArgs(pgxmock.AnyArg(), events.TypeAppointmentsSwept, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	updated, err := store.MarkMissed(context.Background(), "staff-1", ids, time.Now().UTC())
	if err != nil {
		t.Fatalf("mark missed: %v", err)
	}
	if updated != 2 {
		t.Fatalf("updated = %d, want 2", updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppointmentStoreListSortsByClock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &AppointmentStore{pool: mock, outbox: events.NewOutboxStore(mock)}
	now := time.Now().UTC()

	cols := []string{
		"id", "patient_id", "doctor_name", "treatment_type",
		"appointment_date", "appointment_time", "status", "notes",
		"slot_id", "created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT id, patient_id").
		WithArgs("p1", 50).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(uuid.New().String(), "p1", "Dr. Smith", "cleaning", "2025-01-06", "1:00 PM", "pending", "", nil, now, now).
			AddRow(uuid.New().String(), "p1", "Dr. Smith", "cleaning", "2025-01-06", "9:00 AM", "confirmed", "", nil, now, now))

	appts, err := store.List(context.Background(), AppointmentFilter{PatientID: "p1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("len = %d, want 2", len(appts))
	}
	if appts[0].Time != "9:00 AM" || appts[1].Time != "1:00 PM" {
		t.Fatalf("page not in clock order: %s, %s", appts[0].Time, appts[1].Time)
	}
	if appts[0].SlotID != "" {
		t.Fatalf("null slot id scanned as %q", appts[0].SlotID)
	}
}

func TestAppointmentStoreGetByIDInvalid(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	store := &AppointmentStore{pool: mock, outbox: events.NewOutboxStore(mock)}

	if _, err := store.GetByID(context.Background(), "not-a-uuid"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("got %v, want ErrAppointmentNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
