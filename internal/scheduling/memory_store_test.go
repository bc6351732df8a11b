package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seedSlot(t *testing.T, store *MemoryStore, slot TimeSlot) TimeSlot {
	t.Helper()
	if err := store.Slots.Create(context.Background(), &slot); err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	return slot
}

func TestMemorySlotStoreCreateRejectsDuplicateKey(t *testing.T) {
	store := NewMemoryStore()
	seedSlot(t, store, TimeSlot{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Adams", MaxBookings: 1})

	dup := TimeSlot{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Adams", MaxBookings: 1}
	if err := store.Slots.Create(context.Background(), &dup); !errors.Is(err, ErrDuplicateSlot) {
		t.Fatalf("got %v, want ErrDuplicateSlot", err)
	}
}

func TestMemorySlotStoreBulkCreateSkipsDuplicates(t *testing.T) {
	store := NewMemoryStore()
	seedSlot(t, store, TimeSlot{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Adams", MaxBookings: 1})

	batch := []TimeSlot{
		{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Adams", MaxBookings: 1},
		{Date: "2025-01-06", Time: "8:30 AM", DoctorName: "Dr. Adams", MaxBookings: 1},
	}
	created, skipped, err := store.Slots.BulkCreate(context.Background(), batch)
	if err != nil {
		t.Fatalf("bulk create: %v", err)
	}
	if created != 1 || skipped != 1 {
		t.Fatalf("created=%d skipped=%d, want 1 and 1", created, skipped)
	}
}

func TestMemorySlotStoreListByDateOrdersAndFilters(t *testing.T) {
	store := NewMemoryStore()
	seedSlot(t, store, TimeSlot{Date: "2025-01-06", Time: "1:00 PM", DoctorName: "Dr. Adams", MaxBookings: 1})
	seedSlot(t, store, TimeSlot{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Brown", MaxBookings: 1})
	seedSlot(t, store, TimeSlot{Date: "2025-01-07", Time: "8:00 AM", DoctorName: "Dr. Adams", MaxBookings: 1})

	slots, err := store.Slots.ListByDate(context.Background(), "2025-01-06", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("len = %d, want 2", len(slots))
	}
	if slots[0].Time != "8:00 AM" || slots[1].Time != "1:00 PM" {
		t.Errorf("slots out of order: %s then %s", slots[0].Time, slots[1].Time)
	}

	slots, err = store.Slots.ListByDate(context.Background(), "2025-01-06", "Dr. Brown")
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(slots) != 1 || slots[0].DoctorName != "Dr. Brown" {
		t.Errorf("doctor filter failed: %+v", slots)
	}
}

func TestMemorySlotStoreUpdateGuardsCapacity(t *testing.T) {
	store := NewMemoryStore()
	slot := seedSlot(t, store, TimeSlot{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Adams", IsAvailable: true, MaxBookings: 2})

	err := store.Appointments.Book(context.Background(), &Appointment{
		PatientID: "p1", DoctorName: "Dr. Adams", TreatmentType: "cleaning",
		Date: "2025-01-06", Time: "8:00 AM", Status: StatusPending,
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	tooLow := 0
	if _, err := store.Slots.Update(context.Background(), slot.ID, UpdateSlotRequest{MaxBookings: &tooLow}); !errors.Is(err, ErrCapacityTooLow) {
		t.Fatalf("got %v, want ErrCapacityTooLow", err)
	}

	ok := 1
	updated, err := store.Slots.Update(context.Background(), slot.ID, UpdateSlotRequest{MaxBookings: &ok})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.MaxBookings != 1 || updated.CurrentBookings != 1 {
		t.Errorf("updated slot %+v", updated)
	}
}

func TestMemorySlotStoreDeleteUnlinksAppointments(t *testing.T) {
	store := NewMemoryStore()
	slot := seedSlot(t, store, TimeSlot{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Adams", IsAvailable: true, MaxBookings: 1})

	appt := Appointment{
		PatientID: "p1", DoctorName: "Dr. Adams", TreatmentType: "cleaning",
		Date: "2025-01-06", Time: "8:00 AM", Status: StatusPending,
	}
	if err := store.Appointments.Book(context.Background(), &appt); err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := store.Slots.Delete(context.Background(), slot.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Slots.GetByID(context.Background(), slot.ID); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("got %v, want ErrSlotNotFound", err)
	}

	kept, err := store.Appointments.GetByID(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("appointment must survive slot deletion: %v", err)
	}
	if kept.SlotID != "" {
		t.Errorf("slot link must clear, got %q", kept.SlotID)
	}
}

func TestMemoryBookDiagnosesFailures(t *testing.T) {
	store := NewMemoryStore()
	seedSlot(t, store, TimeSlot{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Adams", IsAvailable: false, MaxBookings: 1})

	appt := Appointment{PatientID: "p1", DoctorName: "Dr. Adams", TreatmentType: "cleaning", Date: "2025-01-06", Time: "8:00 AM"}
	if err := store.Appointments.Book(context.Background(), &appt); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("got %v, want ErrSlotUnavailable", err)
	}

	appt.Time = "9:00 AM"
	if err := store.Appointments.Book(context.Background(), &appt); !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("got %v, want ErrSlotNotFound", err)
	}
}

func TestMemoryBookConcurrentSingleCapacity(t *testing.T) {
	store := NewMemoryStore()
	seedSlot(t, store, TimeSlot{Date: "2025-01-06", Time: "10:30 AM", DoctorName: "Dr. Adams", IsAvailable: true, MaxBookings: 1})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			appt := Appointment{
				PatientID: "p", DoctorName: "Dr. Adams", TreatmentType: "cleaning",
				Date: "2025-01-06", Time: "10:30 AM", Status: StatusPending,
			}
			results[i] = store.Appointments.Book(context.Background(), &appt)
		}(i)
	}
	wg.Wait()

	successes, fulls := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrSlotFull):
			fulls++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || fulls != 1 {
		t.Fatalf("successes=%d fulls=%d, want exactly one of each", successes, fulls)
	}

	slots, _ := store.Slots.ListByDate(context.Background(), "2025-01-06", "")
	if slots[0].CurrentBookings != 1 {
		t.Fatalf("currentBookings = %d, want 1", slots[0].CurrentBookings)
	}
}

func TestMemoryTransitionGuardsStaleStatus(t *testing.T) {
	store := NewMemoryStore()
	seedSlot(t, store, TimeSlot{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Adams", IsAvailable: true, MaxBookings: 1})

	appt := Appointment{PatientID: "p1", DoctorName: "Dr. Adams", TreatmentType: "cleaning", Date: "2025-01-06", Time: "8:00 AM", Status: StatusPending}
	if err := store.Appointments.Book(context.Background(), &appt); err != nil {
		t.Fatalf("book: %v", err)
	}

	stale := appt
	if err := store.Appointments.Transition(context.Background(), &appt, StatusConfirmed, time.Now()); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := store.Appointments.Transition(context.Background(), &stale, StatusCancelled, time.Now()); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("got %v, want ErrStaleStatus", err)
	}
}

func TestMemoryCancelReleasesCapacity(t *testing.T) {
	store := NewMemoryStore()
	slot := seedSlot(t, store, TimeSlot{Date: "2025-01-06", Time: "8:00 AM", DoctorName: "Dr. Adams", IsAvailable: true, MaxBookings: 1})

	appt := Appointment{PatientID: "p1", DoctorName: "Dr. Adams", TreatmentType: "cleaning", Date: "2025-01-06", Time: "8:00 AM", Status: StatusPending}
	if err := store.Appointments.Book(context.Background(), &appt); err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := store.Appointments.Transition(context.Background(), &appt, StatusCancelled, time.Now()); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := store.Slots.GetByID(context.Background(), slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if got.CurrentBookings != 0 {
		t.Fatalf("currentBookings = %d, want 0 after cancel", got.CurrentBookings)
	}
}

func TestMemoryMarkMissedOnlyPending(t *testing.T) {
	store := NewMemoryStore()
	seedSlot(t, store, TimeSlot{Date: "2020-01-06", Time: "8:00 AM", DoctorName: "Dr. Adams", IsAvailable: true, MaxBookings: 2})

	first := Appointment{PatientID: "p1", DoctorName: "Dr. Adams", TreatmentType: "cleaning", Date: "2020-01-06", Time: "8:00 AM", Status: StatusPending}
	second := Appointment{PatientID: "p2", DoctorName: "Dr. Adams", TreatmentType: "cleaning", Date: "2020-01-06", Time: "8:00 AM", Status: StatusPending}
	if err := store.Appointments.Book(context.Background(), &first); err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := store.Appointments.Book(context.Background(), &second); err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := store.Appointments.Transition(context.Background(), &second, StatusConfirmed, time.Now()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	updated, err := store.Appointments.MarkMissed(context.Background(), "staff-1", []string{first.ID, second.ID, "no-such-id"}, time.Now())
	if err != nil {
		t.Fatalf("mark missed: %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, want 1 (only the pending row)", updated)
	}

	again, err := store.Appointments.MarkMissed(context.Background(), "staff-1", []string{first.ID}, time.Now())
	if err != nil {
		t.Fatalf("mark missed rerun: %v", err)
	}
	if again != 0 {
		t.Fatalf("rerun updated = %d, want 0", again)
	}
}
