package scheduling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryCore holds the maps shared by the in-memory stores. Slots and
// appointments live behind one lock so Book sees a consistent view of
// slot capacity.
type memoryCore struct {
	mu           sync.RWMutex
	slots        map[string]*TimeSlot
	byKey        map[SlotKey]string
	appointments map[string]*Appointment
}

// MemoryStore is an in-memory implementation of the scheduling stores,
// used by tests and local development.
type MemoryStore struct {
	Slots        *MemorySlotStore
	Appointments *MemoryAppointmentStore
}

// NewMemoryStore creates an empty in-memory store pair.
func NewMemoryStore() *MemoryStore {
	core := &memoryCore{
		slots:        make(map[string]*TimeSlot),
		byKey:        make(map[SlotKey]string),
		appointments: make(map[string]*Appointment),
	}
	return &MemoryStore{
		Slots:        &MemorySlotStore{core: core},
		Appointments: &MemoryAppointmentStore{core: core},
	}
}

// MemorySlotStore implements SlotRepository over the shared maps.
type MemorySlotStore struct {
	core *memoryCore
}

func (s *MemorySlotStore) Create(ctx context.Context, slot *TimeSlot) error {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()
	return s.core.insertSlot(slot)
}

func (s *MemorySlotStore) BulkCreate(ctx context.Context, slots []TimeSlot) (int, int, error) {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()

	created, skipped := 0, 0
	for i := range slots {
		if err := s.core.insertSlot(&slots[i]); err != nil {
			if errors.Is(err, ErrDuplicateSlot) {
				skipped++
				continue
			}
			return created, skipped, err
		}
		created++
	}
	return created, skipped, nil
}

func (s *MemorySlotStore) GetByID(ctx context.Context, id string) (*TimeSlot, error) {
	s.core.mu.RLock()
	defer s.core.mu.RUnlock()

	slot, ok := s.core.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *slot
	return &cp, nil
}

func (s *MemorySlotStore) ListByDate(ctx context.Context, date string, doctor string) ([]TimeSlot, error) {
	s.core.mu.RLock()
	defer s.core.mu.RUnlock()

	var out []TimeSlot
	for _, slot := range s.core.slots {
		if slot.Date != date {
			continue
		}
		if doctor != "" && slot.DoctorName != doctor {
			continue
		}
		out = append(out, *slot)
	}
	SortSlotsByClock(out)
	return out, nil
}

func (s *MemorySlotStore) Update(ctx context.Context, id string, upd UpdateSlotRequest) (*TimeSlot, error) {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()

	slot, ok := s.core.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if upd.MaxBookings != nil && *upd.MaxBookings < slot.CurrentBookings {
		return nil, ErrCapacityTooLow
	}
	if upd.IsAvailable != nil {
		slot.IsAvailable = *upd.IsAvailable
	}
	if upd.SlotType != nil {
		slot.SlotType = *upd.SlotType
	}
	if upd.DurationMinutes != nil {
		slot.DurationMinutes = *upd.DurationMinutes
	}
	if upd.MaxBookings != nil {
		slot.MaxBookings = *upd.MaxBookings
	}
	if upd.Notes != nil {
		slot.Notes = *upd.Notes
	}
	slot.UpdatedAt = time.Now().UTC()
	cp := *slot
	return &cp, nil
}

func (s *MemorySlotStore) Delete(ctx context.Context, id string) error {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()

	slot, ok := s.core.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	delete(s.core.byKey, slot.Key())
	delete(s.core.slots, id)
	for _, appt := range s.core.appointments {
		if appt.SlotID == id {
			appt.SlotID = ""
		}
	}
	return nil
}

func (c *memoryCore) insertSlot(slot *TimeSlot) error {
	if _, exists := c.byKey[slot.Key()]; exists {
		return ErrDuplicateSlot
	}
	if slot.ID == "" {
		slot.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	cp := *slot
	c.slots[cp.ID] = &cp
	c.byKey[cp.Key()] = cp.ID
	return nil
}

// MemoryAppointmentStore implements AppointmentRepository and
// BookingStore over the shared maps.
type MemoryAppointmentStore struct {
	core *memoryCore
}

// Book claims one unit of slot capacity and records the appointment
// under the same lock, so two concurrent bookings of a one-unit slot
// resolve to exactly one success.
func (s *MemoryAppointmentStore) Book(ctx context.Context, appt *Appointment) error {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()

	key := SlotKey{Date: appt.Date, Time: appt.Time, DoctorName: appt.DoctorName}
	id, ok := s.core.byKey[key]
	if !ok {
		return ErrSlotNotFound
	}
	slot := s.core.slots[id]
	if !slot.IsAvailable {
		return ErrSlotUnavailable
	}
	if slot.IsFull() {
		return ErrSlotFull
	}

	now := time.Now().UTC()
	slot.CurrentBookings++
	slot.UpdatedAt = now

	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	appt.SlotID = slot.ID
	appt.CreatedAt = now
	appt.UpdatedAt = now
	cp := *appt
	s.core.appointments[cp.ID] = &cp
	return nil
}

func (s *MemoryAppointmentStore) GetByID(ctx context.Context, id string) (*Appointment, error) {
	s.core.mu.RLock()
	defer s.core.mu.RUnlock()

	appt, ok := s.core.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *appt
	return &cp, nil
}

func (s *MemoryAppointmentStore) List(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	s.core.mu.RLock()
	defer s.core.mu.RUnlock()

	var out []Appointment
	for _, appt := range s.core.appointments {
		if f.PatientID != "" && appt.PatientID != f.PatientID {
			continue
		}
		if f.DoctorName != "" && appt.DoctorName != f.DoctorName {
			continue
		}
		if f.Date != "" && appt.Date != f.Date {
			continue
		}
		if f.Status != "" && appt.Status != f.Status {
			continue
		}
		out = append(out, *appt)
	}
	SortAppointments(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryAppointmentStore) ListByIDs(ctx context.Context, ids []string) ([]Appointment, error) {
	s.core.mu.RLock()
	defer s.core.mu.RUnlock()

	var out []Appointment
	for _, id := range ids {
		if appt, ok := s.core.appointments[id]; ok {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (s *MemoryAppointmentStore) ListPendingThrough(ctx context.Context, date string) ([]Appointment, error) {
	s.core.mu.RLock()
	defer s.core.mu.RUnlock()

	var out []Appointment
	for _, appt := range s.core.appointments {
		if appt.Status != StatusPending {
			continue
		}
		if appt.Date > date {
			continue
		}
		out = append(out, *appt)
	}
	SortAppointments(out)
	return out, nil
}

func (s *MemoryAppointmentStore) Transition(ctx context.Context, appt *Appointment, next Status, now time.Time) error {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()

	current, ok := s.core.appointments[appt.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if current.Status != appt.Status {
		return ErrStaleStatus
	}

	current.Status = next
	current.UpdatedAt = now
	if next == StatusCancelled && current.SlotID != "" {
		if slot, ok := s.core.slots[current.SlotID]; ok && slot.CurrentBookings > 0 {
			slot.CurrentBookings--
			slot.UpdatedAt = now
		}
	}
	appt.Status = next
	appt.UpdatedAt = now
	return nil
}

func (s *MemoryAppointmentStore) MarkMissed(ctx context.Context, actorID string, ids []string, now time.Time) (int, error) {
	s.core.mu.Lock()
	defer s.core.mu.Unlock()

	updated := 0
	for _, id := range ids {
		appt, ok := s.core.appointments[id]
		if !ok || appt.Status != StatusPending {
			continue
		}
		appt.Status = StatusMissed
		appt.UpdatedAt = now
		updated++
	}
	return updated, nil
}

var (
	_ SlotRepository        = (*MemorySlotStore)(nil)
	_ AppointmentRepository = (*MemoryAppointmentStore)(nil)
	_ BookingStore          = (*MemoryAppointmentStore)(nil)
)
