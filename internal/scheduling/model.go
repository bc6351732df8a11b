// Package scheduling implements the appointment time-slot subsystem:
// slot inventory, availability, atomic booking, and the appointment
// status lifecycle.
package scheduling

import (
	"strings"
	"time"
)

// Status is an appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusMissed    Status = "missed"
)

// validStatuses covers every state an appointment row may hold.
var validStatuses = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusCompleted: true,
	StatusCancelled: true,
	StatusMissed:    true,
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	return validStatuses[s]
}

// Procedure categories used by the availability estimate and quick-book
// profiles.
const (
	CategoryCleaning     = "cleaning"
	CategoryConsultation = "consultation"
	CategoryFollowUp     = "follow-up"
	CategoryEmergency    = "emergency"
)

// DefaultSlotType is assigned when a slot is created without a type.
const DefaultSlotType = "standard"

// TimeSlot is one bookable (date, time, doctor) unit.
//
// IsAvailable is an override flag, not a derived value: a slot can be
// blocked while capacity remains, or stay flagged available after its
// capacity is exhausted. Readers must tolerate both states.
type TimeSlot struct {
	ID              string    `json:"id"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	DoctorName      string    `json:"doctorName"`
	IsAvailable     bool      `json:"isAvailable"`
	SlotType        string    `json:"slotType"`
	DurationMinutes int       `json:"durationMinutes"`
	MaxBookings     int       `json:"maxBookings"`
	CurrentBookings int       `json:"currentBookings"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Remaining returns the unclaimed capacity, never below zero.
func (s *TimeSlot) Remaining() int {
	if s.CurrentBookings >= s.MaxBookings {
		return 0
	}
	return s.MaxBookings - s.CurrentBookings
}

// IsFull reports whether every booking unit is claimed.
func (s *TimeSlot) IsFull() bool {
	return s.Remaining() == 0
}

// Bookable reports whether the slot accepts a new booking right now.
func (s *TimeSlot) Bookable() bool {
	return s.IsAvailable && !s.IsFull()
}

// Key returns the value identity used to match appointments to slots.
func (s *TimeSlot) Key() SlotKey {
	return SlotKey{Date: s.Date, Time: s.Time, DoctorName: s.DoctorName}
}

// SlotKey identifies a slot by value. Booking matches by key, with the
// row id recorded on the appointment after a successful claim.
type SlotKey struct {
	Date       string
	Time       string
	DoctorName string
}

// Appointment is a patient's claim against a slot. Date and Time keep the
// portal's string representation ("2025-01-06", "10:30 AM"); SlotID links
// back to the claimed slot when the booking engine created the record.
type Appointment struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patientId"`
	DoctorName    string    `json:"doctorName"`
	TreatmentType string    `json:"treatmentType"`
	Date          string    `json:"appointmentDate"`
	Time          string    `json:"appointmentTime"`
	Status        Status    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	SlotID        string    `json:"slotId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// BookingRequest carries the fields a booking needs. PatientID comes from
// the session for patient callers and from the body for staff.
type BookingRequest struct {
	PatientID     string `json:"patientId"`
	DoctorName    string `json:"doctorName"`
	TreatmentType string `json:"treatmentType"`
	Date          string `json:"appointmentDate"`
	Time          string `json:"appointmentTime"`
	Notes         string `json:"notes"`
}

// Validate checks the required booking fields and their formats.
func (r *BookingRequest) Validate() error {
	if strings.TrimSpace(r.PatientID) == "" {
		return ErrMissingPatientID
	}
	if strings.TrimSpace(r.DoctorName) == "" {
		return ErrMissingDoctor
	}
	if strings.TrimSpace(r.TreatmentType) == "" {
		return ErrMissingTreatment
	}
	if strings.TrimSpace(r.Date) == "" {
		return ErrMissingDate
	}
	if strings.TrimSpace(r.Time) == "" {
		return ErrMissingTime
	}
	if _, err := ParseDate(r.Date); err != nil {
		return ErrBadDate
	}
	if _, err := ParseClock(r.Time); err != nil {
		return ErrBadClock
	}
	return nil
}

// CreateSlotRequest is the staff payload for creating a single slot.
type CreateSlotRequest struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	DoctorName      string `json:"doctorName"`
	IsAvailable     *bool  `json:"isAvailable"`
	SlotType        string `json:"slotType"`
	DurationMinutes int    `json:"durationMinutes"`
	MaxBookings     int    `json:"maxBookings"`
	Notes           string `json:"notes"`
}

// Validate checks the slot fields and applies defaults.
func (r *CreateSlotRequest) Validate() error {
	if strings.TrimSpace(r.Date) == "" {
		return ErrMissingDate
	}
	if strings.TrimSpace(r.Time) == "" {
		return ErrMissingTime
	}
	if strings.TrimSpace(r.DoctorName) == "" {
		return ErrMissingDoctor
	}
	if _, err := ParseDate(r.Date); err != nil {
		return ErrBadDate
	}
	clock, err := ParseClock(r.Time)
	if err != nil {
		return ErrBadClock
	}
	r.Time = clock.String()
	if r.SlotType == "" {
		r.SlotType = DefaultSlotType
	}
	if r.DurationMinutes <= 0 {
		r.DurationMinutes = DefaultSlotMinutes
	}
	if r.MaxBookings <= 0 {
		r.MaxBookings = 1
	}
	return nil
}

// Slot materializes the request into a TimeSlot without an id.
func (r *CreateSlotRequest) Slot() TimeSlot {
	available := true
	if r.IsAvailable != nil {
		available = *r.IsAvailable
	}
	return TimeSlot{
		Date:            r.Date,
		Time:            r.Time,
		DoctorName:      r.DoctorName,
		IsAvailable:     available,
		SlotType:        r.SlotType,
		DurationMinutes: r.DurationMinutes,
		MaxBookings:     r.MaxBookings,
		Notes:           r.Notes,
	}
}

// UpdateSlotRequest is a partial update; nil fields are left unchanged.
type UpdateSlotRequest struct {
	IsAvailable     *bool   `json:"isAvailable"`
	SlotType        *string `json:"slotType"`
	DurationMinutes *int    `json:"durationMinutes"`
	MaxBookings     *int    `json:"maxBookings"`
	Notes           *string `json:"notes"`
}

// Empty reports whether the update changes nothing.
func (r *UpdateSlotRequest) Empty() bool {
	return r.IsAvailable == nil && r.SlotType == nil && r.DurationMinutes == nil &&
		r.MaxBookings == nil && r.Notes == nil
}

// AppointmentFilter narrows staff appointment listings.
type AppointmentFilter struct {
	PatientID  string
	DoctorName string
	Date       string
	Status     Status
	Limit      int
	Offset     int
}
