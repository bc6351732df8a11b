// Package reminders schedules and delivers day-before notices for
// confirmed appointments. A ticker scheduler scans tomorrow's confirmed
// appointments into reminder rows; a sender drains due rows, retrying
// transient failures with exponential backoff.
package reminders

import (
	"time"

	"github.com/google/uuid"
)

// ReminderStatus tracks the lifecycle of an appointment reminder.
type ReminderStatus string

const (
	StatusPending   ReminderStatus = "pending"
	StatusSent      ReminderStatus = "sent"
	StatusCancelled ReminderStatus = "cancelled"
)

// Reminder is one scheduled day-before notice. Doctor, date, and time
// are snapshotted at scheduling time so the mail can be built without
// re-reading the appointment.
type Reminder struct {
	ID            uuid.UUID      `json:"id"`
	AppointmentID string         `json:"appointment_id"`
	PatientID     string         `json:"patient_id"`
	DoctorName    string         `json:"doctor_name"`
	TreatmentType string         `json:"treatment_type"`
	Date          string         `json:"appointment_date"`
	Time          string         `json:"appointment_time"`
	Status        ReminderStatus `json:"status"`
	Attempts      int            `json:"attempts"`
	NextAttemptAt time.Time      `json:"next_attempt_at"`
	SentAt        *time.Time     `json:"sent_at,omitempty"`
	CancelledAt   *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
