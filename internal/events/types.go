package events

import "time"

// Event types written by the scheduling stores.
const (
	TypeAppointmentBooked        = "appointment.booked.v1"
	TypeAppointmentStatusChanged = "appointment.status_changed.v1"
	TypeAppointmentsSwept        = "appointment.cleanup_completed.v1"
)

// AppointmentBookedV1 is emitted when the booking engine creates an
// appointment. It rides in the same transaction as the slot claim.
type AppointmentBookedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	DoctorName    string    `json:"doctor_name"`
	TreatmentType string    `json:"treatment_type"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	BookedAt      time.Time `json:"booked_at"`
}

// AppointmentStatusChangedV1 is emitted on a lifecycle transition.
type AppointmentStatusChangedV1 struct {
	AppointmentID  string    `json:"appointment_id"`
	PatientID      string    `json:"patient_id"`
	DoctorName     string    `json:"doctor_name"`
	TreatmentType  string    `json:"treatment_type"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status"`
	ChangedAt      time.Time `json:"changed_at"`
}

// AppointmentsSweptV1 is emitted once per missed-appointment cleanup
// run, after the batch update commits.
type AppointmentsSweptV1 struct {
	ActorID        string    `json:"actor_id"`
	AppointmentIDs []string  `json:"appointment_ids"`
	Updated        int       `json:"updated"`
	SweptAt        time.Time `json:"swept_at"`
}
