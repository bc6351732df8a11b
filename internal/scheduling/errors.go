package scheduling

import "errors"

// Validation failures, rejected at the boundary before any state is
// written.
var (
	ErrMissingPatientID = errors.New("patientId is required")
	ErrMissingDoctor    = errors.New("doctorName is required")
	ErrMissingTreatment = errors.New("treatmentType is required")
	ErrMissingDate      = errors.New("date is required")
	ErrMissingTime      = errors.New("time is required")
	ErrBadDate          = errors.New("date must be formatted YYYY-MM-DD")
	ErrBadClock         = errors.New("time must be a 12-hour clock string such as \"10:30 AM\"")
	ErrUnknownDoctor    = errors.New("doctor is not on the practice roster")
	ErrUnknownStatus    = errors.New("unknown appointment status")
	ErrCapacityTooLow   = errors.New("maxBookings cannot drop below currentBookings")
	ErrEmptyUpdate      = errors.New("update contains no fields")
	ErrNoAppointmentIDs = errors.New("appointmentIds is required")
	ErrBadRange         = errors.New("date range must cover between 1 and 90 days")
)

// Lookup and conflict conditions.
var (
	// ErrSlotNotFound is returned when no slot matches the id or
	// (date, time, doctor) key.
	ErrSlotNotFound = errors.New("time slot not found")

	// ErrDuplicateSlot is returned when a slot already exists for the
	// same (date, time, doctor) key.
	ErrDuplicateSlot = errors.New("time slot already exists for this date, time, and doctor")

	// ErrSlotUnavailable is returned when the slot exists but its
	// availability flag is off.
	ErrSlotUnavailable = errors.New("time slot is not open for booking")

	// ErrSlotFull is returned when every booking unit is already
	// claimed. Callers should re-query availability instead of
	// retrying the same slot.
	ErrSlotFull = errors.New("time slot has no remaining capacity")

	// ErrAppointmentNotFound is returned for status updates or reads
	// against an unknown appointment id.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrInvalidTransition is returned when a status change is not in
	// the lifecycle table.
	ErrInvalidTransition = errors.New("status change is not allowed from the current status")

	// ErrStaleStatus is returned when the row changed state between
	// read and write.
	ErrStaleStatus = errors.New("appointment status changed concurrently")

	// ErrNotOwner is returned when a patient touches another
	// patient's appointment or quick-book job.
	ErrNotOwner = errors.New("appointment belongs to another patient")
)

var validationErrs = []error{
	ErrMissingPatientID, ErrMissingDoctor, ErrMissingTreatment,
	ErrMissingDate, ErrMissingTime, ErrBadDate, ErrBadClock,
	ErrUnknownDoctor, ErrUnknownStatus, ErrCapacityTooLow,
	ErrEmptyUpdate, ErrNoAppointmentIDs, ErrBadRange,
}

// IsValidation reports whether err belongs to the validation family,
// which maps to HTTP 400.
func IsValidation(err error) bool {
	for _, v := range validationErrs {
		if errors.Is(err, v) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err is a retryable or state conflict,
// which maps to HTTP 409.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotFull) ||
		errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrDuplicateSlot) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrStaleStatus)
}
