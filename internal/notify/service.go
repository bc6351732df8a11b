// Package notify builds and delivers the appointment mails: booking
// confirmations, status updates, and day-before reminders. The patient
// address comes from the patient directory; staff copies go to the
// recipients configured in the practice settings.
package notify

import (
	"context"
	"fmt"

	"github.com/brightsmile/dental-scheduling/internal/events"
	"github.com/brightsmile/dental-scheduling/internal/practice"
	"github.com/brightsmile/dental-scheduling/internal/reminders"
	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// SettingsSource retrieves the practice configuration document.
type SettingsSource interface {
	Get(ctx context.Context) (*practice.Settings, error)
}

// PatientDirectory resolves the email address for a patient identifier.
// The user store backing it lives outside this service; a nil directory
// limits mail to the staff recipients.
type PatientDirectory interface {
	EmailFor(ctx context.Context, patientID string) (string, error)
}

// Service sends the appointment mails.
type Service struct {
	email     EmailSender
	settings  SettingsSource
	directory PatientDirectory
	logger    *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, settings SettingsSource, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:    email,
		settings: settings,
		logger:   logger,
	}
}

// WithDirectory attaches the patient directory used to resolve patient
// addresses.
func (s *Service) WithDirectory(directory PatientDirectory) *Service {
	s.directory = directory
	return s
}

// SendBookingConfirmation mails the patient and staff when the booking
// engine creates an appointment.
func (s *Service) SendBookingConfirmation(ctx context.Context, evt events.AppointmentBookedV1) error {
	cfg, ok, err := s.prefs(ctx)
	if err != nil || !ok {
		return err
	}

	recipients := s.recipients(ctx, evt.PatientID, cfg.Notifications)
	if len(recipients) == 0 {
		s.logger.Debug("notify: no recipients for booking confirmation", "appointment_id", evt.AppointmentID)
		return nil
	}

	date := friendlyDate(evt.Date)
	subject := fmt.Sprintf("🦷 Appointment Booked - %s at %s", date, evt.Time)
	body := fmt.Sprintf(`Your appointment is booked!

Doctor: %s
Treatment: %s
Date: %s
Time: %s
Booking ref: %s

Need to change it? Call the front desk and we'll find a new time.

— %s`, evt.DoctorName, evt.TreatmentType, date, evt.Time, evt.AppointmentID, cfg.Name)

	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #0ea5e9;">🦷 Appointment Booked</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Doctor:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Treatment:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Date:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Time:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
</table>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">Booking ref %s — %s</p>
</div>`, evt.DoctorName, evt.TreatmentType, date, evt.Time, evt.AppointmentID, cfg.Name)

	var errs []error
	for _, recipient := range recipients {
		msg := EmailMessage{
			To:      recipient,
			Subject: subject,
			Body:    body,
			HTML:    html,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send email", "error", err, "to", recipient)
			errs = append(errs, err)
		} else {
			s.logger.Info("notify: booking confirmation sent", "to", recipient, "appointment_id", evt.AppointmentID)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

// SendStatusUpdate mails the patient and staff after a lifecycle
// transition.
func (s *Service) SendStatusUpdate(ctx context.Context, evt events.AppointmentStatusChangedV1) error {
	cfg, ok, err := s.prefs(ctx)
	if err != nil || !ok {
		return err
	}

	recipients := s.recipients(ctx, evt.PatientID, cfg.Notifications)
	if len(recipients) == 0 {
		s.logger.Debug("notify: no recipients for status update", "appointment_id", evt.AppointmentID)
		return nil
	}

	date := friendlyDate(evt.Date)
	subject := fmt.Sprintf("Appointment %s - %s at %s", statusLabel(evt.Status), date, evt.Time)
	body := fmt.Sprintf(`The status of your appointment has changed.

Doctor: %s
Treatment: %s
Date: %s
Time: %s
Status: %s (was %s)

— %s`, evt.DoctorName, evt.TreatmentType, date, evt.Time, evt.Status, evt.PreviousStatus, cfg.Name)

	var errs []error
	for _, recipient := range recipients {
		msg := EmailMessage{
			To:      recipient,
			Subject: subject,
			Body:    body,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send email", "error", err, "to", recipient)
			errs = append(errs, err)
		} else {
			s.logger.Info("notify: status update sent", "to", recipient, "appointment_id", evt.AppointmentID, "status", evt.Status)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

// SendReminder mails the day-before reminder. Implements the reminder
// sender's notifier.
func (s *Service) SendReminder(ctx context.Context, reminder reminders.Reminder) error {
	cfg, ok, err := s.prefs(ctx)
	if err != nil || !ok {
		return err
	}
	if !cfg.Notifications.RemindersEnabled {
		s.logger.Debug("notify: reminders disabled, skipping", "appointment_id", reminder.AppointmentID)
		return nil
	}

	recipients := s.recipients(ctx, reminder.PatientID, cfg.Notifications)
	if len(recipients) == 0 {
		s.logger.Debug("notify: no recipients for reminder", "appointment_id", reminder.AppointmentID)
		return nil
	}

	date := friendlyDate(reminder.Date)
	subject := fmt.Sprintf("⏰ Appointment Reminder - %s at %s", date, reminder.Time)
	body := fmt.Sprintf(`This is a friendly reminder about your upcoming appointment.

Doctor: %s
Treatment: %s
Date: %s
Time: %s

If you can't make it, call the front desk as soon as possible so we can
offer the time to another patient.

— %s`, reminder.DoctorName, reminder.TreatmentType, date, reminder.Time, cfg.Name)

	var errs []error
	for _, recipient := range recipients {
		msg := EmailMessage{
			To:      recipient,
			Subject: subject,
			Body:    body,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send email", "error", err, "to", recipient)
			errs = append(errs, err)
		} else {
			s.logger.Info("notify: reminder sent", "to", recipient, "appointment_id", reminder.AppointmentID)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

// prefs loads the practice settings and reports whether mail should go
// out at all.
func (s *Service) prefs(ctx context.Context) (*practice.Settings, bool, error) {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping")
		return nil, false, nil
	}
	if s.settings == nil {
		s.logger.Debug("notify: settings source not configured, skipping")
		return nil, false, nil
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Error("notify: failed to get practice settings", "error", err)
		return nil, false, fmt.Errorf("notify: get practice settings: %w", err)
	}
	if !cfg.Notifications.EmailEnabled {
		s.logger.Debug("notify: email notifications disabled")
		return nil, false, nil
	}
	return cfg, true, nil
}

// recipients resolves the patient address and appends the staff copies.
func (s *Service) recipients(ctx context.Context, patientID string, prefs practice.NotificationPrefs) []string {
	var out []string
	if s.directory != nil && patientID != "" {
		addr, err := s.directory.EmailFor(ctx, patientID)
		if err != nil {
			s.logger.Warn("notify: patient address lookup failed", "error", err, "patient_id", patientID)
		} else if addr != "" {
			out = append(out, addr)
		}
	}
	out = append(out, prefs.EmailRecipients...)
	return out
}

func friendlyDate(date string) string {
	t, err := scheduling.ParseDate(date)
	if err != nil {
		return date
	}
	return t.Format("Monday, January 2, 2006")
}

func statusLabel(status string) string {
	switch scheduling.Status(status) {
	case scheduling.StatusConfirmed:
		return "Confirmed"
	case scheduling.StatusCancelled:
		return "Cancelled"
	case scheduling.StatusCompleted:
		return "Completed"
	case scheduling.StatusMissed:
		return "Marked Missed"
	default:
		return "Updated"
	}
}

// StaticDirectory is a fixed patient → address map for development and
// tests.
type StaticDirectory map[string]string

// EmailFor returns the mapped address, empty when unknown.
func (d StaticDirectory) EmailFor(ctx context.Context, patientID string) (string, error) {
	return d[patientID], nil
}

var _ PatientDirectory = (StaticDirectory)(nil)
var _ reminders.Notifier = (*Service)(nil)
