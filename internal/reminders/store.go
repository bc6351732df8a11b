package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides CRUD operations for appointment_reminders.
type Store struct {
	db DB
}

// NewStore creates a reminders store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Create inserts a reminder unless one already exists for the
// appointment. It reports whether a new row was written; a false return
// with a nil error means the appointment was already scheduled.
func (s *Store) Create(ctx context.Context, r *Reminder) (bool, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.NextAttemptAt.IsZero() {
		r.NextAttemptAt = now
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO appointment_reminders (id, appointment_id, patient_id, doctor_name, treatment_type, appointment_date, appointment_time, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (appointment_id) DO NOTHING`,
		r.ID, r.AppointmentID, r.PatientID, r.DoctorName, r.TreatmentType,
		r.Date, r.Time, string(r.Status), r.Attempts, r.NextAttemptAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("reminders: create: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListDue returns pending reminders whose next attempt is on or before
// asOf, oldest first. Rows that have exhausted maxAttempts stay pending
// but drop out of the due list.
func (s *Store) ListDue(ctx context.Context, asOf time.Time, limit, maxAttempts int) ([]Reminder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, appointment_id, patient_id, doctor_name, treatment_type, appointment_date, appointment_time, status, attempts, next_attempt_at, sent_at, cancelled_at, created_at, updated_at
		FROM appointment_reminders
		WHERE status = 'pending' AND next_attempt_at <= $1 AND attempts < $2
		ORDER BY next_attempt_at ASC
		LIMIT $3`, asOf, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("reminders: list due: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// GetByAppointment returns the reminder for an appointment, or nil when
// none has been scheduled.
func (s *Store) GetByAppointment(ctx context.Context, appointmentID string) (*Reminder, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, appointment_id, patient_id, doctor_name, treatment_type, appointment_date, appointment_time, status, attempts, next_attempt_at, sent_at, cancelled_at, created_at, updated_at
		FROM appointment_reminders
		WHERE appointment_id = $1
		LIMIT 1`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("reminders: get by appointment: %w", err)
	}
	defer rows.Close()
	reminders, err := scanReminders(rows)
	if err != nil {
		return nil, err
	}
	if len(reminders) == 0 {
		return nil, nil
	}
	return &reminders[0], nil
}

// MarkSent transitions a reminder from pending → sent.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders SET status = 'sent', sent_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending'`, now, id)
	if err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminders: mark sent: no pending reminder with id %s", id)
	}
	return nil
}

// ScheduleRetry bumps the attempt counter and defers the next send. A
// reminder cancelled in the meantime is left untouched.
func (s *Store) ScheduleRetry(ctx context.Context, id uuid.UUID, nextAttempt time.Time) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders SET attempts = attempts + 1, next_attempt_at = $1, updated_at = $2
		WHERE id = $3 AND status = 'pending'`, nextAttempt, now, id)
	if err != nil {
		return fmt.Errorf("reminders: schedule retry: %w", err)
	}
	return nil
}

// CancelByAppointment cancels any not-yet-sent reminder for the
// appointment and returns how many rows changed.
func (s *Store) CancelByAppointment(ctx context.Context, appointmentID string) (int64, error) {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE appointment_reminders SET status = 'cancelled', cancelled_at = $1, updated_at = $1
		WHERE appointment_id = $2 AND status = 'pending'`, now, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("reminders: cancel by appointment: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanReminders(rows pgx.Rows) ([]Reminder, error) {
	var result []Reminder
	for rows.Next() {
		var r Reminder
		var status string
		err := rows.Scan(
			&r.ID, &r.AppointmentID, &r.PatientID, &r.DoctorName,
			&r.TreatmentType, &r.Date, &r.Time,
			&status, &r.Attempts, &r.NextAttemptAt,
			&r.SentAt, &r.CancelledAt,
			&r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("reminders: scan reminder: %w", err)
		}
		r.Status = ReminderStatus(status)
		result = append(result, r)
	}
	return result, rows.Err()
}
