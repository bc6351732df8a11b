package scheduling

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brightsmile/dental-scheduling/internal/events"
)

// Querier is the query surface shared by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool abstracts the pgx pool for testing.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SlotStore persists the slot inventory in Postgres.
type SlotStore struct {
	pool PgxPool
}

func NewSlotStore(pool PgxPool) *SlotStore {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &SlotStore{pool: pool}
}

// Create inserts one slot. The unique index on (slot_date, slot_time,
// doctor_name) is the duplicate guard; a conflicting insert returns
// ErrDuplicateSlot without writing anything.
func (s *SlotStore) Create(ctx context.Context, slot *TimeSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now

	query := `
		INSERT INTO time_slots (
			id, slot_date, slot_time, doctor_name, is_available,
			slot_type, duration_minutes, max_bookings, current_bookings,
			notes, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (slot_date, slot_time, doctor_name) DO NOTHING
		RETURNING id
	`
	var id string
	err := s.pool.QueryRow(ctx, query,
		slot.ID, slot.Date, slot.Time, slot.DoctorName, slot.IsAvailable,
		slot.SlotType, slot.DurationMinutes, slot.MaxBookings, slot.CurrentBookings,
		slot.Notes, slot.CreatedAt, slot.UpdatedAt,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return ErrDuplicateSlot
	}
	if err != nil {
		return fmt.Errorf("scheduling: create slot: %w", err)
	}
	return nil
}

// BulkCreate inserts a batch of slots in one transaction, skipping any
// (date, time, doctor) key already present. It returns how many rows
// were inserted and how many were skipped as duplicates.
func (s *SlotStore) BulkCreate(ctx context.Context, slots []TimeSlot) (int, int, error) {
	if len(slots) == 0 {
		return 0, 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("scheduling: begin bulk create: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO time_slots (
			id, slot_date, slot_time, doctor_name, is_available,
			slot_type, duration_minutes, max_bookings, current_bookings,
			notes, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (slot_date, slot_time, doctor_name) DO NOTHING
	`
	now := time.Now().UTC()
	created, skipped := 0, 0
	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.New().String()
		}
		slot.CreatedAt = now
		slot.UpdatedAt = now
		tag, err := tx.Exec(ctx, query,
			slot.ID, slot.Date, slot.Time, slot.DoctorName, slot.IsAvailable,
			slot.SlotType, slot.DurationMinutes, slot.MaxBookings, slot.CurrentBookings,
			slot.Notes, slot.CreatedAt, slot.UpdatedAt,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("scheduling: bulk insert slot: %w", err)
		}
		if tag.RowsAffected() == 1 {
			created++
		} else {
			skipped++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("scheduling: commit bulk create: %w", err)
	}
	return created, skipped, nil
}

func (s *SlotStore) GetByID(ctx context.Context, id string) (*TimeSlot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSlotNotFound
	}
	query := `
		SELECT id, slot_date, slot_time, doctor_name, is_available,
			slot_type, duration_minutes, max_bookings, current_bookings,
			notes, created_at, updated_at
		FROM time_slots
		WHERE id = $1
	`
	var slot TimeSlot
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&slot.ID, &slot.Date, &slot.Time, &slot.DoctorName, &slot.IsAvailable,
		&slot.SlotType, &slot.DurationMinutes, &slot.MaxBookings, &slot.CurrentBookings,
		&slot.Notes, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: get slot: %w", err)
	}
	return &slot, nil
}

// ListByDate returns all slots for a day, ordered by time of day. The
// 12-hour time strings do not sort as text, so ordering happens after
// the scan.
func (s *SlotStore) ListByDate(ctx context.Context, date string, doctor string) ([]TimeSlot, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if doctor != "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, slot_date, slot_time, doctor_name, is_available,
				slot_type, duration_minutes, max_bookings, current_bookings,
				notes, created_at, updated_at
			FROM time_slots
			WHERE slot_date = $1 AND doctor_name = $2`, date, doctor)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, slot_date, slot_time, doctor_name, is_available,
				slot_type, duration_minutes, max_bookings, current_bookings,
				notes, created_at, updated_at
			FROM time_slots
			WHERE slot_date = $1`, date)
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: list slots: %w", err)
	}
	defer rows.Close()

	slots, err := scanSlots(rows)
	if err != nil {
		return nil, err
	}
	SortSlotsByClock(slots)
	return slots, nil
}

// Update applies a partial update. Lowering max_bookings below the
// current booking count is rejected so the capacity invariant keeps
// holding for already-booked slots.
func (s *SlotStore) Update(ctx context.Context, id string, upd UpdateSlotRequest) (*TimeSlot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSlotNotFound
	}

	sets := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.IsAvailable != nil {
		add("is_available", *upd.IsAvailable)
	}
	if upd.SlotType != nil {
		add("slot_type", *upd.SlotType)
	}
	if upd.DurationMinutes != nil {
		add("duration_minutes", *upd.DurationMinutes)
	}
	capIdx := 0
	if upd.MaxBookings != nil {
		add("max_bookings", *upd.MaxBookings)
		capIdx = len(args)
	}
	if upd.Notes != nil {
		add("notes", *upd.Notes)
	}
	if len(sets) == 0 {
		return nil, ErrEmptyUpdate
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, id)
	guard := ""
	if capIdx > 0 {
		guard = fmt.Sprintf(" AND $%d >= current_bookings", capIdx)
	}
	query := fmt.Sprintf(`
		UPDATE time_slots SET %s
		WHERE id = $%d%s
		RETURNING id, slot_date, slot_time, doctor_name, is_available,
			slot_type, duration_minutes, max_bookings, current_bookings,
			notes, created_at, updated_at`,
		strings.Join(sets, ", "), len(args), guard)

	var slot TimeSlot
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&slot.ID, &slot.Date, &slot.Time, &slot.DoctorName, &slot.IsAvailable,
		&slot.SlotType, &slot.DurationMinutes, &slot.MaxBookings, &slot.CurrentBookings,
		&slot.Notes, &slot.CreatedAt, &slot.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, s.diagnoseUpdateMiss(ctx, id, upd)
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: update slot: %w", err)
	}
	return &slot, nil
}

func (s *SlotStore) diagnoseUpdateMiss(ctx context.Context, id string, upd UpdateSlotRequest) error {
	var current int
	err := s.pool.QueryRow(ctx, `SELECT current_bookings FROM time_slots WHERE id = $1`, id).Scan(&current)
	if err == pgx.ErrNoRows {
		return ErrSlotNotFound
	}
	if err != nil {
		return fmt.Errorf("scheduling: diagnose slot update: %w", err)
	}
	if upd.MaxBookings != nil && *upd.MaxBookings < current {
		return ErrCapacityTooLow
	}
	return ErrSlotNotFound
}

func (s *SlotStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrSlotNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM time_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scheduling: delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func scanSlots(rows pgx.Rows) ([]TimeSlot, error) {
	var result []TimeSlot
	for rows.Next() {
		var slot TimeSlot
		err := rows.Scan(
			&slot.ID, &slot.Date, &slot.Time, &slot.DoctorName, &slot.IsAvailable,
			&slot.SlotType, &slot.DurationMinutes, &slot.MaxBookings, &slot.CurrentBookings,
			&slot.Notes, &slot.CreatedAt, &slot.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan slot: %w", err)
		}
		result = append(result, slot)
	}
	return result, rows.Err()
}

// AppointmentStore persists appointments in Postgres. Booking and
// lifecycle writes run in transactions that also claim or release slot
// capacity and append outbox events.
type AppointmentStore struct {
	pool   PgxPool
	outbox *events.OutboxStore
}

func NewAppointmentStore(pool PgxPool, outbox *events.OutboxStore) *AppointmentStore {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return &AppointmentStore{pool: pool, outbox: outbox}
}

// Book atomically claims one unit of slot capacity and inserts the
// appointment. The claim is a conditional update keyed by (date, time,
// doctor); when it matches no row, a follow-up read distinguishes a
// missing slot from a blocked or full one.
func (s *AppointmentStore) Book(ctx context.Context, appt *Appointment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin booking: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	claim := `
		UPDATE time_slots
		SET current_bookings = current_bookings + 1, updated_at = $4
		WHERE slot_date = $1 AND slot_time = $2 AND doctor_name = $3
			AND is_available AND current_bookings < max_bookings
		RETURNING id
	`
	var slotID string
	err = tx.QueryRow(ctx, claim, appt.Date, appt.Time, appt.DoctorName, now).Scan(&slotID)
	if err == pgx.ErrNoRows {
		return s.diagnoseClaimMiss(ctx, tx, appt)
	}
	if err != nil {
		return fmt.Errorf("scheduling: claim slot: %w", err)
	}

	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	if appt.Status == "" {
		appt.Status = StatusPending
	}
	appt.SlotID = slotID
	appt.CreatedAt = now
	appt.UpdatedAt = now

	insert := `
		INSERT INTO appointments (
			id, patient_id, doctor_name, treatment_type,
			appointment_date, appointment_time, status, notes,
			slot_id, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	_, err = tx.Exec(ctx, insert,
		appt.ID, appt.PatientID, appt.DoctorName, appt.TreatmentType,
		appt.Date, appt.Time, string(appt.Status), appt.Notes,
		appt.SlotID, appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}

	if s.outbox != nil {
		_, err = s.outbox.Insert(ctx, tx, events.TypeAppointmentBooked, events.AppointmentBookedV1{
			AppointmentID: appt.ID,
			PatientID:     appt.PatientID,
			DoctorName:    appt.DoctorName,
			TreatmentType: appt.TreatmentType,
			Date:          appt.Date,
			Time:          appt.Time,
			BookedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("scheduling: record booked event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit booking: %w", err)
	}
	return nil
}

func (s *AppointmentStore) diagnoseClaimMiss(ctx context.Context, q Querier, appt *Appointment) error {
	var (
		available bool
		current   int
		max       int
	)
	err := q.QueryRow(ctx, `
		SELECT is_available, current_bookings, max_bookings
		FROM time_slots
		WHERE slot_date = $1 AND slot_time = $2 AND doctor_name = $3`,
		appt.Date, appt.Time, appt.DoctorName,
	).Scan(&available, &current, &max)
	if err == pgx.ErrNoRows {
		return ErrSlotNotFound
	}
	if err != nil {
		return fmt.Errorf("scheduling: diagnose booking conflict: %w", err)
	}
	if !available {
		return ErrSlotUnavailable
	}
	return ErrSlotFull
}

func (s *AppointmentStore) GetByID(ctx context.Context, id string) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAppointmentNotFound
	}
	query := `
		SELECT id, patient_id, doctor_name, treatment_type,
			appointment_date, appointment_time, status, notes,
			slot_id, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	defer rows.Close()

	appts, err := scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return nil, ErrAppointmentNotFound
	}
	return &appts[0], nil
}

// List returns appointments matching the filter, ordered by date and
// then time of day within the page.
func (s *AppointmentStore) List(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	conditions := []string{}
	args := []any{}
	where := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.PatientID != "" {
		where("patient_id", f.PatientID)
	}
	if f.DoctorName != "" {
		where("doctor_name", f.DoctorName)
	}
	if f.Date != "" {
		where("appointment_date", f.Date)
	}
	if f.Status != "" {
		where("status", string(f.Status))
	}

	query := `
		SELECT id, patient_id, doctor_name, treatment_type,
			appointment_date, appointment_time, status, notes,
			slot_id, created_at, updated_at
		FROM appointments
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY appointment_date, created_at LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()

	appts, err := scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	SortAppointments(appts)
	return appts, nil
}

func (s *AppointmentStore) ListByIDs(ctx context.Context, ids []string) ([]Appointment, error) {
	parsed := parseUUIDs(ids)
	if len(parsed) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, patient_id, doctor_name, treatment_type,
			appointment_date, appointment_time, status, notes,
			slot_id, created_at, updated_at
		FROM appointments
		WHERE id = ANY($1)
	`
	rows, err := s.pool.Query(ctx, query, parsed)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments by id: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (s *AppointmentStore) ListPendingThrough(ctx context.Context, date string) ([]Appointment, error) {
	query := `
		SELECT id, patient_id, doctor_name, treatment_type,
			appointment_date, appointment_time, status, notes,
			slot_id, created_at, updated_at
		FROM appointments
		WHERE status = 'pending' AND appointment_date <= $1
		ORDER BY appointment_date
	`
	rows, err := s.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list pending appointments: %w", err)
	}
	defer rows.Close()

	appts, err := scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	SortAppointments(appts)
	return appts, nil
}

// Transition applies a lifecycle change guarded on the status the
// caller read. Cancelling releases one unit of the linked slot's
// capacity in the same transaction.
func (s *AppointmentStore) Transition(ctx context.Context, appt *Appointment, next Status, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("scheduling: begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(next), now, appt.ID, string(appt.Status),
	)
	if err != nil {
		return fmt.Errorf("scheduling: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1`, appt.ID).Scan(&current)
		if err == pgx.ErrNoRows {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return fmt.Errorf("scheduling: diagnose transition: %w", err)
		}
		return ErrStaleStatus
	}

	if next == StatusCancelled && appt.SlotID != "" {
		_, err := tx.Exec(ctx, `
			UPDATE time_slots
			SET current_bookings = GREATEST(current_bookings - 1, 0), updated_at = $2
			WHERE id = $1`, appt.SlotID, now)
		if err != nil {
			return fmt.Errorf("scheduling: release slot: %w", err)
		}
	}

	if s.outbox != nil {
		_, err = s.outbox.Insert(ctx, tx, events.TypeAppointmentStatusChanged, events.AppointmentStatusChangedV1{
			AppointmentID:  appt.ID,
			PatientID:      appt.PatientID,
			DoctorName:     appt.DoctorName,
			TreatmentType:  appt.TreatmentType,
			Date:           appt.Date,
			Time:           appt.Time,
			Status:         string(next),
			PreviousStatus: string(appt.Status),
			ChangedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("scheduling: record status event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("scheduling: commit transition: %w", err)
	}
	appt.Status = next
	appt.UpdatedAt = now
	return nil
}

// MarkMissed flips still-pending appointments to missed and reports how
// many rows changed. Ids already past pending do not match the guard,
// so re-running a sweep is a no-op.
func (s *AppointmentStore) MarkMissed(ctx context.Context, actorID string, ids []string, now time.Time) (int, error) {
	parsed := parseUUIDs(ids)
	if len(parsed) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduling: begin cleanup: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET status = 'missed', updated_at = $1
		WHERE id = ANY($2) AND status = 'pending'`, now, parsed)
	if err != nil {
		return 0, fmt.Errorf("scheduling: mark missed: %w", err)
	}
	updated := int(tag.RowsAffected())

	if updated > 0 && s.outbox != nil {
		_, err = s.outbox.Insert(ctx, tx, events.TypeAppointmentsSwept, events.AppointmentsSweptV1{
			ActorID:        actorID,
			AppointmentIDs: ids,
			Updated:        updated,
			SweptAt:        now,
		})
		if err != nil {
			return 0, fmt.Errorf("scheduling: record sweep event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("scheduling: commit cleanup: %w", err)
	}
	return updated, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		var (
			appt   Appointment
			status string
			slotID sql.NullString
		)
		err := rows.Scan(
			&appt.ID, &appt.PatientID, &appt.DoctorName, &appt.TreatmentType,
			&appt.Date, &appt.Time, &status, &appt.Notes,
			&slotID, &appt.CreatedAt, &appt.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		appt.Status = Status(status)
		appt.SlotID = slotID.String
		result = append(result, appt)
	}
	return result, rows.Err()
}

func parseUUIDs(ids []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		out = append(out, parsed)
	}
	return out
}

var (
	_ SlotRepository        = (*SlotStore)(nil)
	_ AppointmentRepository = (*AppointmentStore)(nil)
	_ BookingStore          = (*AppointmentStore)(nil)
)
