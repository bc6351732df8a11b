// Package audit persists the staff action trail for the scheduling
// portal.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// EventType identifies the audited action.
type EventType string

const (
	// EventSlotCreated is logged when staff creates a single slot.
	EventSlotCreated EventType = "slot.created"
	// EventSlotBulkGenerated is logged when staff runs the grid generator.
	EventSlotBulkGenerated EventType = "slot.bulk_generated"
	// EventSlotUpdated is logged when staff edits a slot.
	EventSlotUpdated EventType = "slot.updated"
	// EventSlotDeleted is logged when staff removes a slot.
	EventSlotDeleted EventType = "slot.deleted"
	// EventAppointmentBooked is logged when an appointment is created.
	EventAppointmentBooked EventType = "appointment.booked"
	// EventAppointmentStatusChanged is logged on lifecycle transitions.
	EventAppointmentStatusChanged EventType = "appointment.status_changed"
	// EventAppointmentCleanup is logged when a missed sweep runs.
	EventAppointmentCleanup EventType = "appointment.cleanup"
)

// Event is an immutable audit record. ActorID is the portal user (or
// system worker) that performed the action; SubjectID names the slot or
// appointment acted on.
type Event struct {
	ID        string          `json:"id"`
	EventType EventType       `json:"event_type"`
	ActorID   string          `json:"actor_id"`
	SubjectID string          `json:"subject_id,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Service handles audit trail writes and queries.
type Service struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewService creates an audit service.
func NewService(db *sql.DB, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{db: db, logger: logger}
}

// LogEvent records one audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO scheduling_audit_events (
			id, event_type, actor_id, subject_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.ActorID,
		nullString(event.SubjectID),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}

	return nil
}

// RecordEvent satisfies the scheduling handler's audit sink. A failed
// write is logged and swallowed so auditing never fails the request
// that triggered it.
func (s *Service) RecordEvent(ctx context.Context, actorID, eventType, subjectID string, details map[string]any) {
	var raw json.RawMessage
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err != nil {
			s.logger.Error("failed to marshal audit details", "event_type", eventType, "error", err)
		} else {
			raw = data
		}
	}

	err := s.LogEvent(ctx, Event{
		EventType: EventType(eventType),
		ActorID:   actorID,
		SubjectID: subjectID,
		Details:   raw,
	})
	if err != nil {
		s.logger.Error("failed to record audit event",
			"event_type", eventType,
			"actor_id", actorID,
			"error", err,
		)
	}
}

// Filter specifies criteria for querying audit events.
type Filter struct {
	ActorID   string
	EventType EventType
	SubjectID string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// QueryEvents retrieves audit events matching the filter, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, actor_id, subject_id, details, created_at
		FROM scheduling_audit_events
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	if filter.ActorID != "" {
		query += fmt.Sprintf(" AND actor_id = $%d", argIdx)
		args = append(args, filter.ActorID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", argIdx)
		args = append(args, filter.SubjectID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var subjectID sql.NullString
		err := rows.Scan(&e.ID, &e.EventType, &e.ActorID, &subjectID, &e.Details, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.SubjectID = subjectID.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to iterate events: %w", err)
	}

	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
