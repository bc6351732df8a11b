package scheduling

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brightsmile/dental-scheduling/internal/observability/metrics"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

var bookingTracer = otel.Tracer("dental.internal.scheduling.booking")

// Engine turns a validated booking request into a persisted
// appointment. The store guarantees the claim and the insert commit
// together, so the engine never observes a claimed slot without its
// appointment.
type Engine struct {
	store    BookingStore
	settings SettingsSource
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics
}

func NewEngine(store BookingStore, logger *logging.Logger) *Engine {
	if store == nil {
		panic("scheduling: booking store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{store: store, logger: logger}
}

// WithSettings enables roster validation against the practice
// configuration. Without it, any doctor name is accepted.
func (e *Engine) WithSettings(settings SettingsSource) *Engine {
	e.settings = settings
	return e
}

func (e *Engine) WithMetrics(m *metrics.SchedulingMetrics) *Engine {
	e.metrics = m
	return e
}

// Book validates the request and books the slot. On success the
// returned appointment carries its generated id, the claimed slot id,
// and status pending.
func (e *Engine) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "scheduling.book")
	defer span.End()

	start := time.Now()
	appt, err := e.book(ctx, req)
	outcome := bookingOutcome(err)
	e.metrics.ObserveBooking(outcome, time.Since(start).Seconds())

	if err != nil {
		span.SetAttributes(attribute.String("booking.outcome", outcome))
		if !IsValidation(err) && !IsConflict(err) && !errors.Is(err, ErrSlotNotFound) {
			e.logger.Error("booking failed", "error", err, "doctor", req.DoctorName, "date", req.Date)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("booking.outcome", outcome),
		attribute.String("appointment.id", appt.ID),
	)
	e.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"doctor", appt.DoctorName,
		"date", appt.Date,
		"time", appt.Time,
	)
	return appt, nil
}

func (e *Engine) book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	clock, err := ParseClock(req.Time)
	if err != nil {
		return nil, ErrBadClock
	}
	if err := e.checkRoster(ctx, req.DoctorName); err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID:     req.PatientID,
		DoctorName:    req.DoctorName,
		TreatmentType: req.TreatmentType,
		Date:          req.Date,
		Time:          clock.String(),
		Status:        StatusPending,
		Notes:         req.Notes,
	}
	if err := e.store.Book(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

func (e *Engine) checkRoster(ctx context.Context, doctor string) error {
	if e.settings == nil {
		return nil
	}
	roster, err := e.settings.Roster(ctx)
	if err != nil {
		return err
	}
	if len(roster) == 0 {
		return nil
	}
	for _, name := range roster {
		if name == doctor {
			return nil
		}
	}
	return ErrUnknownDoctor
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrSlotNotFound):
		return "slot_not_found"
	case IsValidation(err):
		return "validation_failed"
	default:
		return "error"
	}
}
