package quickbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/brightsmile/dental-scheduling/internal/observability/metrics"
	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

var quickbookTracer = otel.Tracer("dental.internal.quickbook")

// Booker is the subset of the scheduling engine the orchestrator drives.
type Booker interface {
	Book(ctx context.Context, req scheduling.BookingRequest) (*scheduling.Appointment, error)
}

// SlotFinder is the read side used to verify candidates before confirm.
type SlotFinder interface {
	AvailableSlots(ctx context.Context, date string, doctor string) ([]scheduling.TimeSlot, error)
}

// LocationSource supplies the practice timezone so "tomorrow" is
// computed on the practice's calendar, not the server's.
type LocationSource interface {
	Location(ctx context.Context) (*time.Location, error)
}

// Orchestrator runs one quick-book job through its four steps:
// select_type resolves the profile, find_slot matches the candidate
// times against tomorrow's live availability, confirm books through
// the engine, complete records the appointment on the job.
//
// The candidate list is a fast-path heuristic, never a reservation: a
// candidate can be taken between find_slot and confirm, in which case
// the next live candidate is tried. When no candidate can be claimed
// the job fails with a capacity code and nothing is held.
type Orchestrator struct {
	finder   SlotFinder
	booker   Booker
	jobs     JobUpdater
	settings LocationSource
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics
	now      func() time.Time
}

func NewOrchestrator(finder SlotFinder, booker Booker, jobs JobUpdater, logger *logging.Logger) *Orchestrator {
	if finder == nil {
		panic("quickbook: slot finder cannot be nil")
	}
	if booker == nil {
		panic("quickbook: booker cannot be nil")
	}
	if jobs == nil {
		panic("quickbook: job store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		finder: finder,
		booker: booker,
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
	}
}

// WithSettings wires the practice timezone source.
func (o *Orchestrator) WithSettings(settings LocationSource) *Orchestrator {
	o.settings = settings
	return o
}

func (o *Orchestrator) WithMetrics(m *metrics.SchedulingMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// Run executes the pipeline for one job. Outcomes, including domain
// failures such as an unknown treatment or no capacity, are recorded on
// the job record; the returned error reports only job-store write
// problems.
func (o *Orchestrator) Run(ctx context.Context, jobID string, req Request) error {
	ctx, span := quickbookTracer.Start(ctx, "quickbook.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("quickbook.job_id", jobID),
		attribute.String("quickbook.treatment", req.TreatmentType),
	)

	// select_type
	o.markStep(ctx, jobID, StepSelectType)
	profile, ok := LookupProfile(req.TreatmentType)
	if !ok {
		return o.fail(ctx, span, jobID, StepSelectType, FailCodeUnknownTreatment,
			fmt.Sprintf("unknown treatment type %q", req.TreatmentType))
	}
	o.metrics.ObserveQuickBookStep(StepSelectType, "ok")

	// find_slot
	o.markStep(ctx, jobID, StepFindSlot)
	date := TargetDate(o.now(), o.location(ctx))
	open, err := o.finder.AvailableSlots(ctx, date, "")
	if err != nil {
		return o.fail(ctx, span, jobID, StepFindSlot, FailCodeInternal,
			fmt.Sprintf("availability lookup failed: %v", err))
	}
	candidates := matchCandidates(profile, open)
	if len(candidates) == 0 {
		return o.fail(ctx, span, jobID, StepFindSlot, FailCodeNoAvailability,
			fmt.Sprintf("no open slots on %s for %s", date, profile.TreatmentType))
	}
	o.metrics.ObserveQuickBookStep(StepFindSlot, "ok")

	// confirm
	o.markStep(ctx, jobID, StepConfirm)
	appt, err := o.confirm(ctx, jobID, req, profile, candidates)
	if err != nil {
		code := FailCodeInternal
		switch {
		case scheduling.IsConflict(err), errors.Is(err, scheduling.ErrSlotNotFound):
			code = FailCodeNoAvailability
		case scheduling.IsValidation(err):
			code = FailCodeInvalidRequest
		}
		return o.fail(ctx, span, jobID, StepConfirm, code, err.Error())
	}
	o.metrics.ObserveQuickBookStep(StepConfirm, "ok")

	// complete
	if err := o.jobs.MarkCompleted(ctx, jobID, appt); err != nil {
		return fmt.Errorf("quickbook: failed to record completion: %w", err)
	}
	o.metrics.ObserveQuickBookStep(StepComplete, "ok")
	span.SetAttributes(attribute.String("appointment.id", appt.ID))
	o.logger.Info("quick-book job completed",
		"job_id", jobID,
		"appointment_id", appt.ID,
		"doctor", appt.DoctorName,
		"date", appt.Date,
		"time", appt.Time,
	)
	return nil
}

// confirm books the first candidate the engine will accept. A conflict
// means another booking raced us to the slot, so the next candidate is
// tried; any other error stops the loop.
func (o *Orchestrator) confirm(ctx context.Context, jobID string, req Request, profile Profile, candidates []scheduling.TimeSlot) (*scheduling.Appointment, error) {
	var lastErr error
	for _, slot := range candidates {
		appt, err := o.booker.Book(ctx, scheduling.BookingRequest{
			PatientID:     req.PatientID,
			DoctorName:    slot.DoctorName,
			TreatmentType: profile.TreatmentType,
			Date:          slot.Date,
			Time:          slot.Time,
			Notes:         req.Notes,
		})
		if err == nil {
			return appt, nil
		}
		if scheduling.IsConflict(err) || errors.Is(err, scheduling.ErrSlotNotFound) {
			o.logger.Debug("quick-book candidate lost", "job_id", jobID, "time", slot.Time, "doctor", slot.DoctorName)
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr == nil {
		lastErr = scheduling.ErrSlotFull
	}
	return nil, lastErr
}

// matchCandidates orders tomorrow's open slots by the profile's
// preferred times. Every matching slot stays in the running so a race
// on the first pick can fall through to the next.
func matchCandidates(profile Profile, open []scheduling.TimeSlot) []scheduling.TimeSlot {
	byTime := make(map[string][]scheduling.TimeSlot, len(open))
	for _, slot := range open {
		byTime[slot.Time] = append(byTime[slot.Time], slot)
	}
	ordered := make([]scheduling.TimeSlot, 0, len(open))
	for _, t := range profile.CandidateTimes() {
		ordered = append(ordered, byTime[t]...)
	}
	return ordered
}

func (o *Orchestrator) markStep(ctx context.Context, jobID, step string) {
	if err := o.jobs.MarkStep(ctx, jobID, step); err != nil {
		o.logger.Warn("failed to record quick-book progress", "error", err, "job_id", jobID, "step", step)
	}
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, jobID, step, code, msg string) error {
	o.metrics.ObserveQuickBookStep(step, code)
	span.SetAttributes(attribute.String("quickbook.fail_code", code))
	o.logger.Info("quick-book job failed", "job_id", jobID, "step", step, "code", code, "reason", msg)
	if err := o.jobs.MarkFailed(ctx, jobID, code, msg); err != nil {
		return fmt.Errorf("quickbook: failed to record job failure: %w", err)
	}
	return nil
}

func (o *Orchestrator) location(ctx context.Context) *time.Location {
	if o.settings == nil {
		return time.Local
	}
	loc, err := o.settings.Location(ctx)
	if err != nil || loc == nil {
		o.logger.Warn("failed to load practice timezone", "error", err)
		return time.Local
	}
	return loc
}
