package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightsmile/dental-scheduling/internal/http/middleware"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// AuditLogger records staff actions for the audit trail. A nil logger
// disables auditing without changing handler behavior.
type AuditLogger interface {
	RecordEvent(ctx context.Context, actorID, eventType, subjectID string, details map[string]any)
}

// Services bundles the scheduling collaborators the handler exposes
// over HTTP.
type Services struct {
	Slots        SlotRepository
	Appointments AppointmentRepository
	Availability *Availability
	Engine       *Engine
	Generator    *Generator
	Manager      *Manager
}

// Handler serves the slot and appointment endpoints.
type Handler struct {
	svc    Services
	audit  AuditLogger
	logger *logging.Logger
}

func NewHandler(svc Services, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) WithAudit(audit AuditLogger) *Handler {
	h.audit = audit
	return h
}

// ListSlots handles GET /timeslots/{date}. Only bookable slots are
// returned; a day with no slots yields an empty list.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	doctor := r.URL.Query().Get("doctor")

	slots, err := h.svc.Availability.AvailableSlots(r.Context(), date, doctor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if slots == nil {
		slots = []TimeSlot{}
	}
	writeJSON(w, http.StatusOK, slotListResponse{
		Date:   date,
		Doctor: doctor,
		Count:  len(slots),
		Slots:  slots,
	})
}

// SlotSummary handles GET /timeslots/{date}/summary.
func (h *Handler) SlotSummary(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	doctor := r.URL.Query().Get("doctor")

	summary, err := h.svc.Availability.Summary(r.Context(), date, doctor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// CreateSlot handles POST /timeslots (staff only).
func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req CreateSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	slot := req.Slot()
	if err := h.svc.Slots.Create(r.Context(), &slot); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.recordAudit(r, "slot.created", slot.ID, map[string]any{
		"date":   slot.Date,
		"time":   slot.Time,
		"doctor": slot.DoctorName,
	})
	writeJSON(w, http.StatusCreated, slot)
}

// BulkGenerate handles POST /timeslots/bulk (staff only).
func (h *Handler) BulkGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	result, err := h.svc.Generator.Generate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.recordAudit(r, "slot.bulk_generated", req.StartDate, map[string]any{
		"created": result.Created,
		"skipped": result.Skipped,
	})
	writeJSON(w, http.StatusOK, result)
}

// UpdateSlot handles PATCH /timeslots/{id} (staff only).
func (h *Handler) UpdateSlot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.Empty() {
		h.writeError(w, r, ErrEmptyUpdate)
		return
	}

	slot, err := h.svc.Slots.Update(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.recordAudit(r, "slot.updated", slot.ID, nil)
	writeJSON(w, http.StatusOK, slot)
}

// DeleteSlot handles DELETE /timeslots/{id} (staff only). Appointments
// already booked against the slot keep their records.
func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Slots.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.recordAudit(r, "slot.deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// BookAppointment handles POST /appointments. Patients always book for
// themselves; staff supply the patient in the body.
func (h *Handler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session", "")
		return
	}

	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if claims.Role != middleware.RoleStaff {
		req.PatientID = claims.Subject
	}

	appt, err := h.svc.Engine.Book(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.recordAudit(r, "appointment.booked", appt.ID, map[string]any{
		"patient_id": appt.PatientID,
		"doctor":     appt.DoctorName,
		"date":       appt.Date,
		"time":       appt.Time,
	})
	writeJSON(w, http.StatusCreated, appt)
}

// ListAppointments handles GET /appointments. Patients see their own
// records; staff can filter across the practice.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session", "")
		return
	}

	q := r.URL.Query()
	filter := AppointmentFilter{
		DoctorName: q.Get("doctorName"),
		Date:       q.Get("date"),
	}
	if claims.Role == middleware.RoleStaff {
		filter.PatientID = q.Get("patientId")
	} else {
		filter.PatientID = claims.Subject
	}
	if status := q.Get("status"); status != "" {
		if !ValidStatus(Status(status)) {
			h.writeError(w, r, ErrUnknownStatus)
			return
		}
		filter.Status = Status(status)
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	appts, err := h.svc.Appointments.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if view := q.Get("view"); view != "" {
		appts = filterByView(appts, view, h.svc.Manager)
	}
	if appts == nil {
		appts = []Appointment{}
	}
	writeJSON(w, http.StatusOK, appointmentListResponse{
		Count:        len(appts),
		Limit:        filter.Limit,
		Offset:       filter.Offset,
		Appointments: appts,
	})
}

// UpdateAppointmentStatus handles PATCH /appointments/{id}/status
// (staff only).
func (h *Handler) UpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Status Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	appt, err := h.svc.Manager.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.recordAudit(r, "appointment.status_changed", appt.ID, map[string]any{
		"status": string(appt.Status),
	})
	writeJSON(w, http.StatusOK, appt)
}

// CleanupAppointments handles POST /appointments/cleanup (staff only).
func (h *Handler) CleanupAppointments(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	var req struct {
		AppointmentIDs []string `json:"appointmentIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	updated, err := h.svc.Manager.CleanupMissed(r.Context(), claims.Subject, req.AppointmentIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.recordAudit(r, "appointment.cleanup", claims.Subject, map[string]any{
		"requested": len(req.AppointmentIDs),
		"updated":   updated,
	})
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

type slotListResponse struct {
	Date   string     `json:"date"`
	Doctor string     `json:"doctorName,omitempty"`
	Count  int        `json:"count"`
	Slots  []TimeSlot `json:"slots"`
}

type appointmentListResponse struct {
	Count        int           `json:"count"`
	Limit        int           `json:"limit"`
	Offset       int           `json:"offset"`
	Appointments []Appointment `json:"appointments"`
}

func filterByView(appts []Appointment, view string, m *Manager) []Appointment {
	loc := m.location(context.Background())
	now := time.Now().In(loc)
	out := make([]Appointment, 0, len(appts))
	for i := range appts {
		switch view {
		case "upcoming":
			if IsUpcoming(&appts[i], now, loc) {
				out = append(out, appts[i])
			}
		case "missed":
			if IsMissed(&appts[i], now, loc) {
				out = append(out, appts[i])
			}
		default:
			out = append(out, appts[i])
		}
	}
	return out
}

func (h *Handler) recordAudit(r *http.Request, eventType, subjectID string, details map[string]any) {
	if h.audit == nil {
		return
	}
	claims, _ := middleware.ClaimsFromContext(r.Context())
	h.audit.RecordEvent(r.Context(), claims.Subject, eventType, subjectID, details)
}

// writeError maps domain errors onto HTTP statuses: validation to 400,
// missing records to 404, conflicts to 409 with a machine-readable
// code, everything else to a logged 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, ErrSlotNotFound), errors.Is(err, ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error(), "")
	case IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), conflictCode(err))
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func conflictCode(err error) string {
	switch {
	case errors.Is(err, ErrSlotFull):
		return "slot_full"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrDuplicateSlot):
		return "duplicate_slot"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrStaleStatus):
		return "stale_status"
	default:
		return "conflict"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	body := map[string]any{"error": message}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, body)
}
