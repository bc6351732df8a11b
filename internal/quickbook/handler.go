package quickbook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brightsmile/dental-scheduling/internal/http/middleware"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// Handler serves the quick-book endpoints. Submit accepts a job and
// returns immediately; the worker does the slow part and Status serves
// the poll loop.
type Handler struct {
	jobs      JobRecorder
	publisher *Publisher
	logger    *logging.Logger
}

func NewHandler(jobs JobRecorder, publisher *Publisher, logger *logging.Logger) *Handler {
	if jobs == nil {
		panic("quickbook: job store cannot be nil")
	}
	if publisher == nil {
		panic("quickbook: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{jobs: jobs, publisher: publisher, logger: logger}
}

// Routes mounts the quick-book endpoints. Both require a session.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Submit)
	r.Get("/{jobID}", h.Status)
	return r
}

type submitResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// Submit handles POST /quickbook: validates the treatment against the
// profile catalog, persists a queued job, enqueues it, and responds 202
// with the job id so the portal can poll.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session", "")
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if claims.Role != middleware.RoleStaff {
		req.PatientID = claims.Subject
	}
	if strings.TrimSpace(req.PatientID) == "" {
		writeError(w, http.StatusBadRequest, "patientId is required", "")
		return
	}
	if _, ok := LookupProfile(req.TreatmentType); !ok {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unknown treatment type %q (valid: %s)", req.TreatmentType, strings.Join(TreatmentTypes(), ", ")),
			FailCodeUnknownTreatment)
		return
	}

	job := &Job{
		JobID:         uuid.NewString(),
		PatientID:     req.PatientID,
		TreatmentType: req.TreatmentType,
		Notes:         req.Notes,
	}
	if err := h.jobs.PutQueued(r.Context(), job); err != nil {
		h.logger.Error("failed to persist quick-book job", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if err := h.publisher.Enqueue(r.Context(), job.JobID, req); err != nil {
		h.logger.Error("failed to enqueue quick-book job", "error", err, "job_id", job.JobID)
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{JobID: job.JobID, Status: JobStatusQueued})
}

// Status handles GET /quickbook/{jobID}. Patients may read their own
// jobs; staff may read any.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing session", "")
		return
	}

	jobID := chi.URLParam(r, "jobID")
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "")
			return
		}
		h.logger.Error("failed to fetch quick-book job", "error", err, "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if claims.Role != middleware.RoleStaff && job.PatientID != claims.Subject {
		writeError(w, http.StatusForbidden, "job belongs to another patient", "")
		return
	}

	writeJSON(w, http.StatusOK, job)
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
