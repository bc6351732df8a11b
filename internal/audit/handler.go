package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 500
)

// Handler serves the audit trail query endpoint for staff.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates an audit HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi router with the audit routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/events", h.ListEvents)
	return r
}

// ListEvents returns audit events, newest first.
// GET /audit/events
// Query params:
//   - actor, type, subject: exact-match filters (optional)
//   - start, end: RFC3339 bounds on created_at (optional)
//   - limit (default 100, max 500), offset
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, `{"error": "audit disabled (db not configured)"}`, http.StatusServiceUnavailable)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	events, err := h.service.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()

	filter := Filter{
		ActorID:   strings.TrimSpace(q.Get("actor")),
		EventType: EventType(strings.TrimSpace(q.Get("type"))),
		SubjectID: strings.TrimSpace(q.Get("subject")),
		Limit:     defaultQueryLimit,
	}

	if raw := strings.TrimSpace(q.Get("start")); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filter{}, errBadTime("start")
		}
		filter.StartTime = start
	}
	if raw := strings.TrimSpace(q.Get("end")); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filter{}, errBadTime("end")
		}
		filter.EndTime = end
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Filter{}, errBadInt("limit")
		}
		if limit > maxQueryLimit {
			limit = maxQueryLimit
		}
		filter.Limit = limit
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return Filter{}, errBadInt("offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

func errBadTime(name string) error {
	return paramError("invalid " + name + " time, use RFC3339 format")
}

func errBadInt(name string) error {
	return paramError("invalid " + name)
}
