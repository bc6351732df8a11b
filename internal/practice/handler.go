package practice

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// Handler provides HTTP endpoints for practice settings management.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a practice settings HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:  store,
		logger: logger,
	}
}

// Routes returns a chi router with the practice settings routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	return r
}

// GetSettings returns the practice settings document.
// GET /practice/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to get practice settings", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(settings); err != nil {
		h.logger.Error("failed to encode practice settings", "error", err)
	}
}

// UpdateSettingsRequest is the request body for updating practice
// settings. Absent fields leave the stored value unchanged.
type UpdateSettingsRequest struct {
	Name                string             `json:"name,omitempty"`
	Timezone            string             `json:"timezone,omitempty"`
	Doctors             []string           `json:"doctors,omitempty"`
	SlotTimes           []string           `json:"slot_times,omitempty"`
	SlotDurationMinutes *int               `json:"slot_duration_minutes,omitempty"`
	MaxBookingsPerSlot  *int               `json:"max_bookings_per_slot,omitempty"`
	Notifications       *NotificationPrefs `json:"notifications,omitempty"`
}

// UpdateSettings applies a partial update to the practice settings.
// PUT /practice/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	settings, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to get practice settings", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	if req.Name != "" {
		settings.Name = req.Name
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			http.Error(w, `{"error": "unknown timezone"}`, http.StatusBadRequest)
			return
		}
		settings.Timezone = req.Timezone
	}
	if req.Doctors != nil {
		doctors := make([]string, 0, len(req.Doctors))
		for _, d := range req.Doctors {
			if d = strings.TrimSpace(d); d != "" {
				doctors = append(doctors, d)
			}
		}
		if len(doctors) == 0 {
			http.Error(w, `{"error": "doctors must not be empty"}`, http.StatusBadRequest)
			return
		}
		settings.Doctors = doctors
	}
	if req.SlotTimes != nil {
		times := make([]string, 0, len(req.SlotTimes))
		for _, raw := range req.SlotTimes {
			clock, err := scheduling.ParseClock(raw)
			if err != nil {
				http.Error(w, `{"error": "invalid slot time"}`, http.StatusBadRequest)
				return
			}
			times = append(times, clock.String())
		}
		if len(times) == 0 {
			http.Error(w, `{"error": "slot_times must not be empty"}`, http.StatusBadRequest)
			return
		}
		settings.SlotTimes = times
	}
	if req.SlotDurationMinutes != nil {
		if *req.SlotDurationMinutes <= 0 {
			http.Error(w, `{"error": "slot_duration_minutes must be positive"}`, http.StatusBadRequest)
			return
		}
		settings.SlotDurationMinutes = *req.SlotDurationMinutes
	}
	if req.MaxBookingsPerSlot != nil {
		if *req.MaxBookingsPerSlot < 1 {
			http.Error(w, `{"error": "max_bookings_per_slot must be at least 1"}`, http.StatusBadRequest)
			return
		}
		settings.MaxBookingsPerSlot = *req.MaxBookingsPerSlot
	}
	if req.Notifications != nil {
		settings.Notifications = *req.Notifications
	}

	if err := h.store.Set(r.Context(), settings); err != nil {
		h.logger.Error("failed to save practice settings", "error", err)
		http.Error(w, `{"error": "failed to save settings"}`, http.StatusInternalServerError)
		return
	}

	h.logger.Info("practice settings updated", "name", settings.Name, "doctors", len(settings.Doctors))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(settings); err != nil {
		h.logger.Error("failed to encode practice settings", "error", err)
	}
}
