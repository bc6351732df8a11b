package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/brightsmile/dental-scheduling/internal/audit"
	httpmiddleware "github.com/brightsmile/dental-scheduling/internal/http/middleware"
	"github.com/brightsmile/dental-scheduling/internal/practice"
	"github.com/brightsmile/dental-scheduling/internal/quickbook"
	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger     *logging.Logger
	Scheduling *scheduling.Handler
	QuickBook  *quickbook.Handler
	Practice   *practice.Handler
	Reports    *practice.ReportsHandler
	Audit      *audit.Handler

	MetricsHandler http.Handler

	// PortalJWTSecret verifies the HS256 session tokens issued by the
	// patient portal. Every route outside the public group requires one.
	PortalJWTSecret string

	CORSAllowedOrigins []string

	// RateLimitPerSecond enables per-IP throttling when > 0.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSecond > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}

	// Public endpoints (health checks, metrics, slot availability)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		public.Get("/timeslots/{date}", cfg.Scheduling.ListSlots)
		public.Get("/timeslots/{date}/summary", cfg.Scheduling.SlotSummary)
	})

	// Authenticated routes (patients and staff)
	r.Group(func(auth chi.Router) {
		auth.Use(httpmiddleware.Auth(cfg.PortalJWTSecret))

		auth.Post("/appointments", cfg.Scheduling.BookAppointment)
		auth.Get("/appointments", cfg.Scheduling.ListAppointments)
		if cfg.QuickBook != nil {
			auth.Mount("/quickbook", cfg.QuickBook.Routes())
		}

		// Staff-only management routes
		auth.Group(func(staff chi.Router) {
			staff.Use(httpmiddleware.RequireStaff)

			staff.Post("/timeslots", cfg.Scheduling.CreateSlot)
			staff.Post("/timeslots/bulk", cfg.Scheduling.BulkGenerate)
			staff.Patch("/timeslots/{id}", cfg.Scheduling.UpdateSlot)
			staff.Delete("/timeslots/{id}", cfg.Scheduling.DeleteSlot)
			staff.Patch("/appointments/{id}/status", cfg.Scheduling.UpdateAppointmentStatus)
			staff.Post("/appointments/cleanup", cfg.Scheduling.CleanupAppointments)

			if cfg.Practice != nil {
				staff.Mount("/practice", cfg.Practice.Routes())
			}
			if cfg.Reports != nil {
				staff.Get("/reports/utilization", cfg.Reports.GetUtilization)
			}
			if cfg.Audit != nil {
				staff.Mount("/audit", cfg.Audit.Routes())
			}
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
