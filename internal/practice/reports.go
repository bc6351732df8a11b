package practice

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/brightsmile/dental-scheduling/internal/scheduling"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// UtilizationDay aggregates slot inventory for one calendar day.
type UtilizationDay struct {
	Date           string   `json:"date"`
	Doctors        []string `json:"doctors"`
	TotalSlots     int64    `json:"total_slots"`
	BlockedSlots   int64    `json:"blocked_slots"`
	Capacity       int64    `json:"capacity"`
	Booked         int64    `json:"booked"`
	UtilizationPct float64  `json:"utilization_pct"`
}

// StatusBreakdown counts appointments in the window by status.
type StatusBreakdown struct {
	Pending   int64 `json:"pending"`
	Confirmed int64 `json:"confirmed"`
	Completed int64 `json:"completed"`
	Cancelled int64 `json:"cancelled"`
	Missed    int64 `json:"missed"`
}

// UtilizationReport is the staff-facing utilization summary.
type UtilizationReport struct {
	PeriodStart    string           `json:"period_start"`
	PeriodEnd      string           `json:"period_end"`
	Doctor         string           `json:"doctor,omitempty"`
	Capacity       int64            `json:"capacity"`
	Booked         int64            `json:"booked"`
	UtilizationPct float64          `json:"utilization_pct"`
	Appointments   StatusBreakdown  `json:"appointments"`
	Daily          []UtilizationDay `json:"daily"`
}

type reportDB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReportRepository queries utilization metrics from the database.
type ReportRepository struct {
	db reportDB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	if db == nil {
		panic("practice: sql db required for reports")
	}
	return &ReportRepository{db: db}
}

func NewReportRepositoryWithDB(db reportDB) *ReportRepository {
	return &ReportRepository{db: db}
}

// UtilizationByDay aggregates the slot inventory per day in the
// inclusive [start, end] window. An empty doctor matches every doctor.
func (r *ReportRepository) UtilizationByDay(ctx context.Context, start, end, doctor string) ([]UtilizationDay, error) {
	if start == "" || end == "" {
		return nil, fmt.Errorf("practice reports: window required")
	}
	if end < start {
		return nil, fmt.Errorf("practice reports: invalid window")
	}

	query := `
		SELECT slot_date,
		       array_agg(DISTINCT doctor_name ORDER BY doctor_name) AS doctors,
		       COUNT(*) AS total_slots,
		       COUNT(*) FILTER (WHERE NOT is_available) AS blocked_slots,
		       COALESCE(SUM(max_bookings), 0) AS capacity,
		       COALESCE(SUM(current_bookings), 0) AS booked
		FROM time_slots
		WHERE slot_date >= $1
		  AND slot_date <= $2
		  AND ($3 = '' OR doctor_name = $3)
		GROUP BY slot_date
		ORDER BY slot_date
	`

	rows, err := r.db.QueryContext(ctx, query, start, end, doctor)
	if err != nil {
		return nil, fmt.Errorf("practice reports: query utilization: %w", err)
	}
	defer rows.Close()

	var results []UtilizationDay
	for rows.Next() {
		var day UtilizationDay
		if err := rows.Scan(&day.Date, pq.Array(&day.Doctors), &day.TotalSlots,
			&day.BlockedSlots, &day.Capacity, &day.Booked); err != nil {
			return nil, fmt.Errorf("practice reports: scan utilization: %w", err)
		}
		if day.Doctors == nil {
			day.Doctors = []string{}
		}
		if day.Capacity > 0 {
			day.UtilizationPct = float64(day.Booked) / float64(day.Capacity) * 100.0
		}
		results = append(results, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("practice reports: iterate utilization: %w", err)
	}
	return results, nil
}

// AppointmentBreakdown counts appointments by status in the inclusive
// [start, end] window.
func (r *ReportRepository) AppointmentBreakdown(ctx context.Context, start, end, doctor string) (StatusBreakdown, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'confirmed'),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'cancelled'),
		       COUNT(*) FILTER (WHERE status = 'missed')
		FROM appointments
		WHERE appointment_date >= $1
		  AND appointment_date <= $2
		  AND ($3 = '' OR doctor_name = $3)
	`

	var b StatusBreakdown
	err := r.db.QueryRowContext(ctx, query, start, end, doctor).Scan(
		&b.Pending, &b.Confirmed, &b.Completed, &b.Cancelled, &b.Missed)
	if err != nil {
		return StatusBreakdown{}, fmt.Errorf("practice reports: query breakdown: %w", err)
	}
	return b, nil
}

type reportRepo interface {
	UtilizationByDay(ctx context.Context, start, end, doctor string) ([]UtilizationDay, error)
	AppointmentBreakdown(ctx context.Context, start, end, doctor string) (StatusBreakdown, error)
}

// ReportsHandler serves utilization report JSON for staff.
type ReportsHandler struct {
	repo   reportRepo
	logger *logging.Logger
}

func NewReportsHandler(repo reportRepo, logger *logging.Logger) *ReportsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReportsHandler{repo: repo, logger: logger}
}

// GetUtilization returns slot utilization for a day window.
// GET /reports/utilization
// Query params:
//   - start, end: calendar days YYYY-MM-DD (optional, both or neither)
//   - days: integer window ending today (default 7) when start/end omitted
//   - doctor: restrict to one doctor (optional)
func (h *ReportsHandler) GetUtilization(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		http.Error(w, `{"error": "reports disabled (db not configured)"}`, http.StatusServiceUnavailable)
		return
	}

	start, end, err := parseReportWindow(r, time.Now().UTC())
	if err != nil {
		http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	doctor := strings.TrimSpace(r.URL.Query().Get("doctor"))

	daily, err := h.repo.UtilizationByDay(r.Context(), start, end, doctor)
	if err != nil {
		h.logger.Error("failed to query utilization", "start", start, "end", end, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	breakdown, err := h.repo.AppointmentBreakdown(r.Context(), start, end, doctor)
	if err != nil {
		h.logger.Error("failed to query appointment breakdown", "start", start, "end", end, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	daily = fillMissingDays(daily, start, end)

	var capacity, booked int64
	for _, day := range daily {
		capacity += day.Capacity
		booked += day.Booked
	}
	pct := 0.0
	if capacity > 0 {
		pct = float64(booked) / float64(capacity) * 100.0
	}

	resp := UtilizationReport{
		PeriodStart:    start,
		PeriodEnd:      end,
		Doctor:         doctor,
		Capacity:       capacity,
		Booked:         booked,
		UtilizationPct: pct,
		Appointments:   breakdown,
		Daily:          daily,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func parseReportWindow(r *http.Request, now time.Time) (string, string, error) {
	q := r.URL.Query()

	startRaw := strings.TrimSpace(q.Get("start"))
	endRaw := strings.TrimSpace(q.Get("end"))
	if (startRaw == "") != (endRaw == "") {
		return "", "", fmt.Errorf("both start and end must be provided, or neither")
	}
	if startRaw != "" {
		start, err := scheduling.ParseDate(startRaw)
		if err != nil {
			return "", "", fmt.Errorf("invalid start date, use YYYY-MM-DD")
		}
		end, err := scheduling.ParseDate(endRaw)
		if err != nil {
			return "", "", fmt.Errorf("invalid end date, use YYYY-MM-DD")
		}
		if end.Before(start) {
			return "", "", fmt.Errorf("end must not be before start")
		}
		return start.Format(scheduling.DateLayout), end.Format(scheduling.DateLayout), nil
	}

	days := 7
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			return "", "", fmt.Errorf("invalid days; must be 1-90")
		}
		days = parsed
	}

	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -(days - 1))
	return start.Format(scheduling.DateLayout), end.Format(scheduling.DateLayout), nil
}

// fillMissingDays inserts zero rows for days with no slot inventory so
// the daily series has one entry per day in the window.
func fillMissingDays(existing []UtilizationDay, start, end string) []UtilizationDay {
	startDay, err := scheduling.ParseDate(start)
	if err != nil {
		return existing
	}
	endDay, err := scheduling.ParseDate(end)
	if err != nil {
		return existing
	}

	lookup := map[string]UtilizationDay{}
	for _, d := range existing {
		lookup[d.Date] = d
	}

	out := make([]UtilizationDay, 0, int(endDay.Sub(startDay).Hours()/24)+1)
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		key := day.Format(scheduling.DateLayout)
		if found, ok := lookup[key]; ok {
			out = append(out, found)
			continue
		}
		out = append(out, UtilizationDay{Date: key, Doctors: []string{}})
	}
	return out
}
