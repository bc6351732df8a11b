package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/brightsmile/dental-scheduling/internal/observability/metrics"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// maxGenerateDays caps a single generation window.
const maxGenerateDays = 90

// defaultGenerateDays is the window used when a request names neither
// an end date nor a day count: one working week.
const defaultGenerateDays = 5

// GenerateRequest describes a slot-generation run. When Slots is set
// the listed slots are created as-is and the window fields are ignored;
// otherwise EndDate wins over Days when both are set, and Doctors and
// Times fall back to the practice roster and the standard daily grid.
type GenerateRequest struct {
	Slots           []CreateSlotRequest `json:"slots"`
	StartDate       string              `json:"startDate"`
	EndDate         string              `json:"endDate"`
	Days            int                 `json:"days"`
	Doctors         []string            `json:"doctors"`
	Times           []string            `json:"times"`
	SlotType        string              `json:"slotType"`
	DurationMinutes int                 `json:"durationMinutes"`
	MaxBookings     int                 `json:"maxBookings"`
}

// GenerateResult reports what a generation run wrote. Skipped counts
// (date, time, doctor) keys that already existed.
type GenerateResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Generator materializes the daily grid into slot rows, one per
// (date, time, doctor), skipping weekends. Re-running a window is safe:
// existing keys are skipped, never duplicated.
type Generator struct {
	slots    SlotRepository
	settings SettingsSource
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics
}

func NewGenerator(slots SlotRepository, logger *logging.Logger) *Generator {
	if slots == nil {
		panic("scheduling: slot repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{slots: slots, logger: logger}
}

// WithSettings supplies the roster source used when a request does not
// name doctors.
func (g *Generator) WithSettings(settings SettingsSource) *Generator {
	g.settings = settings
	return g
}

func (g *Generator) WithMetrics(m *metrics.SchedulingMetrics) *Generator {
	g.metrics = m
	return g
}

// Generate validates the window and writes the grid. Saturdays and
// Sundays inside the window produce no slots. An explicit slot list
// bypasses the window expansion entirely.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if len(req.Slots) > 0 {
		return g.generateExplicit(ctx, req.Slots)
	}

	start, end, err := resolveWindow(req)
	if err != nil {
		return nil, err
	}
	doctors, err := g.resolveDoctors(ctx, req.Doctors)
	if err != nil {
		return nil, err
	}
	times, err := resolveTimes(req.Times)
	if err != nil {
		return nil, err
	}

	slotType := req.SlotType
	if slotType == "" {
		slotType = DefaultSlotType
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = DefaultSlotMinutes
	}
	maxBookings := req.MaxBookings
	if maxBookings <= 0 {
		maxBookings = 1
	}

	var batch []TimeSlot
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if IsWeekend(day) {
			continue
		}
		date := day.Format(DateLayout)
		for _, doctor := range doctors {
			for _, clock := range times {
				batch = append(batch, TimeSlot{
					Date:            date,
					Time:            clock,
					DoctorName:      doctor,
					IsAvailable:     true,
					SlotType:        slotType,
					DurationMinutes: duration,
					MaxBookings:     maxBookings,
				})
			}
		}
	}

	created, skipped, err := g.slots.BulkCreate(ctx, batch)
	if err != nil {
		return nil, err
	}
	g.metrics.ObserveSlotGeneration(created, skipped)
	g.logger.Info("generated time slots",
		"start", start.Format(DateLayout),
		"end", end.Format(DateLayout),
		"doctors", len(doctors),
		"created", created,
		"skipped", skipped,
	)
	return &GenerateResult{Created: created, Skipped: skipped}, nil
}

func (g *Generator) generateExplicit(ctx context.Context, reqs []CreateSlotRequest) (*GenerateResult, error) {
	batch := make([]TimeSlot, 0, len(reqs))
	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			return nil, err
		}
		batch = append(batch, reqs[i].Slot())
	}

	created, skipped, err := g.slots.BulkCreate(ctx, batch)
	if err != nil {
		return nil, err
	}
	g.metrics.ObserveSlotGeneration(created, skipped)
	g.logger.Info("created explicit time slots",
		"requested", len(batch),
		"created", created,
		"skipped", skipped,
	)
	return &GenerateResult{Created: created, Skipped: skipped}, nil
}

func resolveWindow(req GenerateRequest) (time.Time, time.Time, error) {
	if strings.TrimSpace(req.StartDate) == "" {
		return time.Time{}, time.Time{}, ErrMissingDate
	}
	start, err := ParseDate(req.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, ErrBadDate
	}

	var end time.Time
	switch {
	case strings.TrimSpace(req.EndDate) != "":
		end, err = ParseDate(req.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, ErrBadDate
		}
	case req.Days != 0:
		if req.Days < 0 {
			return time.Time{}, time.Time{}, ErrBadRange
		}
		end = start.AddDate(0, 0, req.Days-1)
	default:
		end = start.AddDate(0, 0, defaultGenerateDays-1)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, ErrBadRange
	}
	if end.Sub(start) >= maxGenerateDays*24*time.Hour {
		return time.Time{}, time.Time{}, ErrBadRange
	}
	return start, end, nil
}

func (g *Generator) resolveDoctors(ctx context.Context, requested []string) ([]string, error) {
	doctors := make([]string, 0, len(requested))
	for _, d := range requested {
		if d = strings.TrimSpace(d); d != "" {
			doctors = append(doctors, d)
		}
	}
	if len(doctors) > 0 {
		return doctors, nil
	}
	if g.settings != nil {
		roster, err := g.settings.Roster(ctx)
		if err != nil {
			return nil, err
		}
		if len(roster) > 0 {
			return roster, nil
		}
	}
	return nil, ErrMissingDoctor
}

func resolveTimes(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return DefaultTimeGrid(), nil
	}
	times := make([]string, 0, len(requested))
	for _, raw := range requested {
		clock, err := ParseClock(raw)
		if err != nil {
			return nil, ErrBadClock
		}
		times = append(times, clock.String())
	}
	return times, nil
}
