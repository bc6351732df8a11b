package scheduling

import (
	"context"
	"math"
)

// categoryShares apportions the open-slot count across procedure
// categories for the quick-book UI. These are display estimates only;
// nothing reserves capacity per category.
var categoryShares = map[string]float64{
	CategoryCleaning:     0.40,
	CategoryConsultation: 0.25,
	CategoryFollowUp:     0.60,
	CategoryEmergency:    1.00,
}

// EstimateByCategory returns how many of the available slots are
// considered suitable for a procedure category. Unknown categories
// estimate zero.
func EstimateByCategory(category string, available int) int {
	share, ok := categoryShares[category]
	if !ok {
		return 0
	}
	return int(math.Round(share * float64(available)))
}

// CategoryEstimate is one row of the availability summary.
type CategoryEstimate struct {
	Fraction  float64 `json:"fraction"`
	Estimated int     `json:"estimated"`
}

// AvailabilitySummary is the per-category availability estimate for a
// day. Estimated counts are a display heuristic and never a guarantee
// that a booking in that category will succeed.
type AvailabilitySummary struct {
	Date           string                      `json:"date"`
	DoctorName     string                      `json:"doctorName,omitempty"`
	TotalSlots     int                         `json:"totalSlots"`
	TotalAvailable int                         `json:"totalAvailable"`
	Categories     map[string]CategoryEstimate `json:"categories"`
}

// Availability answers read-side slot queries.
type Availability struct {
	slots SlotRepository
}

func NewAvailability(slots SlotRepository) *Availability {
	if slots == nil {
		panic("scheduling: slot repository required")
	}
	return &Availability{slots: slots}
}

// AvailableSlots returns the bookable slots for a day ordered by time
// of day. A day with no slots yields an empty list, not an error.
func (a *Availability) AvailableSlots(ctx context.Context, date string, doctor string) ([]TimeSlot, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, ErrBadDate
	}
	slots, err := a.slots.ListByDate(ctx, date, doctor)
	if err != nil {
		return nil, err
	}
	open := make([]TimeSlot, 0, len(slots))
	for _, slot := range slots {
		if slot.Bookable() {
			open = append(open, slot)
		}
	}
	return open, nil
}

// Summary computes the per-category estimates for a day.
func (a *Availability) Summary(ctx context.Context, date string, doctor string) (*AvailabilitySummary, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, ErrBadDate
	}
	slots, err := a.slots.ListByDate(ctx, date, doctor)
	if err != nil {
		return nil, err
	}
	available := 0
	for _, slot := range slots {
		if slot.Bookable() {
			available++
		}
	}

	summary := &AvailabilitySummary{
		Date:           date,
		DoctorName:     doctor,
		TotalSlots:     len(slots),
		TotalAvailable: available,
		Categories:     make(map[string]CategoryEstimate, len(categoryShares)),
	}
	for category, share := range categoryShares {
		summary.Categories[category] = CategoryEstimate{
			Fraction:  share,
			Estimated: EstimateByCategory(category, available),
		}
	}
	return summary, nil
}
