// Package quickbook implements the guided booking flow: a patient names
// a treatment, and a background job finds tomorrow's best matching slot
// and books it through the scheduling engine. The flow trades choice
// for speed; patients who want a specific doctor or time use the
// regular booking endpoint instead.
package quickbook

import (
	"sort"
	"strings"
	"time"

	"github.com/brightsmile/dental-scheduling/internal/scheduling"
)

// Priority steers which half of the day the slot finder tries first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Profile maps a treatment type onto the slot inventory: the category
// used for availability estimates, the scheduling priority, and the
// expected chair time.
type Profile struct {
	TreatmentType   string   `json:"treatmentType"`
	Category        string   `json:"category"`
	Priority        Priority `json:"priority"`
	DurationMinutes int      `json:"durationMinutes"`
}

// catalog lists the treatments the guided flow can book, keyed by
// normalized treatment type.
var catalog = map[string]Profile{
	"cleaning": {
		TreatmentType:   "cleaning",
		Category:        scheduling.CategoryCleaning,
		Priority:        PriorityNormal,
		DurationMinutes: 30,
	},
	"whitening": {
		TreatmentType:   "whitening",
		Category:        scheduling.CategoryCleaning,
		Priority:        PriorityNormal,
		DurationMinutes: 60,
	},
	"consultation": {
		TreatmentType:   "consultation",
		Category:        scheduling.CategoryConsultation,
		Priority:        PriorityNormal,
		DurationMinutes: 30,
	},
	"follow-up": {
		TreatmentType:   "follow-up",
		Category:        scheduling.CategoryFollowUp,
		Priority:        PriorityNormal,
		DurationMinutes: 30,
	},
	"emergency": {
		TreatmentType:   "emergency",
		Category:        scheduling.CategoryEmergency,
		Priority:        PriorityHigh,
		DurationMinutes: 45,
	},
	"toothache": {
		TreatmentType:   "toothache",
		Category:        scheduling.CategoryEmergency,
		Priority:        PriorityHigh,
		DurationMinutes: 30,
	},
}

// LookupProfile resolves a treatment type case-insensitively.
func LookupProfile(treatmentType string) (Profile, bool) {
	p, ok := catalog[strings.ToLower(strings.TrimSpace(treatmentType))]
	return p, ok
}

// Profiles returns the catalog ordered by treatment type.
func Profiles() []Profile {
	out := make([]Profile, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TreatmentType < out[j].TreatmentType })
	return out
}

// TreatmentTypes returns the bookable treatment names, sorted.
func TreatmentTypes() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CandidateTimes orders the daily grid for the profile. High-priority
// work tries the morning block first so urgent patients are seen early;
// everything else starts after lunch where load is usually lighter. The
// other half of the day stays on the list as fallback.
func (p Profile) CandidateTimes() []string {
	grid := scheduling.DefaultTimeGrid()
	morning := make([]string, 0, len(grid))
	afternoon := make([]string, 0, len(grid))
	for _, t := range grid {
		clock, err := scheduling.ParseClock(t)
		if err != nil {
			continue
		}
		if clock.Hour < 12 {
			morning = append(morning, t)
		} else {
			afternoon = append(afternoon, t)
		}
	}
	if p.Priority == PriorityHigh {
		return append(morning, afternoon...)
	}
	return append(afternoon, morning...)
}

// TargetDate returns the day the flow books into: always tomorrow.
// Same-day inventory churns too fast to promise asynchronously, and
// anything further out defeats the point of a quick book.
func TargetDate(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).AddDate(0, 0, 1).Format(scheduling.DateLayout)
}
