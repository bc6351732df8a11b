package scheduling

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used across slots and
// appointments. ISO dates also sort correctly as plain text.
const DateLayout = "2006-01-02"

// DefaultSlotMinutes is the grid interval.
const DefaultSlotMinutes = 30

// Clock is a parsed 12-hour time-of-day string, held in 24-hour form.
// The portal stores times like "10:30 AM"; every parse and format of
// that shape goes through this type so the noon/midnight cases are
// handled in exactly one place.
type Clock struct {
	Hour   int // 0-23
	Minute int // 0-59
}

// ParseClock parses a 12-hour clock string such as "8:00 AM" or
// "12:30 pm". "12:00 AM" is midnight and "12:00 PM" is noon.
func ParseClock(s string) (Clock, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return Clock{}, fmt.Errorf("clock %q: want \"H:MM AM\" or \"H:MM PM\"", s)
	}

	meridiem := strings.ToUpper(fields[1])
	if meridiem != "AM" && meridiem != "PM" {
		return Clock{}, fmt.Errorf("clock %q: meridiem must be AM or PM", s)
	}

	hm := strings.Split(fields[0], ":")
	if len(hm) != 2 {
		return Clock{}, fmt.Errorf("clock %q: missing minutes", s)
	}
	hour, err := strconv.Atoi(hm[0])
	if err != nil || hour < 1 || hour > 12 {
		return Clock{}, fmt.Errorf("clock %q: hour must be 1-12", s)
	}
	minute, err := strconv.Atoi(hm[1])
	if err != nil || minute < 0 || minute > 59 || len(hm[1]) != 2 {
		return Clock{}, fmt.Errorf("clock %q: minute must be 00-59", s)
	}

	if meridiem == "AM" {
		if hour == 12 {
			hour = 0
		}
	} else if hour != 12 {
		hour += 12
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// String renders the canonical 12-hour form, e.g. "8:00 AM", "12:00 PM".
func (c Clock) String() string {
	meridiem := "AM"
	hour := c.Hour
	switch {
	case hour == 0:
		hour = 12
	case hour == 12:
		meridiem = "PM"
	case hour > 12:
		hour -= 12
		meridiem = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", hour, c.Minute, meridiem)
}

// MinuteOfDay returns minutes since midnight, the slot ordering key.
func (c Clock) MinuteOfDay() int {
	return c.Hour*60 + c.Minute
}

// ParseDate parses a calendar day in DateLayout.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// CombineDateTime resolves a stored (date, clock) pair to a wall-clock
// instant in loc. Lifecycle classification compares this against now.
func CombineDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	c, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, loc), nil
}

// IsWeekend reports whether the day falls on Saturday or Sunday.
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DefaultTimeGrid is the fixed daily grid: half-hour slots from 8:00 AM
// through 5:30 PM with the 12:00-12:59 lunch hour excluded, 18 entries.
func DefaultTimeGrid() []string {
	grid := make([]string, 0, 18)
	for minutes := 8 * 60; minutes < 18*60; minutes += DefaultSlotMinutes {
		if minutes >= 12*60 && minutes < 13*60 {
			continue
		}
		grid = append(grid, Clock{Hour: minutes / 60, Minute: minutes % 60}.String())
	}
	return grid
}

// SortSlotsByClock orders slots by parsed time ascending, then doctor
// name for a stable listing. Unparseable times sort last rather than
// failing the read path.
func SortSlotsByClock(slots []TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		mi, mj := slotMinute(slots[i].Time), slotMinute(slots[j].Time)
		if mi != mj {
			return mi < mj
		}
		return slots[i].DoctorName < slots[j].DoctorName
	})
}

func slotMinute(clock string) int {
	c, err := ParseClock(clock)
	if err != nil {
		return 24 * 60
	}
	return c.MinuteOfDay()
}

// SortAppointments orders appointments by date, then time of day, then
// creation time.
func SortAppointments(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		mi, mj := slotMinute(appts[i].Time), slotMinute(appts[j].Time)
		if mi != mj {
			return mi < mj
		}
		return appts[i].CreatedAt.Before(appts[j].CreatedAt)
	})
}
