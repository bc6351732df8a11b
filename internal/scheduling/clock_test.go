package scheduling

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in     string
		hour   int
		minute int
	}{
		{"8:00 AM", 8, 0},
		{"8:30 am", 8, 30},
		{"11:30 AM", 11, 30},
		{"12:00 PM", 12, 0},
		{"12:30 pm", 12, 30},
		{"12:00 AM", 0, 0},
		{"1:05 PM", 13, 5},
		{"5:30 PM", 17, 30},
		{"  9:15 AM  ", 9, 15},
	}
	for _, tc := range cases {
		clock, err := ParseClock(tc.in)
		if err != nil {
			t.Errorf("ParseClock(%q): %v", tc.in, err)
			continue
		}
		if clock.Hour != tc.hour || clock.Minute != tc.minute {
			t.Errorf("ParseClock(%q) = %d:%02d, want %d:%02d", tc.in, clock.Hour, clock.Minute, tc.hour, tc.minute)
		}
	}
}

func TestParseClockRejectsMalformed(t *testing.T) {
	bad := []string{
		"", "8", "8:00", "8:0 AM", "13:00 PM", "0:30 AM",
		"8:60 AM", "8:00 XM", "eight AM", "8:00AM PM", "-1:00 AM",
	}
	for _, in := range bad {
		if _, err := ParseClock(in); err == nil {
			t.Errorf("ParseClock(%q): expected error", in)
		}
	}
}

func TestClockString(t *testing.T) {
	cases := []struct {
		clock Clock
		want  string
	}{
		{Clock{Hour: 8, Minute: 0}, "8:00 AM"},
		{Clock{Hour: 0, Minute: 15}, "12:15 AM"},
		{Clock{Hour: 12, Minute: 0}, "12:00 PM"},
		{Clock{Hour: 13, Minute: 5}, "1:05 PM"},
		{Clock{Hour: 17, Minute: 30}, "5:30 PM"},
	}
	for _, tc := range cases {
		if got := tc.clock.String(); got != tc.want {
			t.Errorf("Clock%+v.String() = %q, want %q", tc.clock, got, tc.want)
		}
	}
}

func TestClockRoundTrip(t *testing.T) {
	for _, s := range DefaultTimeGrid() {
		clock, err := ParseClock(s)
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", s, err)
		}
		if clock.String() != s {
			t.Errorf("round trip %q -> %q", s, clock.String())
		}
	}
}

func TestDefaultTimeGrid(t *testing.T) {
	grid := DefaultTimeGrid()
	if len(grid) != 18 {
		t.Fatalf("grid length = %d, want 18", len(grid))
	}
	if grid[0] != "8:00 AM" {
		t.Errorf("first entry = %q, want 8:00 AM", grid[0])
	}
	if grid[len(grid)-1] != "5:30 PM" {
		t.Errorf("last entry = %q, want 5:30 PM", grid[len(grid)-1])
	}
	for _, s := range grid {
		clock, err := ParseClock(s)
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", s, err)
		}
		if clock.Hour == 12 {
			t.Errorf("grid must not include the lunch hour, got %q", s)
		}
	}
}

func TestIsWeekend(t *testing.T) {
	saturday, _ := ParseDate("2025-01-04")
	sunday, _ := ParseDate("2025-01-05")
	monday, _ := ParseDate("2025-01-06")
	if !IsWeekend(saturday) || !IsWeekend(sunday) {
		t.Error("saturday and sunday must be weekend days")
	}
	if IsWeekend(monday) {
		t.Error("monday must not be a weekend day")
	}
}

func TestCombineDateTime(t *testing.T) {
	at, err := CombineDateTime("2025-01-06", "2:30 PM", time.UTC)
	if err != nil {
		t.Fatalf("CombineDateTime: %v", err)
	}
	want := time.Date(2025, time.January, 6, 14, 30, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Errorf("combined = %v, want %v", at, want)
	}

	if _, err := CombineDateTime("01/06/2025", "2:30 PM", time.UTC); err == nil {
		t.Error("expected error for non-ISO date")
	}
	if _, err := CombineDateTime("2025-01-06", "14:30", time.UTC); err == nil {
		t.Error("expected error for 24-hour time")
	}
}

func TestSortSlotsByClock(t *testing.T) {
	slots := []TimeSlot{
		{Time: "1:00 PM", DoctorName: "Dr. Adams"},
		{Time: "8:00 AM", DoctorName: "Dr. Brown"},
		{Time: "11:30 AM", DoctorName: "Dr. Adams"},
		{Time: "8:00 AM", DoctorName: "Dr. Adams"},
	}
	SortSlotsByClock(slots)

	wantTimes := []string{"8:00 AM", "8:00 AM", "11:30 AM", "1:00 PM"}
	for i, want := range wantTimes {
		if slots[i].Time != want {
			t.Fatalf("slot[%d].Time = %q, want %q", i, slots[i].Time, want)
		}
	}
	if slots[0].DoctorName != "Dr. Adams" || slots[1].DoctorName != "Dr. Brown" {
		t.Error("equal times must order by doctor name")
	}
}

func TestSortAppointments(t *testing.T) {
	appts := []Appointment{
		{Date: "2025-01-07", Time: "9:00 AM"},
		{Date: "2025-01-06", Time: "1:00 PM"},
		{Date: "2025-01-06", Time: "9:00 AM"},
	}
	SortAppointments(appts)

	if appts[0].Date != "2025-01-06" || appts[0].Time != "9:00 AM" {
		t.Errorf("first = %s %s", appts[0].Date, appts[0].Time)
	}
	if appts[1].Time != "1:00 PM" {
		t.Errorf("second = %s %s", appts[1].Date, appts[1].Time)
	}
	if appts[2].Date != "2025-01-07" {
		t.Errorf("third = %s %s", appts[2].Date, appts[2].Time)
	}
}
