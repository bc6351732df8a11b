package quickbook

import (
	"testing"
	"time"
)

func TestLookupProfileNormalizesInput(t *testing.T) {
	for _, input := range []string{"cleaning", "Cleaning", "  CLEANING  "} {
		p, ok := LookupProfile(input)
		if !ok {
			t.Fatalf("LookupProfile(%q) not found", input)
		}
		if p.TreatmentType != "cleaning" {
			t.Fatalf("treatment = %q, want cleaning", p.TreatmentType)
		}
	}
}

func TestLookupProfileUnknown(t *testing.T) {
	if _, ok := LookupProfile("botox"); ok {
		t.Fatal("expected unknown treatment to miss")
	}
}

func TestProfilesSorted(t *testing.T) {
	profiles := Profiles()
	if len(profiles) == 0 {
		t.Fatal("expected a non-empty catalog")
	}
	for i := 1; i < len(profiles); i++ {
		if profiles[i-1].TreatmentType >= profiles[i].TreatmentType {
			t.Fatalf("catalog not sorted at %d: %q >= %q", i, profiles[i-1].TreatmentType, profiles[i].TreatmentType)
		}
	}
}

func TestCandidateTimesHighPriorityStartsMorning(t *testing.T) {
	p, _ := LookupProfile("emergency")
	times := p.CandidateTimes()
	if len(times) != 18 {
		t.Fatalf("candidate count = %d, want the full 18-slot grid", len(times))
	}
	if times[0] != "8:00 AM" {
		t.Fatalf("first candidate = %q, want 8:00 AM", times[0])
	}
	if times[len(times)-1] != "5:30 PM" {
		t.Fatalf("last candidate = %q, want 5:30 PM", times[len(times)-1])
	}
}

func TestCandidateTimesNormalPriorityStartsAfternoon(t *testing.T) {
	p, _ := LookupProfile("cleaning")
	times := p.CandidateTimes()
	if len(times) != 18 {
		t.Fatalf("candidate count = %d, want the full 18-slot grid", len(times))
	}
	if times[0] != "1:00 PM" {
		t.Fatalf("first candidate = %q, want 1:00 PM", times[0])
	}
	// Mornings stay on the list as fallback.
	if times[len(times)-1] != "11:30 AM" {
		t.Fatalf("last candidate = %q, want 11:30 AM", times[len(times)-1])
	}
}

func TestTargetDateIsTomorrowInPracticeZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// 03:00 UTC is still the previous evening in New York.
	now := time.Date(2025, 1, 6, 3, 0, 0, 0, time.UTC)
	if got := TargetDate(now, loc); got != "2025-01-06" {
		t.Fatalf("TargetDate = %q, want 2025-01-06", got)
	}
	if got := TargetDate(now, time.UTC); got != "2025-01-07" {
		t.Fatalf("TargetDate in UTC = %q, want 2025-01-07", got)
	}
}
