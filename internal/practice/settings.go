// Package practice holds the practice-wide configuration document and
// the operational reports served to staff.
package practice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightsmile/dental-scheduling/internal/scheduling"
)

// NotificationPrefs holds the practice's email notification settings.
type NotificationPrefs struct {
	// EmailEnabled gates all outbound mail. When false the workers
	// still drain their queues but send nothing.
	EmailEnabled bool `json:"email_enabled"`
	// EmailRecipients receive staff copies of booking notifications.
	EmailRecipients []string `json:"email_recipients,omitempty"`
	// RemindersEnabled gates the day-before reminder mails.
	RemindersEnabled bool `json:"reminders_enabled"`
}

// Settings is the practice configuration document. It is stored as a
// single JSON blob; readers that find no document get the defaults.
type Settings struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"` // e.g., "America/New_York"
	// Doctors is the roster slots are generated for and bookings are
	// validated against.
	Doctors []string `json:"doctors"`
	// SlotTimes is the daily grid used when a bulk-generate request
	// does not supply its own times.
	SlotTimes []string `json:"slot_times"`
	// SlotDurationMinutes and MaxBookingsPerSlot are the defaults
	// applied to slots created without explicit values.
	SlotDurationMinutes int               `json:"slot_duration_minutes"`
	MaxBookingsPerSlot  int               `json:"max_bookings_per_slot"`
	Notifications       NotificationPrefs `json:"notifications"`
	UpdatedAt           time.Time         `json:"updated_at,omitempty"`
}

// DefaultSettings returns the configuration a fresh install runs with.
func DefaultSettings() *Settings {
	return &Settings{
		Name:                "BrightSmile Dental",
		Timezone:            "America/New_York",
		Doctors:             []string{"Dr. Smith", "Dr. Johnson", "Dr. Williams"},
		SlotTimes:           scheduling.DefaultTimeGrid(),
		SlotDurationMinutes: scheduling.DefaultSlotMinutes,
		MaxBookingsPerSlot:  1,
		Notifications: NotificationPrefs{
			EmailEnabled:     false,
			RemindersEnabled: true,
		},
	}
}

// Location resolves the configured timezone, falling back to UTC when
// the name does not load.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

const settingsKey = "practice:settings"

// Store provides persistence for the practice settings document.
type Store struct {
	redis *redis.Client
}

// NewStore creates a practice settings store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

// Get retrieves the settings document, returning defaults if none has
// been saved yet.
func (s *Store) Get(ctx context.Context) (*Settings, error) {
	data, err := s.redis.Get(ctx, settingsKey).Bytes()
	if err == redis.Nil {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("practice: get settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("practice: unmarshal settings: %w", err)
	}

	return &settings, nil
}

// Set saves the settings document.
func (s *Store) Set(ctx context.Context, settings *Settings) error {
	settings.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("practice: marshal settings: %w", err)
	}

	if err := s.redis.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("practice: set settings: %w", err)
	}

	return nil
}

// Roster returns the configured doctor roster. Implements the
// scheduling settings source.
func (s *Store) Roster(ctx context.Context) ([]string, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return settings.Doctors, nil
}

// Location returns the practice timezone. Implements the scheduling
// settings source.
func (s *Store) Location(ctx context.Context) (*time.Location, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return settings.Location(), nil
}
