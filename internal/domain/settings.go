package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxRetryAttempts = 3
	DefaultRetryDelayHours  = 4
	DefaultCallWindowStart  = "09:00"
	DefaultCallWindowEnd    = "18:00"
	// DefaultAllowedDays covers Monday through Friday (time.Weekday numbering).
	DefaultAllowedDays = "1,2,3,4,5"
)

// ReminderSettings is the per-user outreach policy. The configuration
// collaborator owns it; the engine reads it at dispatch time.
type ReminderSettings struct {
	UserID           string  `gorm:"type:uuid;primaryKey"`
	SmartMode        bool    `gorm:"not null;default:true"`
	ManualChannel    Channel `gorm:"type:varchar(10);not null;default:'VOICE'"`
	Timezone         string  `gorm:"type:varchar(64);not null;default:'UTC'"`
	StartTime        string  `gorm:"type:varchar(5);not null;default:'09:00'"`
	EndTime          string  `gorm:"type:varchar(5);not null;default:'18:00'"`
	AllowedDays      string  `gorm:"type:varchar(32);not null;default:'1,2,3,4,5'"`
	MaxRetryAttempts int     `gorm:"not null;default:3"`
	RetryDelayHours  int     `gorm:"not null;default:4"`
	Voice            string  `gorm:"type:varchar(64);not null;default:'alloy'"`
	Language         string  `gorm:"type:varchar(16);not null;default:'en'"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DefaultSettings returns the policy applied when a user has not configured one.
func DefaultSettings(userID string) ReminderSettings {
	return ReminderSettings{
		UserID:           userID,
		SmartMode:        true,
		ManualChannel:    ChannelVoice,
		Timezone:         "UTC",
		StartTime:        DefaultCallWindowStart,
		EndTime:          DefaultCallWindowEnd,
		AllowedDays:      DefaultAllowedDays,
		MaxRetryAttempts: DefaultMaxRetryAttempts,
		RetryDelayHours:  DefaultRetryDelayHours,
		Voice:            "alloy",
		Language:         "en",
	}
}

// Location resolves the user's timezone, falling back to UTC on bad data.
func (s ReminderSettings) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(s.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// AllowedWeekdays parses the stored weekday list. Empty or malformed entries
// fall back to the Monday-Friday default.
func (s ReminderSettings) AllowedWeekdays() map[time.Weekday]bool {
	raw := s.AllowedDays
	if strings.TrimSpace(raw) == "" {
		raw = DefaultAllowedDays
	}

	days := make(map[time.Weekday]bool)
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days[time.Weekday(n)] = true
	}
	if len(days) == 0 {
		for d := time.Monday; d <= time.Friday; d++ {
			days[d] = true
		}
	}
	return days
}

// ParseClock parses an "HH:MM" call-window boundary into minutes after
// midnight.
func ParseClock(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: invalid clock value %q", ErrValidation, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrValidation, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrValidation, value)
	}
	return hour*60 + minute, nil
}

func (s ReminderSettings) maxAttempts() int {
	if s.MaxRetryAttempts <= 0 {
		return DefaultMaxRetryAttempts
	}
	return s.MaxRetryAttempts
}

func (s ReminderSettings) retryDelay() time.Duration {
	hours := s.RetryDelayHours
	if hours <= 0 {
		hours = DefaultRetryDelayHours
	}
	return time.Duration(hours) * time.Hour
}

// EffectiveMaxAttempts returns the retry ceiling with defaults applied.
func (s ReminderSettings) EffectiveMaxAttempts() int { return s.maxAttempts() }

// EffectiveRetryDelay returns the inter-attempt delay with defaults applied.
func (s ReminderSettings) EffectiveRetryDelay() time.Duration { return s.retryDelay() }
