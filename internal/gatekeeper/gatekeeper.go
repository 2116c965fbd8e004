package gatekeeper

import (
	"context"
	"fmt"
	"time"

	"github.com/paydue/reminder-engine/internal/domain"
)

// SameDayLookup is the slice of the reminder repository the gatekeeper needs
// for its duplicate checks.
type SameDayLookup interface {
	GetActiveSameDay(ctx context.Context, invoiceID string, dayStart, dayEnd time.Time, excludeID string) ([]domain.Reminder, error)
}

// Decision is the result of the composite eligibility check. A rejected
// decision with Exhausted set means the caller must fail the reminder rather
// than retry it on a later tick.
type Decision struct {
	OK         bool
	Reason     string
	RetryAfter *time.Time
	Exhausted  bool
}

func allow() Decision { return Decision{OK: true} }

func reject(reason string) Decision { return Decision{Reason: reason} }

// Gatekeeper runs the anti-spam eligibility predicates before any dispatch.
type Gatekeeper struct {
	reminders SameDayLookup
	now       func() time.Time
}

func New(reminders SameDayLookup) (*Gatekeeper, error) {
	if reminders == nil {
		return nil, fmt.Errorf("same-day lookup is required")
	}
	return &Gatekeeper{
		reminders: reminders,
		now:       time.Now,
	}, nil
}

// CanDispatch runs every predicate in order: business hours, retry delay,
// max attempts, same-day duplicate, opposite-channel same-day. Policy
// rejections are not errors; the reminder simply waits for a later tick.
func (g *Gatekeeper) CanDispatch(
	ctx context.Context,
	reminder *domain.Reminder,
	settings domain.ReminderSettings,
) (Decision, error) {
	now := g.now()

	if d := WithinBusinessHours(now, settings); !d.OK {
		return d, nil
	}
	if d := RetryDelayElapsed(now, reminder, settings); !d.OK {
		return d, nil
	}
	if d := UnderMaxAttempts(reminder, settings); !d.OK {
		return d, nil
	}

	dayStart, dayEnd := calendarDayBounds(reminder.ScheduledDate, settings.Location())
	siblings, err := g.reminders.GetActiveSameDay(ctx, reminder.InvoiceID, dayStart, dayEnd, reminder.ID)
	if err != nil {
		return Decision{}, fmt.Errorf("same-day lookup failed: %w", err)
	}

	for i := range siblings {
		if siblings[i].Channel == reminder.Channel {
			return reject("duplicate reminder already scheduled for the same day"), nil
		}
	}
	for i := range siblings {
		if siblings[i].Channel != reminder.Channel {
			return reject(fmt.Sprintf("a %s reminder already exists for the same day", siblings[i].Channel)), nil
		}
	}

	return allow(), nil
}

// WithinBusinessHours checks the user-local call window and allowed weekdays.
func WithinBusinessHours(now time.Time, settings domain.ReminderSettings) Decision {
	local := now.In(settings.Location())

	if !settings.AllowedWeekdays()[local.Weekday()] {
		return reject(fmt.Sprintf("outside business hours: %s not in allowed days", local.Weekday()))
	}

	start, err := domain.ParseClock(settings.StartTime)
	if err != nil {
		start, _ = domain.ParseClock(domain.DefaultCallWindowStart)
	}
	end, err := domain.ParseClock(settings.EndTime)
	if err != nil {
		end, _ = domain.ParseClock(domain.DefaultCallWindowEnd)
	}

	minutes := local.Hour()*60 + local.Minute()
	if minutes < start || minutes > end {
		return reject(fmt.Sprintf("outside business hours: %02d:%02d not in window %s-%s",
			local.Hour(), local.Minute(), settings.StartTime, settings.EndTime))
	}

	return allow()
}

// RetryDelayElapsed enforces the minimum delay between attempts and reports
// the earliest retryable time on rejection.
func RetryDelayElapsed(now time.Time, reminder *domain.Reminder, settings domain.ReminderSettings) Decision {
	if reminder.LastAttemptAt == nil {
		return allow()
	}

	earliest := reminder.LastAttemptAt.Add(settings.EffectiveRetryDelay())
	if now.Before(earliest) {
		d := reject(fmt.Sprintf("retry delay not elapsed, retryable at %s", earliest.UTC().Format(time.RFC3339)))
		d.RetryAfter = &earliest
		return d
	}
	return allow()
}

// UnderMaxAttempts checks the attempt ceiling. Violation is permanent: the
// caller must transition the reminder to FAILED, not merely skip the tick.
func UnderMaxAttempts(reminder *domain.Reminder, settings domain.ReminderSettings) Decision {
	maxAttempts := settings.EffectiveMaxAttempts()
	if reminder.AttemptCount >= maxAttempts {
		d := reject(fmt.Sprintf("max attempts reached (%d/%d, %s)",
			reminder.AttemptCount, maxAttempts, reminder.Channel))
		d.Exhausted = true
		return d
	}
	return allow()
}

func calendarDayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
