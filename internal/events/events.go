package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paydue/reminder-engine/internal/domain"
)

// EventsQueue is the durable queue downstream reporting consumers read from.
const EventsQueue = "reminder.events"

// EventType identifies a reminder lifecycle event.
type EventType string

const (
	EventCompleted      EventType = "reminder.completed"
	EventSkipped        EventType = "reminder.skipped"
	EventFailed         EventType = "reminder.failed"
	EventRetryScheduled EventType = "reminder.retry_scheduled"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventCompleted, EventSkipped, EventFailed, EventRetryScheduled:
		return true
	}
	return false
}

// ReminderEvent is the broker payload emitted when a reminder reaches a
// terminal state or is rescheduled for retry.
type ReminderEvent struct {
	Type         EventType      `json:"type"`
	ReminderID   string         `json:"reminderId"`
	InvoiceID    string         `json:"invoiceId"`
	UserID       string         `json:"userId"`
	Channel      domain.Channel `json:"channel"`
	Status       domain.Status  `json:"status"`
	AttemptCount int            `json:"attemptCount"`
	Reason       string         `json:"reason,omitempty"`
	OccurredAt   time.Time      `json:"occurredAt"`
}

func (e ReminderEvent) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid event type %q", e.Type)
	}
	if strings.TrimSpace(e.ReminderID) == "" {
		return fmt.Errorf("reminderId is required")
	}
	if !e.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", e.Channel)
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	return nil
}

// Publisher publishes reminder lifecycle events for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event ReminderEvent) error
	Close() error
}
