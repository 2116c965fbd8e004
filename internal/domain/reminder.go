package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a reminder.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusSkipped    Status = "SKIPPED"
	StatusFailed     Status = "FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusInProgress, StatusCompleted, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the reminder lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusFailed:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// legalTransitions encodes the reminder state machine. IN_PROGRESS -> PENDING
// is the retry loop-back; PENDING -> SKIPPED/FAILED covers cascade-cancel and
// exhausted attempts detected before dispatch.
var legalTransitions = map[Status][]Status{
	StatusPending:    {StatusQueued, StatusSkipped, StatusFailed},
	StatusQueued:     {StatusInProgress, StatusPending, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusSkipped, StatusFailed, StatusPending},
}

// CanTransitionTo reports whether moving from s to next is a legal state
// machine transition. Terminal states have no successors.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Channel represents the delivery medium of a reminder.
type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelVoice Channel = "VOICE"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelSMS, ChannelVoice:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// ReminderType classifies the temporal offset of a reminder relative to the
// invoice due date.
type ReminderType string

const (
	TypeBeforeDue7 ReminderType = "BEFORE_DUE_7"
	TypeBeforeDue3 ReminderType = "BEFORE_DUE_3"
	TypeDueDate    ReminderType = "DUE_DATE"
	TypeOverdue3   ReminderType = "OVERDUE_3"
	TypeOverdue7   ReminderType = "OVERDUE_7"
	TypeOverdue14  ReminderType = "OVERDUE_14"
	TypeCustom     ReminderType = "CUSTOM"
)

func (t ReminderType) String() string { return string(t) }

func (t ReminderType) IsValid() bool {
	switch t {
	case TypeBeforeDue7, TypeBeforeDue3, TypeDueDate, TypeOverdue3, TypeOverdue7, TypeOverdue14, TypeCustom:
		return true
	}
	return false
}

func ParseReminderTypeFromString(s string) (ReminderType, error) {
	t := ReminderType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid reminder type %q", ErrValidation, s)
	}
	return t, nil
}

// OffsetDays returns the day offset relative to the due date (negative means
// before due). Custom types carry their offset on the reminder itself.
func (t ReminderType) OffsetDays(customOffset int) int {
	switch t {
	case TypeBeforeDue7:
		return -7
	case TypeBeforeDue3:
		return -3
	case TypeDueDate:
		return 0
	case TypeOverdue3:
		return 3
	case TypeOverdue7:
		return 7
	case TypeOverdue14:
		return 14
	case TypeCustom:
		return customOffset
	}
	return 0
}

// MaxSMSContent is the hard cap on an outbound SMS body in characters.
const MaxSMSContent = 160

// Reminder is the core domain entity: one scheduled outreach attempt tied to
// one invoice and one temporal offset. Channel is fixed at creation and never
// recomputed from later settings changes.
type Reminder struct {
	ID            string       `gorm:"type:uuid;primaryKey"`
	InvoiceID     string       `gorm:"type:uuid;not null"`
	UserID        string       `gorm:"type:uuid;not null"`
	ReminderType  ReminderType `gorm:"type:varchar(20);not null"`
	OffsetDays    int          `gorm:"not null;default:0"`
	Channel       Channel      `gorm:"type:varchar(10);not null"`
	ScheduledDate time.Time    `gorm:"type:timestamptz;not null"`
	Status        Status       `gorm:"type:varchar(20);not null"`
	AttemptCount  int          `gorm:"not null;default:0"`
	LastAttemptAt *time.Time
	ExternalID    *string      `gorm:"type:varchar(255)"`
	CallOutcome   *CallOutcome `gorm:"embedded;embeddedPrefix:outcome_"`
	SkipReason    *string      `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *Reminder) Validate() error {
	if r.InvoiceID == "" {
		return fmt.Errorf("%w: invoice id is required", ErrValidation)
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !r.ReminderType.IsValid() {
		return fmt.Errorf("%w: invalid reminder type %q", ErrValidation, r.ReminderType)
	}
	if !r.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, r.Channel)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, r.Status)
	}
	if r.ScheduledDate.IsZero() {
		return fmt.Errorf("%w: scheduled date is required", ErrValidation)
	}
	if r.AttemptCount < 0 {
		return fmt.Errorf("%w: attempt count must be >= 0", ErrValidation)
	}
	return nil
}

// Transition validates and applies a status change in memory. Persistence
// guards (compare-and-swap on the stored status) are the repository's job.
func (r *Reminder) Transition(next Status) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, next)
	}
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}
