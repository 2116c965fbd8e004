package repository

import (
	"time"

	"github.com/paydue/reminder-engine/internal/domain"
)

// ReminderModel is the persistence model for the reminders table.
type ReminderModel struct {
	ID               string                  `gorm:"type:uuid;primaryKey"`
	InvoiceID        string                  `gorm:"type:uuid;not null"`
	UserID           string                  `gorm:"type:uuid;not null"`
	ReminderType     domain.ReminderType     `gorm:"type:varchar(20);not null"`
	OffsetDays       int                     `gorm:"not null;default:0"`
	Channel          domain.Channel          `gorm:"type:varchar(10);not null"`
	ScheduledDate    time.Time               `gorm:"type:timestamptz;not null"`
	Status           domain.Status           `gorm:"type:varchar(20);not null"`
	AttemptCount     int                     `gorm:"not null;default:0"`
	LastAttemptAt    *time.Time
	ExternalID       *string                 `gorm:"type:varchar(255)"`
	OutcomeConnected *bool
	OutcomeDuration  *int
	OutcomeResponse  *domain.CustomerResponse `gorm:"type:varchar(20)"`
	OutcomeNotes     *string                  `gorm:"type:text"`
	OutcomeProvider  *string                  `gorm:"type:varchar(255)"`
	SkipReason       *string                  `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ReminderModel) TableName() string {
	return "reminders"
}

// DispatchAttemptModel is the persistence model for dispatch_attempts.
type DispatchAttemptModel struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	ReminderID    string         `gorm:"type:uuid;not null"`
	AttemptNumber int            `gorm:"not null"`
	Channel       domain.Channel `gorm:"type:varchar(10);not null"`
	ProviderID    *string        `gorm:"type:varchar(255)"`
	Error         *string        `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DispatchAttemptModel) TableName() string {
	return "dispatch_attempts"
}

func reminderModelFromDomain(r *domain.Reminder) *ReminderModel {
	if r == nil {
		return nil
	}

	m := &ReminderModel{
		ID:            r.ID,
		InvoiceID:     r.InvoiceID,
		UserID:        r.UserID,
		ReminderType:  r.ReminderType,
		OffsetDays:    r.OffsetDays,
		Channel:       r.Channel,
		ScheduledDate: r.ScheduledDate,
		Status:        r.Status,
		AttemptCount:  r.AttemptCount,
		LastAttemptAt: r.LastAttemptAt,
		ExternalID:    r.ExternalID,
		SkipReason:    r.SkipReason,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}

	if r.CallOutcome != nil {
		connected := r.CallOutcome.Connected
		duration := r.CallOutcome.DurationSeconds
		response := r.CallOutcome.CustomerResponse
		m.OutcomeConnected = &connected
		m.OutcomeDuration = &duration
		m.OutcomeResponse = &response
		m.OutcomeNotes = r.CallOutcome.Notes
		m.OutcomeProvider = r.CallOutcome.ProviderID
	}

	return m
}

func reminderModelToDomain(m *ReminderModel) *domain.Reminder {
	if m == nil {
		return nil
	}

	r := &domain.Reminder{
		ID:            m.ID,
		InvoiceID:     m.InvoiceID,
		UserID:        m.UserID,
		ReminderType:  m.ReminderType,
		OffsetDays:    m.OffsetDays,
		Channel:       m.Channel,
		ScheduledDate: m.ScheduledDate,
		Status:        m.Status,
		AttemptCount:  m.AttemptCount,
		LastAttemptAt: m.LastAttemptAt,
		ExternalID:    m.ExternalID,
		SkipReason:    m.SkipReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}

	if m.OutcomeResponse != nil || m.OutcomeConnected != nil {
		outcome := &domain.CallOutcome{
			Notes:      m.OutcomeNotes,
			ProviderID: m.OutcomeProvider,
		}
		if m.OutcomeConnected != nil {
			outcome.Connected = *m.OutcomeConnected
		}
		if m.OutcomeDuration != nil {
			outcome.DurationSeconds = *m.OutcomeDuration
		}
		if m.OutcomeResponse != nil {
			outcome.CustomerResponse = *m.OutcomeResponse
		}
		r.CallOutcome = outcome
	}

	return r
}

func attemptModelFromDomain(a *domain.DispatchAttempt) *DispatchAttemptModel {
	if a == nil {
		return nil
	}

	return &DispatchAttemptModel{
		ID:            a.ID,
		ReminderID:    a.ReminderID,
		AttemptNumber: a.AttemptNumber,
		Channel:       a.Channel,
		ProviderID:    a.ProviderID,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DispatchAttemptModel) *domain.DispatchAttempt {
	if m == nil {
		return nil
	}

	return &domain.DispatchAttempt{
		ID:            m.ID,
		ReminderID:    m.ReminderID,
		AttemptNumber: m.AttemptNumber,
		Channel:       m.Channel,
		ProviderID:    m.ProviderID,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}
