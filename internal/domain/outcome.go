package domain

import (
	"fmt"
	"strings"
	"time"
)

// CustomerResponse is the closed set of normalized customer reactions an
// outreach attempt can report.
type CustomerResponse string

const (
	ResponseWillPayToday  CustomerResponse = "WILL_PAY_TODAY"
	ResponseAlreadyPaid   CustomerResponse = "ALREADY_PAID"
	ResponseDispute       CustomerResponse = "DISPUTE"
	ResponseNoAnswer      CustomerResponse = "NO_ANSWER"
	ResponseNoPhoneNumber CustomerResponse = "NO_PHONE_NUMBER"
	ResponseOther         CustomerResponse = "OTHER"
)

func (r CustomerResponse) String() string { return string(r) }

func (r CustomerResponse) IsValid() bool {
	switch r {
	case ResponseWillPayToday, ResponseAlreadyPaid, ResponseDispute,
		ResponseNoAnswer, ResponseNoPhoneNumber, ResponseOther:
		return true
	}
	return false
}

func ParseCustomerResponseFromString(s string) (CustomerResponse, error) {
	r := CustomerResponse(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: invalid customer response %q", ErrValidation, s)
	}
	return r, nil
}

// CallOutcome is the normalized result of a voice or SMS attempt.
type CallOutcome struct {
	Connected        bool             `gorm:"not null;default:false"`
	DurationSeconds  int              `gorm:"not null;default:0"`
	CustomerResponse CustomerResponse `gorm:"type:varchar(20)"`
	Notes            *string          `gorm:"type:text"`
	ProviderID       *string          `gorm:"type:varchar(255)"`
}

// DispatchAttempt records a single provider dispatch for a reminder.
type DispatchAttempt struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	ReminderID    string  `gorm:"type:uuid;not null"`
	AttemptNumber int     `gorm:"not null"`
	Channel       Channel `gorm:"type:varchar(10);not null"`
	ProviderID    *string `gorm:"type:varchar(255)"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}
