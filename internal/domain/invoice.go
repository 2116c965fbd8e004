package domain

import (
	"fmt"
	"strings"
	"time"
)

// InvoiceStatus mirrors the accounting provider's invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceSent          InvoiceStatus = "SENT"
	InvoiceUnpaid        InvoiceStatus = "UNPAID"
	InvoiceOverdue       InvoiceStatus = "OVERDUE"
	InvoicePartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoicePaid          InvoiceStatus = "PAID"
	InvoiceVoided        InvoiceStatus = "VOIDED"
	InvoiceUnknown       InvoiceStatus = "UNKNOWN"
)

func (s InvoiceStatus) String() string { return string(s) }

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceSent, InvoiceUnpaid, InvoiceOverdue, InvoicePartiallyPaid, InvoicePaid, InvoiceVoided, InvoiceUnknown:
		return true
	}
	return false
}

// IsActionable reports whether outreach for this status is still warranted.
func (s InvoiceStatus) IsActionable() bool {
	switch s {
	case InvoiceSent, InvoiceUnpaid, InvoiceOverdue, InvoicePartiallyPaid:
		return true
	}
	return false
}

func ParseInvoiceStatusFromString(s string) (InvoiceStatus, error) {
	st := InvoiceStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid invoice status %q", ErrValidation, s)
	}
	return st, nil
}

// Invoice is the locally cached view of an accounting invoice. The sync
// collaborator owns it; the engine only writes status/balance back after a
// pre-dispatch verification.
type Invoice struct {
	ID            string        `gorm:"type:uuid;primaryKey"`
	UserID        string        `gorm:"type:uuid;not null"`
	Number        string        `gorm:"type:varchar(64);not null"`
	CustomerName  string        `gorm:"type:varchar(255);not null"`
	CustomerPhone *string       `gorm:"type:varchar(32)"`
	Total         float64       `gorm:"not null"`
	Balance       float64       `gorm:"not null"`
	Currency      string        `gorm:"type:varchar(3);not null;default:'USD'"`
	DueDate       time.Time     `gorm:"type:timestamptz;not null"`
	Status        InvoiceStatus `gorm:"type:varchar(20);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BusinessProfile holds the per-user company details woven into outreach
// messages. Read-only to the engine.
type BusinessProfile struct {
	UserID         string  `gorm:"type:uuid;primaryKey"`
	CompanyName    string  `gorm:"type:varchar(255);not null"`
	Description    *string `gorm:"type:text"`
	SupportEmail   *string `gorm:"type:varchar(255)"`
	SupportPhone   *string `gorm:"type:varchar(32)"`
	PaymentMethods *string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
