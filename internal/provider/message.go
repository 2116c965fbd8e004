package provider

import (
	"fmt"
	"strings"

	"github.com/paydue/reminder-engine/internal/domain"
)

const (
	ellipsis          = "..."
	truncatedNameLen  = 12
	truncatedCompany  = 12
	messageDateLayout = "Jan 2"
)

// FormatReminderSMS renders the reminder template bounded to the SMS
// character budget. When the full text is over budget it progressively
// truncates the customer name, then the company name, then hard-truncates
// with an ellipsis as last resort.
func FormatReminderSMS(invoice domain.Invoice, companyName string, daysOffset int) string {
	customer := strings.TrimSpace(invoice.CustomerName)
	if customer == "" {
		customer = "there"
	}
	company := strings.TrimSpace(companyName)
	if company == "" {
		company = "your vendor"
	}

	message := renderReminderSMS(customer, company, invoice, daysOffset)
	if runeLen(message) <= domain.MaxSMSContent {
		return message
	}

	message = renderReminderSMS(truncateRunes(customer, truncatedNameLen), company, invoice, daysOffset)
	if runeLen(message) <= domain.MaxSMSContent {
		return message
	}

	message = renderReminderSMS(
		truncateRunes(customer, truncatedNameLen),
		truncateRunes(company, truncatedCompany),
		invoice,
		daysOffset,
	)
	if runeLen(message) <= domain.MaxSMSContent {
		return message
	}

	return hardTruncate(message, domain.MaxSMSContent)
}

func renderReminderSMS(customer, company string, invoice domain.Invoice, daysOffset int) string {
	amount := fmt.Sprintf("%.2f %s", invoice.Balance, invoice.Currency)
	due := invoice.DueDate.Format(messageDateLayout)

	switch {
	case daysOffset < 0:
		return fmt.Sprintf("Hi %s, a reminder from %s: invoice %s (%s) is due on %s. Thank you!",
			customer, company, invoice.Number, amount, due)
	case daysOffset == 0:
		return fmt.Sprintf("Hi %s, a reminder from %s: invoice %s (%s) is due today. Thank you!",
			customer, company, invoice.Number, amount)
	default:
		return fmt.Sprintf("Hi %s, a reminder from %s: invoice %s (%s) was due on %s. Please arrange payment.",
			customer, company, invoice.Number, amount, due)
	}
}

// BuildVoiceContext assembles the call payload from the invoice, the business
// profile and the user's voice preferences.
func BuildVoiceContext(
	invoice domain.Invoice,
	profile *domain.BusinessProfile,
	settings domain.ReminderSettings,
	daysOffset int,
) VoiceContext {
	callCtx := VoiceContext{
		CustomerName:  invoice.CustomerName,
		InvoiceNumber: invoice.Number,
		TotalAmount:   invoice.Total,
		AmountDue:     invoice.Balance,
		Currency:      invoice.Currency,
		DueDate:       invoice.DueDate,
		DaysOffset:    daysOffset,
		Voice:         settings.Voice,
		Language:      settings.Language,
	}

	if profile != nil {
		callCtx.CompanyName = profile.CompanyName
		if profile.Description != nil {
			callCtx.CompanyDescription = *profile.Description
		}
		if profile.SupportEmail != nil {
			callCtx.SupportEmail = *profile.SupportEmail
		}
		if profile.SupportPhone != nil {
			callCtx.SupportPhone = *profile.SupportPhone
		}
		if profile.PaymentMethods != nil {
			callCtx.PaymentMethods = *profile.PaymentMethods
		}
	}

	return callCtx
}

func runeLen(s string) int { return len([]rune(s)) }

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func hardTruncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-runeLen(ellipsis)]) + ellipsis
}
