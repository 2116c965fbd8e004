package provider

import (
	"context"
	"time"
)

// DispatchResult stores provider call metadata for audit and persistence.
// Accepted means the provider took the dispatch; for voice it is provisional,
// the conversational outcome arrives later via webhook.
type DispatchResult struct {
	Accepted   bool
	ProviderID string
}

// VoiceContext is the payload handed to the voice-call provider so the agent
// can hold the collection conversation.
type VoiceContext struct {
	CustomerName       string    `json:"customerName"`
	InvoiceNumber      string    `json:"invoiceNumber"`
	TotalAmount        float64   `json:"totalAmount"`
	AmountDue          float64   `json:"amountDue"`
	Currency           string    `json:"currency"`
	DueDate            time.Time `json:"dueDate"`
	DaysOffset         int       `json:"daysOffset"`
	PaymentMethods     string    `json:"paymentMethods,omitempty"`
	SupportEmail       string    `json:"supportEmail,omitempty"`
	SupportPhone       string    `json:"supportPhone,omitempty"`
	CompanyName        string    `json:"companyName"`
	CompanyDescription string    `json:"companyDescription,omitempty"`
	Voice              string    `json:"voice"`
	Language           string    `json:"language"`
}

// VoiceDispatcher is the outbound voice-call delivery port.
type VoiceDispatcher interface {
	Dispatch(ctx context.Context, phoneNumber string, callCtx VoiceContext) (*DispatchResult, error)
}

// SMSDispatcher is the outbound SMS delivery port.
type SMSDispatcher interface {
	Send(ctx context.Context, phoneNumber string, message string) (*DispatchResult, error)
}
