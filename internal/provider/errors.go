package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ProviderError classifies provider call failures as transient/permanent.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if code := strings.TrimSpace(e.Code); code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", code))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// permanentSMSCodes are provider error codes that mean the destination can
// never be reached; retrying burns attempts for nothing.
var permanentSMSCodes = map[string]bool{
	"invalid_number":      true,
	"unroutable":          true,
	"blocked_destination": true,
	"opted_out":           true,
}

// transientSMSCodes are provider error codes worth another attempt.
var transientSMSCodes = map[string]bool{
	"rate_limited":  true,
	"network_error": true,
	"queue_full":    true,
	"timeout":       true,
}

// ClassifySMSCode maps a provider error code to retryability. Unknown codes
// default to transient so a new provider code never silently kills a
// reminder.
func ClassifySMSCode(code string) bool {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if permanentSMSCodes[normalized] {
		return false
	}
	if transientSMSCodes[normalized] {
		return true
	}
	return true
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}

	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
