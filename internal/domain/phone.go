package domain

import (
	"fmt"
	"strings"
)

// SanitizePhone normalizes a raw phone number to canonical international
// form: formatting characters stripped, "00" international prefix rewritten
// to "+", bare national-format digits prefixed with "+".
func SanitizePhone(raw string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// formatting noise
		}
	}

	cleaned := b.String()
	switch {
	case cleaned == "":
		return ""
	case strings.HasPrefix(cleaned, "+"):
		return cleaned
	case strings.HasPrefix(cleaned, "00"):
		return "+" + cleaned[2:]
	default:
		return "+" + cleaned
	}
}

// ValidateE164 enforces the E.164 shape required by both dispatch providers:
// leading "+", first digit 1-9, 2 to 15 digits total.
func ValidateE164(phone string) error {
	if !strings.HasPrefix(phone, "+") {
		return fmt.Errorf("%w: phone number %q must start with +", ErrValidation, phone)
	}

	digits := phone[1:]
	if len(digits) < 2 || len(digits) > 15 {
		return fmt.Errorf("%w: phone number %q must have 2-15 digits", ErrValidation, phone)
	}
	if digits[0] == '0' {
		return fmt.Errorf("%w: phone number %q must not start with 0", ErrValidation, phone)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: phone number %q contains non-digit characters", ErrValidation, phone)
		}
	}
	return nil
}
