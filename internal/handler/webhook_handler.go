package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/paydue/reminder-engine/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Signature"

const (
	webhookEventAnswered  = "answered"
	webhookEventCompleted = "completed"
	webhookEventFailed    = "failed"
	webhookEventNoAnswer  = "no_answer"
)

// ReminderLookup resolves the reminder a callback refers to.
type ReminderLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Reminder, error)
}

// SettingsLookup loads the outreach policy for the reminder's user.
type SettingsLookup interface {
	GetByUserID(ctx context.Context, userID string) (*domain.ReminderSettings, error)
}

// OutcomeApplier closes an in-flight reminder with a normalized call outcome.
type OutcomeApplier interface {
	HandleWebhook(ctx context.Context, reminder *domain.Reminder, settings domain.ReminderSettings, outcome domain.CallOutcome) error
}

type WebhookHandler struct {
	reminders ReminderLookup
	settings  SettingsLookup
	outcomes  OutcomeApplier
	secret    []byte
	logger    *zap.Logger
}

func NewWebhookHandler(
	reminders ReminderLookup,
	settings SettingsLookup,
	outcomes OutcomeApplier,
	secret string,
	logger *zap.Logger,
) (*WebhookHandler, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder lookup is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings lookup is required")
	}
	if outcomes == nil {
		return nil, fmt.Errorf("outcome applier is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookHandler{
		reminders: reminders,
		settings:  settings,
		outcomes:  outcomes,
		secret:    []byte(secret),
		logger:    logger,
	}, nil
}

func RegisterWebhookRoutes(
	router fiber.Router,
	reminders ReminderLookup,
	settings SettingsLookup,
	outcomes OutcomeApplier,
	secret string,
	logger *zap.Logger,
) error {
	h, err := NewWebhookHandler(reminders, settings, outcomes, secret, logger)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/webhooks/call-outcome", h.CallOutcome)
	return nil
}

type webhookOutcomePayload struct {
	Connected        bool   `json:"connected"`
	DurationSeconds  int    `json:"durationSeconds"`
	CustomerResponse string `json:"customerResponse"`
	Notes            string `json:"notes"`
	ProviderID       string `json:"providerId"`
}

type webhookRequest struct {
	ReminderID string                 `json:"reminderId"`
	Event      string                 `json:"event"`
	Outcome    *webhookOutcomePayload `json:"outcome,omitempty"`
}

// CallOutcome ingests the provider's completion callback. Replays and races
// with the timeout sweep are safe: applying an outcome to a reminder that is
// no longer in progress is a no-op and still answers 200.
func (h *WebhookHandler) CallOutcome(c *fiber.Ctx) error {
	if !h.validSignature(c.Body(), c.Get(SignatureHeader)) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid webhook signature")
	}

	var req webhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.ReminderID) == "" {
		return toHTTPError(fmt.Errorf("%w: reminderId is required", domain.ErrValidation))
	}

	reminder, err := h.reminders.GetByID(c.Context(), strings.TrimSpace(req.ReminderID))
	if err != nil {
		return toHTTPError(err)
	}

	event := strings.ToLower(strings.TrimSpace(req.Event))
	if event == webhookEventAnswered {
		// Progress signal only; the call is still running.
		h.logger.Debug("call answered", zap.String("reminderId", reminder.ID))
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"reminderId": reminder.ID,
			"result":     "acknowledged",
		})
	}

	outcome, err := outcomeFromWebhook(event, req.Outcome)
	if err != nil {
		return toHTTPError(err)
	}

	userSettings, err := h.settings.GetByUserID(c.Context(), reminder.UserID)
	if err != nil {
		return err
	}

	if err := h.outcomes.HandleWebhook(c.Context(), reminder, *userSettings, outcome); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"reminderId": reminder.ID,
		"result":     "processed",
	})
}

func (h *WebhookHandler) validSignature(body []byte, signature string) bool {
	trimmed := strings.TrimSpace(signature)
	if trimmed == "" {
		return false
	}

	provided, err := hex.DecodeString(trimmed)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// ComputeSignature returns the hex HMAC-SHA256 a caller must send for body.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func outcomeFromWebhook(event string, payload *webhookOutcomePayload) (domain.CallOutcome, error) {
	outcome := domain.CallOutcome{}
	if payload != nil {
		outcome.Connected = payload.Connected
		outcome.DurationSeconds = payload.DurationSeconds
		if notes := strings.TrimSpace(payload.Notes); notes != "" {
			outcome.Notes = &notes
		}
		if providerID := strings.TrimSpace(payload.ProviderID); providerID != "" {
			outcome.ProviderID = &providerID
		}
		if raw := strings.TrimSpace(payload.CustomerResponse); raw != "" {
			response, err := domain.ParseCustomerResponseFromString(raw)
			if err != nil {
				return domain.CallOutcome{}, err
			}
			outcome.CustomerResponse = response
		}
	}

	switch event {
	case webhookEventCompleted:
		outcome.Connected = true
		if outcome.CustomerResponse == "" {
			outcome.CustomerResponse = domain.ResponseOther
		}
	case webhookEventNoAnswer:
		outcome.Connected = false
		outcome.CustomerResponse = domain.ResponseNoAnswer
	case webhookEventFailed:
		outcome.Connected = false
		if outcome.CustomerResponse == "" {
			outcome.CustomerResponse = domain.ResponseNoAnswer
		}
	default:
		return domain.CallOutcome{}, fmt.Errorf("%w: unknown webhook event %q", domain.ErrValidation, event)
	}

	return outcome, nil
}
