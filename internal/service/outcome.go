package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paydue/reminder-engine/internal/domain"
	"github.com/paydue/reminder-engine/internal/events"
	"github.com/paydue/reminder-engine/internal/observability"
	"github.com/paydue/reminder-engine/internal/repository"
)

const cascadeSkipReason = "invoice already paid"

// OutcomeHandler turns normalized attempt outcomes into state transitions.
// Every close it performs is guarded on the stored status still being
// IN_PROGRESS, so the webhook and the timeout sweep can both report the same
// reminder and whichever runs second degrades to a no-op.
type OutcomeHandler struct {
	reminders repository.ReminderRepository
	verifier  PaymentVerifier
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewOutcomeHandler builds the handler. The publisher is optional; without
// one lifecycle events are simply not emitted.
func NewOutcomeHandler(
	reminders repository.ReminderRepository,
	verifier PaymentVerifier,
	publisher events.Publisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*OutcomeHandler, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder repository is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("payment verifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OutcomeHandler{
		reminders: reminders,
		verifier:  verifier,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// HandleExecution applies a synchronous dispatch result.
func (h *OutcomeHandler) HandleExecution(
	ctx context.Context,
	reminder *domain.Reminder,
	settings domain.ReminderSettings,
	result *ExecutionResult,
) error {
	if result == nil {
		return fmt.Errorf("execution result is required")
	}

	switch result.Disposition {
	case dispositionAwaitingCallback:
		// Stays IN_PROGRESS until the webhook or the timeout sweep closes it.
		return nil
	case dispositionCompleted:
		return h.complete(ctx, reminder, result.Outcome)
	case dispositionSkipped:
		return h.skip(ctx, reminder, result.Outcome, result.Reason)
	case dispositionFailed:
		if result.Transient {
			return h.retryOrFail(ctx, reminder, settings, result.Outcome, result.Reason)
		}
		return h.fail(ctx, reminder, result.Outcome, result.Reason)
	}
	return fmt.Errorf("unknown execution disposition %q", result.Disposition)
}

// HandleWebhook applies a provider callback outcome to an in-flight reminder.
func (h *OutcomeHandler) HandleWebhook(
	ctx context.Context,
	reminder *domain.Reminder,
	settings domain.ReminderSettings,
	outcome domain.CallOutcome,
) error {
	switch {
	case outcome.CustomerResponse == domain.ResponseNoPhoneNumber:
		return h.skip(ctx, reminder, &outcome, "customer has no reachable phone number")
	case outcome.CustomerResponse == domain.ResponseAlreadyPaid:
		return h.skip(ctx, reminder, &outcome, "customer reports invoice already paid")
	case outcome.CustomerResponse == domain.ResponseNoAnswer:
		return h.retryOrFail(ctx, reminder, settings, &outcome, "call not answered")
	case outcome.Connected:
		return h.complete(ctx, reminder, &outcome)
	default:
		return h.retryOrFail(ctx, reminder, settings, &outcome, "call did not connect")
	}
}

// HandleTimeout closes a reminder stuck IN_PROGRESS past the callback
// deadline, treating it like an unanswered attempt.
func (h *OutcomeHandler) HandleTimeout(
	ctx context.Context,
	reminder *domain.Reminder,
	settings domain.ReminderSettings,
) error {
	notes := "no completion callback before the in-progress timeout"
	outcome := &domain.CallOutcome{
		Connected:        false,
		CustomerResponse: domain.ResponseNoAnswer,
		Notes:            &notes,
	}

	h.metrics.IncSweepTimeout(channelLabel(reminder.Channel))
	return h.retryOrFail(ctx, reminder, settings, outcome, "timed out waiting for provider callback")
}

// FailPending terminates a reminder rejected permanently before dispatch
// (exhausted attempts found at gatekeeper time).
func (h *OutcomeHandler) FailPending(ctx context.Context, reminder *domain.Reminder, reason string) error {
	swapped, err := h.reminders.FailFromPending(ctx, reminder.ID, reason)
	if err != nil {
		return err
	}
	if !swapped {
		return nil
	}

	h.metrics.IncReminderFailed(channelLabel(reminder.Channel), reason)
	h.publish(ctx, reminder, events.EventFailed, domain.StatusFailed, reason)
	return nil
}

func (h *OutcomeHandler) complete(ctx context.Context, reminder *domain.Reminder, outcome *domain.CallOutcome) error {
	swapped, err := h.reminders.CloseFromInProgress(ctx, reminder.ID, repository.TerminalUpdate{
		Status:  domain.StatusCompleted,
		Outcome: outcome,
	})
	if err != nil {
		return err
	}
	if !swapped {
		h.logAlreadyClosed(reminder, domain.StatusCompleted)
		return nil
	}

	h.metrics.IncReminderCompleted(channelLabel(reminder.Channel))
	h.publish(ctx, reminder, events.EventCompleted, domain.StatusCompleted, "")
	return nil
}

func (h *OutcomeHandler) skip(
	ctx context.Context,
	reminder *domain.Reminder,
	outcome *domain.CallOutcome,
	reason string,
) error {
	swapped, err := h.reminders.CloseFromInProgress(ctx, reminder.ID, repository.TerminalUpdate{
		Status:     domain.StatusSkipped,
		Outcome:    outcome,
		SkipReason: &reason,
	})
	if err != nil {
		return err
	}
	if !swapped {
		h.logAlreadyClosed(reminder, domain.StatusSkipped)
		return nil
	}

	h.metrics.IncReminderSkipped(channelLabel(reminder.Channel), reason)
	h.publish(ctx, reminder, events.EventSkipped, domain.StatusSkipped, reason)

	if outcome != nil && outcome.CustomerResponse == domain.ResponseAlreadyPaid {
		h.cascadeIfPaid(ctx, reminder)
	}
	return nil
}

func (h *OutcomeHandler) fail(
	ctx context.Context,
	reminder *domain.Reminder,
	outcome *domain.CallOutcome,
	reason string,
) error {
	swapped, err := h.reminders.CloseFromInProgress(ctx, reminder.ID, repository.TerminalUpdate{
		Status:     domain.StatusFailed,
		Outcome:    outcome,
		SkipReason: &reason,
	})
	if err != nil {
		return err
	}
	if !swapped {
		h.logAlreadyClosed(reminder, domain.StatusFailed)
		return nil
	}

	h.metrics.IncReminderFailed(channelLabel(reminder.Channel), reason)
	h.publish(ctx, reminder, events.EventFailed, domain.StatusFailed, reason)
	return nil
}

// retryOrFail loops a retryable failure back to PENDING after the configured
// delay. The attempt ceiling is primarily enforced at gatekeeper time, before
// the next dispatch; the check here only catches reminders that somehow
// overshot it.
func (h *OutcomeHandler) retryOrFail(
	ctx context.Context,
	reminder *domain.Reminder,
	settings domain.ReminderSettings,
	outcome *domain.CallOutcome,
	reason string,
) error {
	maxAttempts := settings.EffectiveMaxAttempts()
	if reminder.AttemptCount > maxAttempts {
		return h.fail(ctx, reminder, outcome, fmt.Sprintf("%s (%d/%d attempts, %s)",
			reason, reminder.AttemptCount, maxAttempts, channelLabel(reminder.Channel)))
	}

	next := h.now().Add(settings.EffectiveRetryDelay())
	swapped, err := h.reminders.CloseFromInProgress(ctx, reminder.ID, repository.TerminalUpdate{
		Status:            domain.StatusPending,
		Outcome:           outcome,
		NextScheduledDate: &next,
	})
	if err != nil {
		return err
	}
	if !swapped {
		h.logAlreadyClosed(reminder, domain.StatusPending)
		return nil
	}

	h.metrics.IncRetryScheduled(channelLabel(reminder.Channel))
	h.publish(ctx, reminder, events.EventRetryScheduled, domain.StatusPending, reason)
	h.logger.Info("reminder scheduled for retry",
		zap.String("reminderId", reminder.ID),
		zap.Int("attemptCount", reminder.AttemptCount),
		zap.Int("maxAttempts", maxAttempts),
		zap.Time("nextAttemptAt", next),
		zap.String("reason", reason),
	)
	return nil
}

// cascadeIfPaid re-verifies the invoice after a customer claimed payment and,
// when the accounting provider confirms, skips every other pending reminder
// of the invoice.
func (h *OutcomeHandler) cascadeIfPaid(ctx context.Context, reminder *domain.Reminder) {
	verification := h.verifier.ShouldProceed(ctx, reminder.InvoiceID)
	if verification.Status != domain.InvoicePaid {
		h.logger.Info("customer claimed payment but accounting provider does not confirm",
			zap.String("invoiceId", reminder.InvoiceID),
			zap.String("status", verification.Status.String()),
		)
		return
	}

	affected, err := h.reminders.CascadeSkipPending(ctx, reminder.InvoiceID, reminder.ID, cascadeSkipReason)
	if err != nil {
		h.logger.Error("failed to cancel sibling reminders for paid invoice",
			zap.String("invoiceId", reminder.InvoiceID),
			zap.Error(err),
		)
		return
	}
	if affected > 0 {
		h.logger.Info("cancelled sibling reminders for paid invoice",
			zap.String("invoiceId", reminder.InvoiceID),
			zap.Int64("count", affected),
		)
	}
}

func (h *OutcomeHandler) publish(
	ctx context.Context,
	reminder *domain.Reminder,
	eventType events.EventType,
	status domain.Status,
	reason string,
) {
	if h.publisher == nil {
		return
	}

	event := events.ReminderEvent{
		Type:         eventType,
		ReminderID:   reminder.ID,
		InvoiceID:    reminder.InvoiceID,
		UserID:       reminder.UserID,
		Channel:      reminder.Channel,
		Status:       status,
		AttemptCount: reminder.AttemptCount,
		Reason:       reason,
		OccurredAt:   h.now(),
	}
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.Warn("failed to publish reminder event",
			zap.String("type", string(eventType)),
			zap.String("reminderId", reminder.ID),
			zap.Error(err),
		)
	}
}

func (h *OutcomeHandler) logAlreadyClosed(reminder *domain.Reminder, wanted domain.Status) {
	h.logger.Debug("reminder no longer in progress, outcome ignored",
		zap.String("reminderId", reminder.ID),
		zap.String("wantedStatus", wanted.String()),
	)
}
