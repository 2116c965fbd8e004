package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paydue/reminder-engine/internal/domain"
	"github.com/paydue/reminder-engine/internal/observability"
	"github.com/paydue/reminder-engine/internal/provider"
	"github.com/paydue/reminder-engine/internal/ratelimit"
	"github.com/paydue/reminder-engine/internal/repository"
	"github.com/paydue/reminder-engine/internal/verify"
)

// PaymentVerifier re-checks authoritative invoice state before any provider
// call.
type PaymentVerifier interface {
	ShouldProceed(ctx context.Context, invoiceID string) verify.Result
}

// Dispatcher executes one claimed reminder against its provider.
type Dispatcher interface {
	Execute(ctx context.Context, reminder *domain.Reminder, settings domain.ReminderSettings) (*ExecutionResult, error)
}

// disposition classifies what a single dispatch attempt produced.
type disposition string

const (
	// dispositionAwaitingCallback means the provider accepted the dispatch
	// and the conversational result arrives later via webhook.
	dispositionAwaitingCallback disposition = "awaiting_callback"
	// dispositionCompleted means the attempt finished synchronously.
	dispositionCompleted disposition = "completed"
	// dispositionSkipped means outreach is no longer warranted.
	dispositionSkipped disposition = "skipped"
	// dispositionFailed means the provider rejected the dispatch.
	dispositionFailed disposition = "failed"
)

// ExecutionResult is the normalized output of one dispatch attempt.
type ExecutionResult struct {
	Disposition disposition
	Outcome     *domain.CallOutcome
	Reason      string
	// Transient marks failed dispositions worth retrying on a later tick.
	Transient bool
}

// Executor runs the channel-specific dispatch path for a reminder that has
// already been claimed (IN_PROGRESS).
type Executor struct {
	reminders repository.ReminderRepository
	invoices  repository.InvoiceRepository
	profiles  repository.ProfileRepository
	attempts  repository.AttemptRepository
	verifier  PaymentVerifier
	voice     provider.VoiceDispatcher
	sms       provider.SMSDispatcher
	limiter   ratelimit.RateLimiter
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewExecutor(
	reminders repository.ReminderRepository,
	invoices repository.InvoiceRepository,
	profiles repository.ProfileRepository,
	attempts repository.AttemptRepository,
	verifier PaymentVerifier,
	voice provider.VoiceDispatcher,
	sms provider.SMSDispatcher,
	limiter ratelimit.RateLimiter,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Executor, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder repository is required")
	}
	if invoices == nil {
		return nil, fmt.Errorf("invoice repository is required")
	}
	if profiles == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("payment verifier is required")
	}
	if voice == nil {
		return nil, fmt.Errorf("voice dispatcher is required")
	}
	if sms == nil {
		return nil, fmt.Errorf("sms dispatcher is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Executor{
		reminders: reminders,
		invoices:  invoices,
		profiles:  profiles,
		attempts:  attempts,
		verifier:  verifier,
		voice:     voice,
		sms:       sms,
		limiter:   limiter,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Execute verifies the invoice, consumes an attempt and calls the provider
// for the reminder's channel. Policy checks belong to the gatekeeper and run
// before the claim; Execute assumes them already passed.
func (e *Executor) Execute(
	ctx context.Context,
	reminder *domain.Reminder,
	settings domain.ReminderSettings,
) (*ExecutionResult, error) {
	if reminder == nil {
		return nil, fmt.Errorf("reminder is required")
	}
	if !reminder.Channel.IsValid() {
		return &ExecutionResult{
			Disposition: dispositionFailed,
			Reason:      fmt.Sprintf("unsupported channel %q", reminder.Channel),
		}, nil
	}

	invoice, err := e.invoices.GetByID(ctx, reminder.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice %s: %w", reminder.InvoiceID, err)
	}

	// A paid or otherwise not-actionable invoice skips before any attempt
	// is consumed. An unreachable accounting provider does consume one:
	// the outage surfaces as a transient failure routed through the retry
	// machine, so the attempt ceiling still terminates the reminder.
	verification := e.verifier.ShouldProceed(ctx, reminder.InvoiceID)
	if !verification.ShouldProceed && verification.Status != domain.InvoiceUnknown {
		outcome := &domain.CallOutcome{}
		if verification.Status == domain.InvoicePaid {
			outcome.CustomerResponse = domain.ResponseAlreadyPaid
		}
		return &ExecutionResult{
			Disposition: dispositionSkipped,
			Outcome:     outcome,
			Reason:      verification.Reason,
		}, nil
	}

	attemptAt := e.now()
	if err := e.reminders.RecordAttempt(ctx, reminder.ID, attemptAt); err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}
	reminder.AttemptCount++
	reminder.LastAttemptAt = &attemptAt
	attemptNumber := reminder.AttemptCount

	if !verification.ShouldProceed {
		e.recordAttemptRow(ctx, reminder, attemptNumber, nil, errors.New(verification.Reason))
		return &ExecutionResult{
			Disposition: dispositionFailed,
			Reason:      verification.Reason,
			Transient:   true,
		}, nil
	}

	phone, phoneErr := usablePhone(invoice)
	if phoneErr != nil {
		e.recordAttemptRow(ctx, reminder, attemptNumber, nil, phoneErr)
		outcome := &domain.CallOutcome{CustomerResponse: domain.ResponseNoPhoneNumber}
		return &ExecutionResult{
			Disposition: dispositionSkipped,
			Outcome:     outcome,
			Reason:      phoneErr.Error(),
		}, nil
	}

	if err := e.limiter.Wait(ctx, channelLabel(reminder.Channel)); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	started := e.now()
	var result *provider.DispatchResult
	var dispatchErr error
	switch reminder.Channel {
	case domain.ChannelVoice:
		result, dispatchErr = e.dispatchVoice(ctx, reminder, invoice, settings, phone)
	case domain.ChannelSMS:
		result, dispatchErr = e.dispatchSMS(ctx, reminder, invoice, phone)
	}
	e.metrics.ObserveDispatchDuration(channelLabel(reminder.Channel), e.now().Sub(started))

	e.recordAttemptRow(ctx, reminder, attemptNumber, result, dispatchErr)

	if dispatchErr != nil {
		return &ExecutionResult{
			Disposition: dispositionFailed,
			Reason:      dispatchErr.Error(),
			Transient:   provider.IsTransient(dispatchErr),
		}, nil
	}

	if result != nil && result.ProviderID != "" {
		if err := e.reminders.SetExternalID(ctx, reminder.ID, result.ProviderID); err != nil {
			e.logger.Warn("failed to store provider id",
				zap.String("reminderId", reminder.ID),
				zap.String("providerId", result.ProviderID),
				zap.Error(err),
			)
		}
	}

	if reminder.Channel == domain.ChannelVoice {
		return &ExecutionResult{Disposition: dispositionAwaitingCallback}, nil
	}

	notes := "message accepted by sms provider"
	outcome := &domain.CallOutcome{
		Connected:        true,
		CustomerResponse: domain.ResponseOther,
		Notes:            &notes,
	}
	if result != nil && result.ProviderID != "" {
		providerID := result.ProviderID
		outcome.ProviderID = &providerID
	}
	return &ExecutionResult{Disposition: dispositionCompleted, Outcome: outcome}, nil
}

func (e *Executor) dispatchVoice(
	ctx context.Context,
	reminder *domain.Reminder,
	invoice *domain.Invoice,
	settings domain.ReminderSettings,
	phone string,
) (*provider.DispatchResult, error) {
	profile := e.loadProfile(ctx, reminder.UserID)
	callCtx := provider.BuildVoiceContext(
		*invoice,
		profile,
		settings,
		reminder.ReminderType.OffsetDays(reminder.OffsetDays),
	)
	return e.voice.Dispatch(ctx, phone, callCtx)
}

func (e *Executor) dispatchSMS(
	ctx context.Context,
	reminder *domain.Reminder,
	invoice *domain.Invoice,
	phone string,
) (*provider.DispatchResult, error) {
	profile := e.loadProfile(ctx, reminder.UserID)
	company := ""
	if profile != nil {
		company = profile.CompanyName
	}

	message := provider.FormatReminderSMS(*invoice, company, reminder.ReminderType.OffsetDays(reminder.OffsetDays))
	return e.sms.Send(ctx, phone, message)
}

// loadProfile tolerates a missing profile; message templates fall back to
// neutral wording.
func (e *Executor) loadProfile(ctx context.Context, userID string) *domain.BusinessProfile {
	profile, err := e.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn("failed to load business profile",
				zap.String("userId", userID),
				zap.Error(err),
			)
		}
		return nil
	}
	return profile
}

func (e *Executor) recordAttemptRow(
	ctx context.Context,
	reminder *domain.Reminder,
	attemptNumber int,
	result *provider.DispatchResult,
	dispatchErr error,
) {
	attempt := &domain.DispatchAttempt{
		ID:            uuid.NewString(),
		ReminderID:    reminder.ID,
		AttemptNumber: attemptNumber,
		Channel:       reminder.Channel,
	}
	if result != nil && result.ProviderID != "" {
		providerID := result.ProviderID
		attempt.ProviderID = &providerID
	}
	if dispatchErr != nil {
		message := dispatchErr.Error()
		attempt.Error = &message
	}

	if err := e.attempts.Create(ctx, attempt); err != nil {
		e.logger.Error("failed to record dispatch attempt",
			zap.String("reminderId", reminder.ID),
			zap.Int("attemptNumber", attemptNumber),
			zap.Error(err),
		)
	}
}

func usablePhone(invoice *domain.Invoice) (string, error) {
	if invoice.CustomerPhone == nil || strings.TrimSpace(*invoice.CustomerPhone) == "" {
		return "", fmt.Errorf("customer has no phone number on file")
	}

	phone := domain.SanitizePhone(*invoice.CustomerPhone)
	if err := domain.ValidateE164(phone); err != nil {
		return "", fmt.Errorf("customer phone number is not dialable: %v", err)
	}
	return phone, nil
}

func channelLabel(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}
