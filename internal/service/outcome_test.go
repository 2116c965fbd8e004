package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/paydue/reminder-engine/internal/domain"
	"github.com/paydue/reminder-engine/internal/events"
	"github.com/paydue/reminder-engine/internal/verify"
)

type outcomeFixture struct {
	handler   *OutcomeHandler
	reminders *fakeReminderRepo
	verifier  *fakeVerifier
	publisher *fakePublisher
	now       time.Time
}

func newOutcomeFixture(t *testing.T, reminders ...*domain.Reminder) *outcomeFixture {
	t.Helper()

	fixture := &outcomeFixture{
		reminders: newFakeReminderRepo(reminders...),
		verifier:  &fakeVerifier{result: verify.Result{ShouldProceed: true, Status: domain.InvoiceOverdue}},
		publisher: &fakePublisher{},
		now:       time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC),
	}

	handler, err := NewOutcomeHandler(fixture.reminders, fixture.verifier, fixture.publisher, nil, nil)
	if err != nil {
		t.Fatalf("NewOutcomeHandler() error = %v", err)
	}
	handler.now = func() time.Time { return fixture.now }
	fixture.handler = handler
	return fixture
}

func TestHandleWebhookConnectedCompletes(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusInProgress, domain.ChannelVoice)
	reminder.AttemptCount = 1
	fixture := newOutcomeFixture(t, reminder)

	outcome := domain.CallOutcome{
		Connected:        true,
		DurationSeconds:  95,
		CustomerResponse: domain.ResponseWillPayToday,
	}
	if err := fixture.handler.HandleWebhook(context.Background(), reminder, domain.DefaultSettings("user-1"), outcome); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	stored := fixture.reminders.get(reminder.ID)
	if stored.Status != domain.StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED", stored.Status)
	}
	if stored.CallOutcome == nil || stored.CallOutcome.CustomerResponse != domain.ResponseWillPayToday {
		t.Fatalf("CallOutcome = %+v, want WILL_PAY_TODAY", stored.CallOutcome)
	}

	published := fixture.publisher.published()
	if len(published) != 1 || published[0].Type != events.EventCompleted {
		t.Fatalf("published = %+v, want one completed event", published)
	}
}

func TestHandleWebhookNoAnswerSchedulesRetry(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusInProgress, domain.ChannelVoice)
	reminder.AttemptCount = 3
	fixture := newOutcomeFixture(t, reminder)

	settings := domain.DefaultSettings("user-1")
	outcome := domain.CallOutcome{Connected: false, CustomerResponse: domain.ResponseNoAnswer}
	if err := fixture.handler.HandleWebhook(context.Background(), reminder, settings, outcome); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	stored := fixture.reminders.get(reminder.ID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("Status = %s, want PENDING", stored.Status)
	}
	if stored.AttemptCount != 3 {
		t.Fatalf("AttemptCount = %d, want 3 (preserved)", stored.AttemptCount)
	}
	wantNext := fixture.now.Add(settings.EffectiveRetryDelay())
	if !stored.ScheduledDate.Equal(wantNext) {
		t.Fatalf("ScheduledDate = %s, want %s", stored.ScheduledDate, wantNext)
	}

	published := fixture.publisher.published()
	if len(published) != 1 || published[0].Type != events.EventRetryScheduled {
		t.Fatalf("published = %+v, want one retry event", published)
	}
}

func TestHandleWebhookAlreadyPaidSkipsAndCascades(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusInProgress, domain.ChannelVoice)
	sibling := testReminder(domain.StatusPending, domain.ChannelSMS)
	sibling.ID = "rem-2"
	unrelated := testReminder(domain.StatusPending, domain.ChannelVoice)
	unrelated.ID = "rem-3"
	unrelated.InvoiceID = "inv-other"

	fixture := newOutcomeFixture(t, reminder, sibling, unrelated)
	fixture.verifier.result = verify.Result{ShouldProceed: false, Status: domain.InvoicePaid, Reason: "invoice already paid"}

	outcome := domain.CallOutcome{Connected: true, CustomerResponse: domain.ResponseAlreadyPaid}
	if err := fixture.handler.HandleWebhook(context.Background(), reminder, domain.DefaultSettings("user-1"), outcome); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	if got := fixture.reminders.get(reminder.ID).Status; got != domain.StatusSkipped {
		t.Fatalf("reminder Status = %s, want SKIPPED", got)
	}
	storedSibling := fixture.reminders.get(sibling.ID)
	if storedSibling.Status != domain.StatusSkipped {
		t.Fatalf("sibling Status = %s, want SKIPPED", storedSibling.Status)
	}
	if storedSibling.SkipReason == nil || !strings.Contains(*storedSibling.SkipReason, "paid") {
		t.Fatalf("sibling SkipReason = %v, want payment reason", storedSibling.SkipReason)
	}
	if got := fixture.reminders.get(unrelated.ID).Status; got != domain.StatusPending {
		t.Fatalf("unrelated reminder Status = %s, want PENDING", got)
	}
}

func TestHandleWebhookAlreadyPaidWithoutConfirmationDoesNotCascade(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusInProgress, domain.ChannelVoice)
	sibling := testReminder(domain.StatusPending, domain.ChannelSMS)
	sibling.ID = "rem-2"

	fixture := newOutcomeFixture(t, reminder, sibling)
	fixture.verifier.result = verify.Result{ShouldProceed: true, Status: domain.InvoiceOverdue}

	outcome := domain.CallOutcome{Connected: true, CustomerResponse: domain.ResponseAlreadyPaid}
	if err := fixture.handler.HandleWebhook(context.Background(), reminder, domain.DefaultSettings("user-1"), outcome); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	// The claiming reminder is still skipped, but siblings stay pending until
	// the accounting provider confirms payment.
	if got := fixture.reminders.get(reminder.ID).Status; got != domain.StatusSkipped {
		t.Fatalf("reminder Status = %s, want SKIPPED", got)
	}
	if got := fixture.reminders.get(sibling.ID).Status; got != domain.StatusPending {
		t.Fatalf("sibling Status = %s, want PENDING", got)
	}
	if fixture.verifier.callCount() != 1 {
		t.Fatalf("verifier calls = %d, want 1", fixture.verifier.callCount())
	}
}

func TestHandleWebhookIgnoredWhenNotInProgress(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusCompleted, domain.ChannelVoice)
	fixture := newOutcomeFixture(t, reminder)

	outcome := domain.CallOutcome{Connected: true, CustomerResponse: domain.ResponseWillPayToday}
	if err := fixture.handler.HandleWebhook(context.Background(), reminder, domain.DefaultSettings("user-1"), outcome); err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}

	if got := fixture.reminders.get(reminder.ID).Status; got != domain.StatusCompleted {
		t.Fatalf("Status = %s, want COMPLETED untouched", got)
	}
	if published := fixture.publisher.published(); len(published) != 0 {
		t.Fatalf("published = %+v, want none for a no-op", published)
	}
}

func TestHandleExecutionTransientFailureRetries(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusInProgress, domain.ChannelSMS)
	reminder.AttemptCount = 1
	fixture := newOutcomeFixture(t, reminder)

	result := &ExecutionResult{Disposition: dispositionFailed, Reason: "sms provider returned status 503", Transient: true}
	if err := fixture.handler.HandleExecution(context.Background(), reminder, domain.DefaultSettings("user-1"), result); err != nil {
		t.Fatalf("HandleExecution() error = %v", err)
	}

	if got := fixture.reminders.get(reminder.ID).Status; got != domain.StatusPending {
		t.Fatalf("Status = %s, want PENDING", got)
	}
}

func TestHandleExecutionPermanentFailureFails(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusInProgress, domain.ChannelSMS)
	reminder.AttemptCount = 1
	fixture := newOutcomeFixture(t, reminder)

	result := &ExecutionResult{Disposition: dispositionFailed, Reason: "invalid_number", Transient: false}
	if err := fixture.handler.HandleExecution(context.Background(), reminder, domain.DefaultSettings("user-1"), result); err != nil {
		t.Fatalf("HandleExecution() error = %v", err)
	}

	stored := fixture.reminders.get(reminder.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("Status = %s, want FAILED", stored.Status)
	}
	if stored.SkipReason == nil || *stored.SkipReason != "invalid_number" {
		t.Fatalf("SkipReason = %v, want invalid_number", stored.SkipReason)
	}

	published := fixture.publisher.published()
	if len(published) != 1 || published[0].Type != events.EventFailed {
		t.Fatalf("published = %+v, want one failed event", published)
	}
}

func TestHandleExecutionTransientFailureBeyondCeilingFails(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusInProgress, domain.ChannelVoice)
	reminder.AttemptCount = 4
	fixture := newOutcomeFixture(t, reminder)

	result := &ExecutionResult{Disposition: dispositionFailed, Reason: "verification failed: connection refused", Transient: true}
	if err := fixture.handler.HandleExecution(context.Background(), reminder, domain.DefaultSettings("user-1"), result); err != nil {
		t.Fatalf("HandleExecution() error = %v", err)
	}

	stored := fixture.reminders.get(reminder.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("Status = %s, want FAILED", stored.Status)
	}
	if stored.SkipReason == nil || !strings.Contains(*stored.SkipReason, "4/3") {
		t.Fatalf("SkipReason = %v, want attempt citation", stored.SkipReason)
	}

	published := fixture.publisher.published()
	if len(published) != 1 || published[0].Type != events.EventFailed {
		t.Fatalf("published = %+v, want one failed event", published)
	}
}

func TestHandleExecutionAwaitingCallbackLeavesInProgress(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusInProgress, domain.ChannelVoice)
	fixture := newOutcomeFixture(t, reminder)

	result := &ExecutionResult{Disposition: dispositionAwaitingCallback}
	if err := fixture.handler.HandleExecution(context.Background(), reminder, domain.DefaultSettings("user-1"), result); err != nil {
		t.Fatalf("HandleExecution() error = %v", err)
	}

	if got := fixture.reminders.get(reminder.ID).Status; got != domain.StatusInProgress {
		t.Fatalf("Status = %s, want IN_PROGRESS", got)
	}
}

func TestHandleTimeoutRetriesStuckReminder(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusInProgress, domain.ChannelVoice)
	reminder.AttemptCount = 1
	fixture := newOutcomeFixture(t, reminder)

	if err := fixture.handler.HandleTimeout(context.Background(), reminder, domain.DefaultSettings("user-1")); err != nil {
		t.Fatalf("HandleTimeout() error = %v", err)
	}

	stored := fixture.reminders.get(reminder.ID)
	if stored.Status != domain.StatusPending {
		t.Fatalf("Status = %s, want PENDING", stored.Status)
	}
	if stored.CallOutcome == nil || stored.CallOutcome.CustomerResponse != domain.ResponseNoAnswer {
		t.Fatalf("CallOutcome = %+v, want NO_ANSWER", stored.CallOutcome)
	}
}

func TestFailPendingPublishesFailure(t *testing.T) {
	t.Parallel()

	reminder := testReminder(domain.StatusPending, domain.ChannelVoice)
	reminder.AttemptCount = 3
	fixture := newOutcomeFixture(t, reminder)

	reason := "max attempts reached (3/3, VOICE)"
	if err := fixture.handler.FailPending(context.Background(), reminder, reason); err != nil {
		t.Fatalf("FailPending() error = %v", err)
	}

	stored := fixture.reminders.get(reminder.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("Status = %s, want FAILED", stored.Status)
	}
	if stored.SkipReason == nil || !strings.Contains(*stored.SkipReason, "3/3") {
		t.Fatalf("SkipReason = %v, want attempt count citation", stored.SkipReason)
	}

	published := fixture.publisher.published()
	if len(published) != 1 || published[0].Type != events.EventFailed {
		t.Fatalf("published = %+v, want one failed event", published)
	}
}
