package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/paydue/reminder-engine/internal/domain"
	"github.com/paydue/reminder-engine/internal/events"
	"github.com/paydue/reminder-engine/internal/gatekeeper"
	"github.com/paydue/reminder-engine/internal/provider"
	"github.com/paydue/reminder-engine/internal/repository"
	"github.com/paydue/reminder-engine/internal/verify"
)

type fakeReminderRepo struct {
	mu        sync.Mutex
	reminders map[string]*domain.Reminder
}

func newFakeReminderRepo(reminders ...*domain.Reminder) *fakeReminderRepo {
	repo := &fakeReminderRepo{reminders: make(map[string]*domain.Reminder)}
	for _, r := range reminders {
		copied := *r
		repo.reminders[r.ID] = &copied
	}
	return repo
}

func (f *fakeReminderRepo) get(id string) *domain.Reminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok {
		return nil
	}
	copied := *r
	return &copied
}

func (f *fakeReminderRepo) Create(_ context.Context, r *domain.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *r
	f.reminders[r.ID] = &copied
	return nil
}

func (f *fakeReminderRepo) GetByID(_ context.Context, id string) (*domain.Reminder, error) {
	if r := f.get(id); r != nil {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReminderRepo) List(_ context.Context, params repository.ListParams) ([]domain.Reminder, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Reminder
	for _, r := range f.reminders {
		if params.Status != nil && r.Status != *params.Status {
			continue
		}
		if params.Channel != nil && r.Channel != *params.Channel {
			continue
		}
		if params.InvoiceID != nil && r.InvoiceID != *params.InvoiceID {
			continue
		}
		out = append(out, *r)
	}
	return out, int64(len(out)), nil
}

func (f *fakeReminderRepo) GetDuePending(_ context.Context, cutoff time.Time, limit int) ([]domain.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Reminder
	for _, r := range f.reminders {
		if r.Status == domain.StatusPending && !r.ScheduledDate.After(cutoff) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.Before(out[j].ScheduledDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReminderRepo) GetActiveSameDay(
	_ context.Context,
	invoiceID string,
	dayStart, dayEnd time.Time,
	excludeID string,
) ([]domain.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Reminder
	for _, r := range f.reminders {
		if r.InvoiceID != invoiceID || r.ID == excludeID || r.Status.IsTerminal() {
			continue
		}
		if r.ScheduledDate.Before(dayStart) || !r.ScheduledDate.Before(dayEnd) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeReminderRepo) cas(id string, from, to domain.Status, apply func(*domain.Reminder)) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reminders[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	if apply != nil {
		apply(r)
	}
	return true, nil
}

func (f *fakeReminderRepo) MarkQueuedIfPending(_ context.Context, id string) (bool, error) {
	return f.cas(id, domain.StatusPending, domain.StatusQueued, nil)
}

func (f *fakeReminderRepo) MarkInProgressIfQueued(_ context.Context, id string) (bool, error) {
	return f.cas(id, domain.StatusQueued, domain.StatusInProgress, nil)
}

func (f *fakeReminderRepo) RequeueFromQueued(_ context.Context, id string) (bool, error) {
	return f.cas(id, domain.StatusQueued, domain.StatusPending, nil)
}

func (f *fakeReminderRepo) RecordAttempt(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reminders[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.AttemptCount++
	attemptAt := at
	r.LastAttemptAt = &attemptAt
	return nil
}

func (f *fakeReminderRepo) SetExternalID(_ context.Context, id string, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reminders[id]
	if !ok {
		return domain.ErrNotFound
	}
	ext := externalID
	r.ExternalID = &ext
	return nil
}

func (f *fakeReminderRepo) CloseFromInProgress(_ context.Context, id string, update repository.TerminalUpdate) (bool, error) {
	if !domain.StatusInProgress.CanTransitionTo(update.Status) {
		return false, domain.ErrInvalidTransition
	}
	return f.cas(id, domain.StatusInProgress, update.Status, func(r *domain.Reminder) {
		if update.Outcome != nil {
			outcome := *update.Outcome
			r.CallOutcome = &outcome
		}
		if update.SkipReason != nil {
			reason := *update.SkipReason
			r.SkipReason = &reason
		}
		if update.NextScheduledDate != nil {
			r.ScheduledDate = *update.NextScheduledDate
		}
	})
}

func (f *fakeReminderRepo) FailFromPending(_ context.Context, id string, reason string) (bool, error) {
	return f.cas(id, domain.StatusPending, domain.StatusFailed, func(r *domain.Reminder) {
		skipReason := reason
		r.SkipReason = &skipReason
	})
}

func (f *fakeReminderRepo) CascadeSkipPending(
	_ context.Context,
	invoiceID string,
	excludeID string,
	reason string,
) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var affected int64
	for _, r := range f.reminders {
		if r.InvoiceID != invoiceID || r.ID == excludeID || r.Status != domain.StatusPending {
			continue
		}
		r.Status = domain.StatusSkipped
		skipReason := reason
		r.SkipReason = &skipReason
		affected++
	}
	return affected, nil
}

func (f *fakeReminderRepo) GetStuckInProgress(_ context.Context, cutoff time.Time, limit int) ([]domain.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Reminder
	for _, r := range f.reminders {
		if r.Status != domain.StatusInProgress || r.LastAttemptAt == nil {
			continue
		}
		if r.LastAttemptAt.After(cutoff) {
			continue
		}
		out = append(out, *r)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeSettingsRepo struct {
	settings map[string]domain.ReminderSettings
	err      error
}

func (f *fakeSettingsRepo) GetByUserID(_ context.Context, userID string) (*domain.ReminderSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.settings[userID]; ok {
		copied := s
		return &copied, nil
	}
	defaults := domain.DefaultSettings(userID)
	return &defaults, nil
}

type fakeInvoiceRepo struct {
	mu        sync.Mutex
	invoices  map[string]*domain.Invoice
	refreshed []string
}

func newFakeInvoiceRepo(invoices ...*domain.Invoice) *fakeInvoiceRepo {
	repo := &fakeInvoiceRepo{invoices: make(map[string]*domain.Invoice)}
	for _, inv := range invoices {
		copied := *inv
		repo.invoices[inv.ID] = &copied
	}
	return repo
}

func (f *fakeInvoiceRepo) GetByID(_ context.Context, id string) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *inv
	return &copied, nil
}

func (f *fakeInvoiceRepo) RefreshStatus(_ context.Context, id string, status domain.InvoiceStatus, balance float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invoices[id]
	if !ok {
		return domain.ErrNotFound
	}
	inv.Status = status
	inv.Balance = balance
	f.refreshed = append(f.refreshed, id)
	return nil
}

type fakeProfileRepo struct {
	profiles map[string]*domain.BusinessProfile
}

func (f *fakeProfileRepo) GetByUserID(_ context.Context, userID string) (*domain.BusinessProfile, error) {
	if f.profiles != nil {
		if p, ok := f.profiles[userID]; ok {
			copied := *p
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []domain.DispatchAttempt
}

func (f *fakeAttemptRepo) Create(_ context.Context, a *domain.DispatchAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *a)
	return nil
}

func (f *fakeAttemptRepo) GetByReminderID(_ context.Context, reminderID string) ([]domain.DispatchAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DispatchAttempt
	for _, a := range f.attempts {
		if a.ReminderID == reminderID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeVerifier struct {
	mu     sync.Mutex
	result verify.Result
	calls  int
}

func (f *fakeVerifier) ShouldProceed(_ context.Context, _ string) verify.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeVoiceDispatcher struct {
	mu     sync.Mutex
	result *provider.DispatchResult
	err    error
	phones []string
}

func (f *fakeVoiceDispatcher) Dispatch(_ context.Context, phoneNumber string, _ provider.VoiceContext) (*provider.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phones = append(f.phones, phoneNumber)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeVoiceDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.phones)
}

type fakeSMSDispatcher struct {
	mu       sync.Mutex
	result   *provider.DispatchResult
	err      error
	messages []string
	phones   []string
}

func (f *fakeSMSDispatcher) Send(_ context.Context, phoneNumber string, message string) (*provider.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phones = append(f.phones, phoneNumber)
	f.messages = append(f.messages, message)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeRateLimiter struct {
	mu    sync.Mutex
	waits []string
}

func (f *fakeRateLimiter) Allow(_ context.Context, _ string) (bool, error) { return true, nil }

func (f *fakeRateLimiter) Wait(_ context.Context, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, channel)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.ReminderEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event events.ReminderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() []events.ReminderEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.ReminderEvent, len(f.events))
	copy(out, f.events)
	return out
}

type fakePassLock struct {
	mu       sync.Mutex
	held     bool
	acquired int
	released int
}

func (f *fakePassLock) Acquire(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return false, nil
	}
	f.held = true
	f.acquired++
	return true, nil
}

func (f *fakePassLock) Release(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = false
	f.released++
	return nil
}

type fakeGate struct {
	decision gatekeeper.Decision
	err      error
}

func (f *fakeGate) CanDispatch(_ context.Context, _ *domain.Reminder, _ domain.ReminderSettings) (gatekeeper.Decision, error) {
	if f.err != nil {
		return gatekeeper.Decision{}, f.err
	}
	return f.decision, nil
}

type fakeDispatcherFunc func(ctx context.Context, reminder *domain.Reminder, settings domain.ReminderSettings) (*ExecutionResult, error)

func (f fakeDispatcherFunc) Execute(ctx context.Context, reminder *domain.Reminder, settings domain.ReminderSettings) (*ExecutionResult, error) {
	return f(ctx, reminder, settings)
}
