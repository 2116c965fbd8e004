package repository

import (
	"context"
	"errors"
	"time"

	"github.com/paydue/reminder-engine/internal/domain"
	"gorm.io/gorm"
)

type ListParams struct {
	Status    *domain.Status
	Channel   *domain.Channel
	InvoiceID *string
	Page      int
	PageSize  int
}

// TerminalUpdate carries the fields written when a reminder leaves
// IN_PROGRESS.
type TerminalUpdate struct {
	Status     domain.Status
	Outcome    *domain.CallOutcome
	SkipReason *string
	// NextScheduledDate is set when Status is PENDING (retry loop-back).
	NextScheduledDate *time.Time
}

type ReminderRepository interface {
	Create(ctx context.Context, r *domain.Reminder) error
	GetByID(ctx context.Context, id string) (*domain.Reminder, error)
	List(ctx context.Context, params ListParams) ([]domain.Reminder, int64, error)

	// GetDuePending returns PENDING reminders scheduled at or before the cutoff,
	// oldest-due first.
	GetDuePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Reminder, error)

	// GetActiveSameDay returns non-terminal reminders for the invoice whose
	// scheduled date falls inside [dayStart, dayEnd), excluding excludeID.
	GetActiveSameDay(ctx context.Context, invoiceID string, dayStart, dayEnd time.Time, excludeID string) ([]domain.Reminder, error)

	// MarkQueuedIfPending performs the PENDING -> QUEUED compare-and-swap.
	// Returns false when the reminder was no longer pending.
	MarkQueuedIfPending(ctx context.Context, id string) (bool, error)

	// MarkInProgressIfQueued performs the QUEUED -> IN_PROGRESS compare-and-swap.
	MarkInProgressIfQueued(ctx context.Context, id string) (bool, error)

	// RequeueFromQueued returns a queued reminder to PENDING (policy rejection
	// discovered after the queue mark; no attempt consumed).
	RequeueFromQueued(ctx context.Context, id string) (bool, error)

	// RecordAttempt increments the attempt counter and stamps the attempt time.
	RecordAttempt(ctx context.Context, id string, at time.Time) error

	// SetExternalID stores the provider-assigned call/message id.
	SetExternalID(ctx context.Context, id string, externalID string) error

	// CloseFromInProgress applies a terminal or retry transition guarded on the
	// reminder still being IN_PROGRESS. Whichever of the webhook and the
	// timeout sweep runs second observes false and must treat it as a no-op.
	CloseFromInProgress(ctx context.Context, id string, update TerminalUpdate) (bool, error)

	// FailFromPending terminates a pending reminder (exhausted attempts found
	// at gatekeeper time, or a processing error before dispatch).
	FailFromPending(ctx context.Context, id string, reason string) (bool, error)

	// CascadeSkipPending flips every other PENDING reminder of the invoice to
	// SKIPPED with the shared reason. Returns the number of rows affected.
	CascadeSkipPending(ctx context.Context, invoiceID string, excludeID string, reason string) (int64, error)

	// GetStuckInProgress returns reminders sitting IN_PROGRESS since before the
	// cutoff with no completion signal.
	GetStuckInProgress(ctx context.Context, cutoff time.Time, limit int) ([]domain.Reminder, error)
}

type GormReminderRepo struct {
	db *gorm.DB
}

func NewGormReminderRepo(db *gorm.DB) *GormReminderRepo {
	return &GormReminderRepo{db: db}
}

func (r *GormReminderRepo) Create(ctx context.Context, reminder *domain.Reminder) error {
	model := reminderModelFromDomain(reminder)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if reminder != nil {
		*reminder = *reminderModelToDomain(model)
	}
	return nil
}

func (r *GormReminderRepo) GetByID(ctx context.Context, id string) (*domain.Reminder, error) {
	var model ReminderModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reminderModelToDomain(&model), nil
}

func (r *GormReminderRepo) List(ctx context.Context, params ListParams) ([]domain.Reminder, int64, error) {
	query := r.db.WithContext(ctx).Model(&ReminderModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *params.InvoiceID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []ReminderModel
	err := query.
		Order("scheduled_date DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	reminders := make([]domain.Reminder, 0, len(models))
	for i := range models {
		reminders = append(reminders, *reminderModelToDomain(&models[i]))
	}

	return reminders, total, nil
}

func (r *GormReminderRepo) GetDuePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Reminder, error) {
	var models []ReminderModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_date <= ?", domain.StatusPending, cutoff).
		Order("scheduled_date ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	reminders := make([]domain.Reminder, 0, len(models))
	for i := range models {
		reminders = append(reminders, *reminderModelToDomain(&models[i]))
	}

	return reminders, nil
}

var nonTerminalStatuses = []domain.Status{
	domain.StatusPending,
	domain.StatusQueued,
	domain.StatusInProgress,
}

func (r *GormReminderRepo) GetActiveSameDay(
	ctx context.Context,
	invoiceID string,
	dayStart, dayEnd time.Time,
	excludeID string,
) ([]domain.Reminder, error) {
	query := r.db.WithContext(ctx).
		Where("invoice_id = ? AND status IN ?", invoiceID, nonTerminalStatuses).
		Where("scheduled_date >= ? AND scheduled_date < ?", dayStart, dayEnd)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var models []ReminderModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	reminders := make([]domain.Reminder, 0, len(models))
	for i := range models {
		reminders = append(reminders, *reminderModelToDomain(&models[i]))
	}

	return reminders, nil
}

func (r *GormReminderRepo) MarkQueuedIfPending(ctx context.Context, id string) (bool, error) {
	return r.casStatus(ctx, id, domain.StatusPending, domain.StatusQueued, nil)
}

func (r *GormReminderRepo) MarkInProgressIfQueued(ctx context.Context, id string) (bool, error) {
	return r.casStatus(ctx, id, domain.StatusQueued, domain.StatusInProgress, nil)
}

func (r *GormReminderRepo) RequeueFromQueued(ctx context.Context, id string) (bool, error) {
	return r.casStatus(ctx, id, domain.StatusQueued, domain.StatusPending, nil)
}

func (r *GormReminderRepo) casStatus(
	ctx context.Context,
	id string,
	from, to domain.Status,
	extra map[string]any,
) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormReminderRepo) RecordAttempt(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"last_attempt_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormReminderRepo) SetExternalID(ctx context.Context, id string, externalID string) error {
	return r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("id = ?", id).
		Update("external_id", externalID).Error
}

func (r *GormReminderRepo) CloseFromInProgress(ctx context.Context, id string, update TerminalUpdate) (bool, error) {
	if !domain.StatusInProgress.CanTransitionTo(update.Status) {
		return false, domain.ErrInvalidTransition
	}

	extra := map[string]any{}
	if update.SkipReason != nil {
		extra["skip_reason"] = *update.SkipReason
	}
	if update.NextScheduledDate != nil {
		extra["scheduled_date"] = *update.NextScheduledDate
	}
	if update.Outcome != nil {
		extra["outcome_connected"] = update.Outcome.Connected
		extra["outcome_duration"] = update.Outcome.DurationSeconds
		extra["outcome_response"] = update.Outcome.CustomerResponse
		extra["outcome_notes"] = update.Outcome.Notes
		extra["outcome_provider"] = update.Outcome.ProviderID
	}

	return r.casStatus(ctx, id, domain.StatusInProgress, update.Status, extra)
}

func (r *GormReminderRepo) FailFromPending(ctx context.Context, id string, reason string) (bool, error) {
	return r.casStatus(ctx, id, domain.StatusPending, domain.StatusFailed, map[string]any{
		"skip_reason": reason,
	})
}

func (r *GormReminderRepo) CascadeSkipPending(
	ctx context.Context,
	invoiceID string,
	excludeID string,
	reason string,
) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&ReminderModel{}).
		Where("invoice_id = ? AND status = ?", invoiceID, domain.StatusPending)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	result := query.Updates(map[string]any{
		"status":      domain.StatusSkipped,
		"skip_reason": reason,
	})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormReminderRepo) GetStuckInProgress(ctx context.Context, cutoff time.Time, limit int) ([]domain.Reminder, error) {
	var models []ReminderModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_attempt_at IS NOT NULL AND last_attempt_at <= ?", domain.StatusInProgress, cutoff).
		Order("last_attempt_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	reminders := make([]domain.Reminder, 0, len(models))
	for i := range models {
		reminders = append(reminders, *reminderModelToDomain(&models[i]))
	}

	return reminders, nil
}
