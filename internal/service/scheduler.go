package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paydue/reminder-engine/internal/domain"
	"github.com/paydue/reminder-engine/internal/gatekeeper"
	"github.com/paydue/reminder-engine/internal/observability"
	"github.com/paydue/reminder-engine/internal/repository"
)

const (
	defaultSchedulerInterval = time.Minute
	defaultBatchLimit        = 100

	// errorRateAlarmThreshold is the batch error fraction above which a pass
	// raises an alarm instead of silently degrading.
	errorRateAlarmThreshold = 0.2
)

// PassLocker serializes scheduler passes across engine instances.
type PassLocker interface {
	Acquire(ctx context.Context, owner string) (bool, error)
	Release(ctx context.Context, owner string) error
}

// DispatchGate runs the eligibility predicates before a dispatch.
type DispatchGate interface {
	CanDispatch(ctx context.Context, reminder *domain.Reminder, settings domain.ReminderSettings) (gatekeeper.Decision, error)
}

// SchedulerConfig tunes the tick loop.
type SchedulerConfig struct {
	Interval   time.Duration
	BatchLimit int
}

// Scheduler drives the dispatch pipeline: on every tick it claims due
// reminders one by one and walks each through gatekeeper, executor and
// outcome handling. Reminders inside a pass are processed sequentially so
// duplicate and cascade checks observe each other's writes.
type Scheduler struct {
	reminders  repository.ReminderRepository
	settings   repository.SettingsRepository
	gate       DispatchGate
	dispatcher Dispatcher
	outcomes   *OutcomeHandler
	lock       PassLocker
	metrics    *observability.Metrics
	logger     *zap.Logger
	interval   time.Duration
	batchLimit int
	now        func() time.Time
}

func NewScheduler(
	reminders repository.ReminderRepository,
	settings repository.SettingsRepository,
	gate DispatchGate,
	dispatcher Dispatcher,
	outcomes *OutcomeHandler,
	lock PassLocker,
	metrics *observability.Metrics,
	logger *zap.Logger,
	cfg SchedulerConfig,
) (*Scheduler, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder repository is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("dispatch gate is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if outcomes == nil {
		return nil, fmt.Errorf("outcome handler is required")
	}
	if lock == nil {
		return nil, fmt.Errorf("pass lock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSchedulerInterval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultBatchLimit
	}

	return &Scheduler{
		reminders:  reminders,
		settings:   settings,
		gate:       gate,
		dispatcher: dispatcher,
		outcomes:   outcomes,
		lock:       lock,
		metrics:    metrics,
		logger:     logger,
		interval:   cfg.Interval,
		batchLimit: cfg.BatchLimit,
		now:        time.Now,
	}, nil
}

// Start runs the tick loop until the context is cancelled. A pass runs
// immediately on start so a restarted engine does not wait a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("batchLimit", s.batchLimit),
	)

	if err := s.RunPass(ctx); err != nil {
		s.logger.Error("scheduler pass failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunPass(ctx); err != nil {
				s.logger.Error("scheduler pass failed", zap.Error(err))
			}
		}
	}
}

// RunPass executes a single scheduling pass under the distributed pass lock.
// When another instance holds the lock the tick is skipped, never queued.
func (s *Scheduler) RunPass(ctx context.Context) error {
	owner := uuid.NewString()
	acquired, err := s.lock.Acquire(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to acquire pass lock: %w", err)
	}
	if !acquired {
		s.logger.Debug("another scheduler pass is in flight, skipping tick")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), owner); err != nil {
			s.logger.Warn("failed to release pass lock", zap.Error(err))
		}
	}()

	// The lock owner doubles as the pass correlation id.
	ctx = observability.WithCorrelationID(ctx, owner)
	logger := observability.WithContextLogger(s.logger, ctx)

	started := s.now()
	due, err := s.reminders.GetDuePending(ctx, endOfDayUTC(started), s.batchLimit)
	if err != nil {
		return fmt.Errorf("failed to load due reminders: %w", err)
	}
	if len(due) == 0 {
		s.metrics.SetBatchErrorRate(0)
		return nil
	}

	errored := 0
	for i := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reminder := &due[i]
		if err := s.processOne(ctx, reminder); err != nil {
			errored++
			logger.Error("failed to process reminder",
				zap.String("reminderId", reminder.ID),
				zap.String("invoiceId", reminder.InvoiceID),
				zap.Error(err),
			)
		}
	}

	errorRate := float64(errored) / float64(len(due))
	s.metrics.SetBatchErrorRate(errorRate)
	if errorRate > errorRateAlarmThreshold {
		logger.Warn("scheduler batch error rate above threshold",
			zap.Float64("errorRate", errorRate),
			zap.Float64("threshold", errorRateAlarmThreshold),
			zap.Int("batchSize", len(due)),
		)
	}

	logger.Info("scheduler pass finished",
		zap.Int("processed", len(due)),
		zap.Int("errored", errored),
		zap.Duration("took", s.now().Sub(started)),
	)
	return nil
}

// processOne walks one reminder through claim, policy check, dispatch and
// outcome handling. Errors are isolated per reminder; a bad row never aborts
// the pass.
func (s *Scheduler) processOne(ctx context.Context, reminder *domain.Reminder) error {
	userSettings, err := s.settings.GetByUserID(ctx, reminder.UserID)
	if err != nil {
		return fmt.Errorf("failed to load settings for user %s: %w", reminder.UserID, err)
	}

	claimed, err := s.reminders.MarkQueuedIfPending(ctx, reminder.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another writer moved it since the batch query.
		return nil
	}
	reminder.Status = domain.StatusQueued

	decision, err := s.gate.CanDispatch(ctx, reminder, *userSettings)
	if err != nil {
		if _, requeueErr := s.reminders.RequeueFromQueued(ctx, reminder.ID); requeueErr != nil {
			s.logger.Error("failed to requeue reminder after gate error",
				zap.String("reminderId", reminder.ID),
				zap.Error(requeueErr),
			)
		}
		return err
	}
	if !decision.OK {
		if _, err := s.reminders.RequeueFromQueued(ctx, reminder.ID); err != nil {
			return err
		}
		reminder.Status = domain.StatusPending

		if decision.Exhausted {
			return s.outcomes.FailPending(ctx, reminder, decision.Reason)
		}

		s.logger.Debug("dispatch rejected by policy",
			zap.String("reminderId", reminder.ID),
			zap.String("reason", decision.Reason),
		)
		return nil
	}

	inProgress, err := s.reminders.MarkInProgressIfQueued(ctx, reminder.ID)
	if err != nil {
		return err
	}
	if !inProgress {
		return nil
	}
	reminder.Status = domain.StatusInProgress

	result, err := s.dispatcher.Execute(ctx, reminder, *userSettings)
	if err != nil {
		reason := fmt.Sprintf("dispatch error: %v", err)
		if failErr := s.outcomes.fail(ctx, reminder, nil, reason); failErr != nil {
			s.logger.Error("failed to close errored reminder",
				zap.String("reminderId", reminder.ID),
				zap.Error(failErr),
			)
		}
		return err
	}

	return s.outcomes.HandleExecution(ctx, reminder, *userSettings, result)
}

// endOfDayUTC returns the last instant considered "due today": anything
// scheduled before the next UTC midnight.
func endOfDayUTC(now time.Time) time.Time {
	t := now.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, 1).
		Add(-time.Nanosecond)
}
