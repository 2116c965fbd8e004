package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paydue/reminder-engine/internal/repository"
)

const (
	defaultSweepInterval = time.Minute
	// defaultInProgressTimeout bounds how long a dispatched reminder may wait
	// for its completion callback before the sweep reclaims it.
	defaultInProgressTimeout = 10 * time.Minute
	defaultSweepLimit        = 100
)

// SweeperConfig tunes the timeout sweep.
type SweeperConfig struct {
	Interval   time.Duration
	Timeout    time.Duration
	BatchLimit int
}

// Sweeper recovers reminders stuck IN_PROGRESS: calls the provider accepted
// but never reported back on. Each one is treated as an unanswered attempt
// and fed through the normal retry machinery.
type Sweeper struct {
	reminders  repository.ReminderRepository
	settings   repository.SettingsRepository
	outcomes   *OutcomeHandler
	logger     *zap.Logger
	interval   time.Duration
	timeout    time.Duration
	batchLimit int
	now        func() time.Time
}

func NewSweeper(
	reminders repository.ReminderRepository,
	settings repository.SettingsRepository,
	outcomes *OutcomeHandler,
	logger *zap.Logger,
	cfg SweeperConfig,
) (*Sweeper, error) {
	if reminders == nil {
		return nil, fmt.Errorf("reminder repository is required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings repository is required")
	}
	if outcomes == nil {
		return nil, fmt.Errorf("outcome handler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultInProgressTimeout
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultSweepLimit
	}

	return &Sweeper{
		reminders:  reminders,
		settings:   settings,
		outcomes:   outcomes,
		logger:     logger,
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		batchLimit: cfg.BatchLimit,
		now:        time.Now,
	}, nil
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("timeout sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("timeout", s.timeout),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("timeout sweeper stopped")
			return
		case <-ticker.C:
			if err := s.RunSweep(ctx); err != nil {
				s.logger.Error("timeout sweep failed", zap.Error(err))
			}
		}
	}
}

// RunSweep performs a single pass over stuck reminders.
func (s *Sweeper) RunSweep(ctx context.Context) error {
	cutoff := s.now().Add(-s.timeout)
	stuck, err := s.reminders.GetStuckInProgress(ctx, cutoff, s.batchLimit)
	if err != nil {
		return fmt.Errorf("failed to load stuck reminders: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}

	recovered := 0
	for i := range stuck {
		reminder := &stuck[i]

		userSettings, err := s.settings.GetByUserID(ctx, reminder.UserID)
		if err != nil {
			s.logger.Error("failed to load settings for stuck reminder",
				zap.String("reminderId", reminder.ID),
				zap.Error(err),
			)
			continue
		}

		if err := s.outcomes.HandleTimeout(ctx, reminder, *userSettings); err != nil {
			s.logger.Error("failed to recover stuck reminder",
				zap.String("reminderId", reminder.ID),
				zap.Error(err),
			)
			continue
		}
		recovered++
	}

	s.logger.Info("timeout sweep finished",
		zap.Int("stuck", len(stuck)),
		zap.Int("recovered", recovered),
	)
	return nil
}
