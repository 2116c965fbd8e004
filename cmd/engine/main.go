package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paydue/reminder-engine/internal/accounting"
	"github.com/paydue/reminder-engine/internal/config"
	"github.com/paydue/reminder-engine/internal/events"
	"github.com/paydue/reminder-engine/internal/gatekeeper"
	"github.com/paydue/reminder-engine/internal/handler"
	"github.com/paydue/reminder-engine/internal/infra/postgresql"
	"github.com/paydue/reminder-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/paydue/reminder-engine/internal/infra/redis"
	"github.com/paydue/reminder-engine/internal/observability"
	"github.com/paydue/reminder-engine/internal/provider"
	"github.com/paydue/reminder-engine/internal/repository"
	"github.com/paydue/reminder-engine/internal/service"
	"github.com/paydue/reminder-engine/internal/transport"
	"github.com/paydue/reminder-engine/internal/verify"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("reminder engine exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	broker, err := events.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	publisher := events.NewRabbitMQPublisher(broker)
	defer publisher.Close()

	metrics := observability.NewMetrics()

	reminderRepo := repository.NewGormReminderRepo(db)
	invoiceRepo := repository.NewGormInvoiceRepo(db)
	settingsRepo := repository.NewGormSettingsRepo(db)
	profileRepo := repository.NewGormProfileRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)

	accountingClient, err := accounting.NewClient(cfg.AccountingAPIURL)
	if err != nil {
		return fmt.Errorf("accounting client init failed: %w", err)
	}
	verifier, err := verify.New(accountingClient, invoiceRepo, logger)
	if err != nil {
		return fmt.Errorf("verifier init failed: %w", err)
	}

	voiceClient, err := provider.NewVoiceClient(cfg.VoiceAPIURL, cfg.VoiceAPIKey)
	if err != nil {
		return fmt.Errorf("voice client init failed: %w", err)
	}
	smsClient, err := provider.NewSMSClient(cfg.SMSAPIURL, cfg.SMSAPIKey)
	if err != nil {
		return fmt.Errorf("sms client init failed: %w", err)
	}

	limiter, err := infraredis.NewDispatchRateLimiter(rdb, cfg.DispatchRatePerSec)
	if err != nil {
		return fmt.Errorf("rate limiter init failed: %w", err)
	}
	passLock, err := infraredis.NewPassLock(rdb, 0)
	if err != nil {
		return fmt.Errorf("pass lock init failed: %w", err)
	}

	gate, err := gatekeeper.New(reminderRepo)
	if err != nil {
		return fmt.Errorf("gatekeeper init failed: %w", err)
	}

	executor, err := service.NewExecutor(
		reminderRepo, invoiceRepo, profileRepo, attemptRepo,
		verifier, voiceClient, smsClient, limiter, metrics, logger,
	)
	if err != nil {
		return fmt.Errorf("executor init failed: %w", err)
	}
	outcomes, err := service.NewOutcomeHandler(reminderRepo, verifier, publisher, metrics, logger)
	if err != nil {
		return fmt.Errorf("outcome handler init failed: %w", err)
	}
	scheduler, err := service.NewScheduler(
		reminderRepo, settingsRepo, gate, executor, outcomes, passLock, metrics, logger,
		service.SchedulerConfig{
			Interval:   time.Duration(cfg.SchedulerInterval) * time.Second,
			BatchLimit: cfg.SchedulerBatchSize,
		},
	)
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	sweeper, err := service.NewSweeper(
		reminderRepo, settingsRepo, outcomes, logger,
		service.SweeperConfig{Interval: time.Duration(cfg.SweepInterval) * time.Second},
	)
	if err != nil {
		return fmt.Errorf("sweeper init failed: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterWebhookRoutes(app, reminderRepo, settingsRepo, outcomes, cfg.WebhookSecret, logger); err != nil {
		return fmt.Errorf("webhook routes init failed: %w", err)
	}
	if err := handler.RegisterReminderRoutes(app, reminderRepo, attemptRepo); err != nil {
		return fmt.Errorf("reminder routes init failed: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		scheduler.Start(groupCtx)
		return nil
	})
	group.Go(func() error {
		sweeper.Start(groupCtx)
		return nil
	})
	group.Go(func() error {
		logger.Info("http server started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("reminder engine stopped")
	return nil
}
