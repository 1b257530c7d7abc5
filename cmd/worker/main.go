package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quotelane/lead_pipeline/internal/config"
	"github.com/quotelane/lead_pipeline/internal/database"
	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/notify"
	"github.com/quotelane/lead_pipeline/internal/repository"
	"github.com/quotelane/lead_pipeline/internal/retry"
	"github.com/quotelane/lead_pipeline/internal/services"
	"github.com/quotelane/lead_pipeline/internal/worker"
)

func main() {
	// Initialize structured logger
	logger.Init()
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Info(ctx, "Retry worker starting",
		"poll_interval", cfg.Worker.PollInterval,
		"max_retry_attempts", cfg.Retry.MaxAttempts,
		"base_delay", cfg.Retry.BaseDelay,
		"max_delay", cfg.Retry.MaxDelay,
	)

	// Initialize database connection
	db, err := database.InitFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger.Info(ctx, "Database connection established")

	// Initialize repositories
	leadRepo := repository.NewLeadRepository(db.DB)
	retryRepo := repository.NewRetryRepository(db.DB)
	settingsRepo := repository.NewSettingsRepository(db.DB)
	agentRepo := repository.NewAgentRepository(db.DB)
	notificationRepo := repository.NewNotificationRepository(db.DB)

	// Notification sinks, mirroring the API wiring so a reprocessed lead
	// fans out exactly like a live one
	var emailSender notify.EmailSender
	if cfg.Notify.EmailFrom != "" {
		sender, err := notify.NewSESSender(ctx, cfg.Notify.AWSRegion, cfg.Notify.EmailFrom)
		if err != nil {
			logger.Warn(ctx, "SES sender unavailable, email channel disabled", "error", err.Error())
		} else {
			emailSender = sender
		}
	}
	webhookSender := notify.NewHTTPWebhookSender(cfg.Notify.HTTPTimeout, cfg.Webhook.Secret(config.PlatformGeneric))

	policy := retry.PolicyFromConfig(cfg.Retry)
	scheduler := retry.NewScheduler(retryRepo, policy)

	notifier := services.NewNotificationService(emailSender, nil, webhookSender, notificationRepo).
		WithRedelivery(scheduler)
	pipeline := services.NewLeadPipeline(leadRepo, agentRepo, settingsRepo, notifier)

	// Retry processor with the standard handlers
	processor := retry.NewProcessor(retryRepo, policy, retry.DefaultBatchSize)
	worker.RegisterHandlers(processor, pipeline, webhookSender)

	w := worker.New(worker.Config{
		Processor:    processor,
		PollInterval: cfg.Worker.PollInterval,
	})

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start worker in a goroutine
	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- w.Start(workerCtx)
	}()

	logger.Info(ctx, "Worker started successfully")

	// Wait for shutdown signal or worker error
	select {
	case err := <-workerErrors:
		if err != nil && err != context.Canceled {
			logger.Error(ctx, "Worker error", "error", err.Error())
		}

	case sig := <-sigChan:
		logger.Info(ctx, "Received shutdown signal", "signal", sig.String())

		cancel()

		shutdownTimeout := time.NewTimer(30 * time.Second)
		defer shutdownTimeout.Stop()

		select {
		case <-workerErrors:
			logger.Info(ctx, "Worker stopped gracefully")
		case <-shutdownTimeout.C:
			logger.Warn(ctx, "Worker shutdown timeout exceeded, forcing exit")
		}
	}

	logger.Info(ctx, "Worker shutdown complete")
}
