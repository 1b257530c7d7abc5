package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quotelane/lead_pipeline/internal/config"
	"github.com/quotelane/lead_pipeline/internal/database"
	"github.com/quotelane/lead_pipeline/internal/handlers"
	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/notify"
	"github.com/quotelane/lead_pipeline/internal/ratelimit"
	"github.com/quotelane/lead_pipeline/internal/repository"
	"github.com/quotelane/lead_pipeline/internal/retry"
	"github.com/quotelane/lead_pipeline/internal/security"
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

	logger.Info(ctx, "API server starting",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"signature_verification", cfg.Webhook.VerifySignature,
		"rate_limit_window", cfg.RateLimit.Window,
	)

	// Initialize database connection
	db, err := database.InitFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger.Info(ctx, "Database connection established")

	// Run database migrations
	if err := database.RunMigrations(db, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	logger.Info(ctx, "Database migrations completed")

	// Initialize repositories
	leadRepo := repository.NewLeadRepository(db.DB)
	retryRepo := repository.NewRetryRepository(db.DB)
	eventRepo := repository.NewWebhookEventRepository(db.DB)
	settingsRepo := repository.NewSettingsRepository(db.DB)
	agentRepo := repository.NewAgentRepository(db.DB)
	notificationRepo := repository.NewNotificationRepository(db.DB)

	// Per-platform rate limiters with a breach log hook
	limiters := ratelimit.NewRegistry(
		cfg.RateLimit.Window,
		cfg.RateLimit.Budgets,
		cfg.RateLimit.Budget(config.PlatformGeneric),
		ratelimit.WithLimitCallback(func(key string, res ratelimit.Result) {
			logger.Warn(ctx, "Rate limit breached",
				"key", key,
				"limit", res.Limit,
				"total_requests", res.TotalRequests,
			)
		}),
	)
	limiters.Start(ctx, config.Platforms())

	validator := security.NewValidator(limiters)

	// Notification sinks. Email is optional; without a sender address the
	// email channel reports a configuration error per delivery instead.
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

	// Retry wiring: the API schedules retries and serves manual
	// dead-letter replays; the scheduled drain runs in the worker binary
	policy := retry.PolicyFromConfig(cfg.Retry)
	scheduler := retry.NewScheduler(retryRepo, policy)
	processor := retry.NewProcessor(retryRepo, policy, retry.DefaultBatchSize)

	notifier := services.NewNotificationService(emailSender, nil, webhookSender, notificationRepo).
		WithRedelivery(scheduler)
	pipeline := services.NewLeadPipeline(leadRepo, agentRepo, settingsRepo, notifier)
	worker.RegisterHandlers(processor, pipeline, webhookSender)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(cfg, validator, pipeline, eventRepo, scheduler)
	statsHandler := handlers.NewStatsHandler(db, leadRepo, retryRepo, eventRepo)
	deadLetterHandler := handlers.NewDeadLetterHandler(retryRepo, processor)

	router := handlers.NewRouter(webhookHandler, statsHandler, deadLetterHandler)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "address", addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Fatalf("Server error: %v", err)

	case sig := <-sigChan:
		logger.Info(ctx, "Received shutdown signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "Server shutdown error", "error", err.Error())
			server.Close()
		}

		logger.Info(ctx, "Server shutdown complete")
	}
}
