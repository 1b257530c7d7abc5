// Package worker runs the background retry poller that drains due
// webhook retry records on an interval with graceful shutdown.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/models"
	"github.com/quotelane/lead_pipeline/internal/notify"
	"github.com/quotelane/lead_pipeline/internal/retry"
	"github.com/quotelane/lead_pipeline/internal/services"
)

// Worker polls the retry queue and reprocesses due records
type Worker struct {
	processor    *retry.Processor
	pollInterval time.Duration
	shutdownChan chan struct{}
}

// Config holds configuration for the worker
type Config struct {
	Processor    *retry.Processor
	PollInterval time.Duration
}

// New creates a worker around a configured retry processor
func New(config Config) *Worker {
	if config.PollInterval == 0 {
		config.PollInterval = 15 * time.Second
	}

	return &Worker{
		processor:    config.Processor,
		pollInterval: config.PollInterval,
		shutdownChan: make(chan struct{}),
	}
}

// Start begins the polling loop with graceful shutdown on SIGINT/SIGTERM
func (w *Worker) Start(ctx context.Context) error {
	logger.Info(ctx, "Starting retry worker", "poll_interval", w.pollInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context cancelled, shutting down gracefully")
			return ctx.Err()

		case <-sigChan:
			logger.Info(ctx, "Received shutdown signal, shutting down gracefully")
			return nil

		case <-w.shutdownChan:
			logger.Info(ctx, "Shutdown requested, shutting down gracefully")
			return nil

		case <-ticker.C:
			claimed, err := w.processor.ProcessDue(ctx)
			if err != nil {
				logger.LogError(ctx, "Error processing due retries", err)
				// Keep polling; the next tick gets a fresh claim
				continue
			}
			if claimed > 0 {
				logger.Info(ctx, "Retry batch processed", "claimed", claimed)
			}
		}
	}
}

// Shutdown signals the worker to stop gracefully
func (w *Worker) Shutdown() {
	close(w.shutdownChan)
}

// RegisterHandlers installs the standard retry handlers on a processor:
// lead reprocessing through the pipeline and outbound notification
// webhook redelivery
func RegisterHandlers(processor *retry.Processor, pipeline *services.LeadPipeline, webhooks notify.WebhookSender) {
	processor.Register(retry.TypeLeadProcessing, LeadReprocessHandler(pipeline))
	processor.Register(retry.TypeNotificationWebhook, WebhookRedeliveryHandler(webhooks))
}

// LeadReprocessHandler re-runs a failed inbound payload through the full
// lead pipeline. The record payload carries the originating platform
// alongside the raw webhook body.
func LeadReprocessHandler(pipeline *services.LeadPipeline) retry.HandlerFunc {
	return func(ctx context.Context, record *models.WebhookRetryRecord) error {
		platform, _ := record.Payload["platform"].(string)
		if platform == "" {
			return fmt.Errorf("retry payload missing platform")
		}

		raw, _ := record.Payload["payload"].(map[string]interface{})
		if raw == nil {
			return fmt.Errorf("retry payload missing webhook body")
		}

		ctx = context.WithValue(ctx, logger.PlatformKey, platform)

		result, err := pipeline.ProcessWebhookPayload(ctx, platform, models.JSONB(raw))
		if err != nil {
			return err
		}
		if !result.Validation.IsValid {
			return fmt.Errorf("payload failed validation: %v", services.DescribeValidationErrors(result.Validation))
		}

		return nil
	}
}

// WebhookRedeliveryHandler redelivers an outbound notification webhook
// to the record's URL
func WebhookRedeliveryHandler(webhooks notify.WebhookSender) retry.HandlerFunc {
	return func(ctx context.Context, record *models.WebhookRetryRecord) error {
		if record.URL == "" {
			return fmt.Errorf("retry record has no delivery URL")
		}
		return webhooks.SendWebhook(ctx, record.URL, map[string]interface{}(record.Payload))
	}
}
