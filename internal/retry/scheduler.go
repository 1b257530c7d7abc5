package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/models"
	"github.com/quotelane/lead_pipeline/internal/repository"
)

// Retry record types understood by the processor dispatch table
const (
	// TypeLeadProcessing re-runs a failed inbound webhook payload through
	// the full mapping and persistence pipeline. The payload carries the
	// originating platform.
	TypeLeadProcessing = "lead_processing"

	// TypeNotificationWebhook redelivers an outbound notification webhook
	// to the record's URL
	TypeNotificationWebhook = "notification_webhook"
)

// Scheduler arms retry records for failed webhook processing
type Scheduler struct {
	repo   repository.RetryRepository
	policy Policy
}

// NewScheduler creates a Scheduler with the given backoff policy
func NewScheduler(repo repository.RetryRepository, policy Policy) *Scheduler {
	return &Scheduler{
		repo:   repo,
		policy: policy,
	}
}

// ScheduleRetry creates a PENDING retry record whose first attempt is due
// after the backoff delay for attempt one. The failure that triggered
// scheduling is preserved as last_error.
func (s *Scheduler) ScheduleRetry(ctx context.Context, retryType string, payload models.JSONB, url string, cause error) (*models.WebhookRetryRecord, error) {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}

	record := &models.WebhookRetryRecord{
		Type:        retryType,
		Payload:     payload,
		URL:         url,
		Attempts:    0,
		MaxAttempts: s.policy.MaxAttempts,
		NextRetry:   time.Now().Add(s.policy.Delay(1)),
		LastError:   lastError,
		Status:      models.RetryStatusPending,
	}

	if err := s.repo.CreateRetry(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to schedule retry: %w", err)
	}

	logger.Info(ctx, "Retry scheduled",
		"retry_id", record.ID,
		"type", retryType,
		"next_retry", record.NextRetry,
		"max_attempts", record.MaxAttempts,
	)

	return record, nil
}
