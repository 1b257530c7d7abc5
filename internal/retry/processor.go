package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/models"
	"github.com/quotelane/lead_pipeline/internal/repository"
)

// DefaultBatchSize caps how many due records one processing pass claims
const DefaultBatchSize = 10

// HandlerFunc reprocesses one claimed retry record. Returning nil marks
// the record SUCCESS; any returned error is a failed reprocess attempt
// and consumes one unit of the record's budget. A panic inside a handler
// is an unexpected fault, not a verdict on the payload: the record is
// released back to PENDING with backoff and its budget is left intact.
type HandlerFunc func(ctx context.Context, record *models.WebhookRetryRecord) error

// Processor drains due retry records, dispatching each to the handler
// registered for its type
type Processor struct {
	repo      repository.RetryRepository
	policy    Policy
	batchSize int
	handlers  map[string]HandlerFunc
}

// NewProcessor creates a Processor with an empty dispatch table
func NewProcessor(repo repository.RetryRepository, policy Policy, batchSize int) *Processor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Processor{
		repo:      repo,
		policy:    policy,
		batchSize: batchSize,
		handlers:  make(map[string]HandlerFunc),
	}
}

// Register installs the handler for a retry record type
func (p *Processor) Register(retryType string, handler HandlerFunc) {
	p.handlers[retryType] = handler
}

// ProcessDue claims up to one batch of due records and reprocesses them.
// Returns the number of records claimed; individual record failures are
// handled per-record and never abort the batch.
func (p *Processor) ProcessDue(ctx context.Context) (int, error) {
	records, err := p.repo.ClaimDue(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim due retries: %w", err)
	}

	for _, record := range records {
		p.processRecord(ctx, record)
	}

	return len(records), nil
}

// processRecord runs one claimed record through its handler and applies
// the outcome transition
func (p *Processor) processRecord(ctx context.Context, record *models.WebhookRetryRecord) {
	ctx = context.WithValue(ctx, logger.CorrelationIDKey, fmt.Sprintf("retry-%d", record.ID))

	logger.Info(ctx, "Reprocessing retry record",
		"retry_id", record.ID,
		"type", record.Type,
		"attempt", record.Attempts+1,
		"max_attempts", record.MaxAttempts,
	)

	handler, ok := p.handlers[record.Type]
	if !ok {
		p.consumeAttempt(ctx, record, fmt.Errorf("no handler registered for type %q", record.Type))
		return
	}

	err := p.runHandler(ctx, handler, record)
	if err == nil {
		if markErr := p.repo.MarkSuccess(ctx, record.ID); markErr != nil {
			logger.LogError(ctx, "Failed to mark retry as succeeded", markErr, "retry_id", record.ID)
			return
		}
		logger.Info(ctx, "Retry succeeded", "retry_id", record.ID, "attempts_used", record.Attempts+1)
		return
	}

	var panicked *handlerPanicError
	if errors.As(err, &panicked) {
		// An unexpected fault, not a reprocess verdict: re-arm without
		// consuming the attempt, pushed out by the usual backoff so the
		// next poll does not immediately re-claim the record
		nextRetry := time.Now().Add(p.policy.Delay(record.Attempts + 1))
		logger.Warn(ctx, "Handler panicked during reprocessing, releasing record",
			"retry_id", record.ID, "error", err.Error())
		if relErr := p.repo.Release(ctx, record.ID, nextRetry, err.Error()); relErr != nil {
			logger.LogError(ctx, "Failed to release retry record", relErr, "retry_id", record.ID)
		}
		return
	}

	p.consumeAttempt(ctx, record, err)
}

// runHandler invokes the handler, converting a panic into a
// handlerPanicError so the caller can tell unexpected faults apart from
// ordinary reprocess failures
func (p *Processor) runHandler(ctx context.Context, handler HandlerFunc, record *models.WebhookRetryRecord) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &handlerPanicError{value: rec}
		}
	}()
	return handler(ctx, record)
}

type handlerPanicError struct {
	value interface{}
}

func (e *handlerPanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}

// consumeAttempt increments the attempt count and either re-arms the
// record or moves it to the dead-letter queue when the budget is gone
func (p *Processor) consumeAttempt(ctx context.Context, record *models.WebhookRetryRecord, cause error) {
	record.Attempts++

	if record.Attempts >= record.MaxAttempts {
		dead, err := p.repo.MoveToDeadLetter(ctx, record, cause.Error())
		if err != nil {
			logger.LogError(ctx, "Failed to move retry to dead-letter queue", err, "retry_id", record.ID)
			return
		}
		logger.Critical(ctx, "Retry budget exhausted, payload moved to dead-letter queue",
			"retry_id", record.ID,
			"dead_letter_id", dead.ID,
			"type", record.Type,
			"total_attempts", record.Attempts,
			"last_error", cause.Error(),
		)
		return
	}

	nextRetry := time.Now().Add(p.policy.Delay(record.Attempts + 1))
	if err := p.repo.Reschedule(ctx, record.ID, record.Attempts, nextRetry, cause.Error()); err != nil {
		logger.LogError(ctx, "Failed to reschedule retry", err, "retry_id", record.ID)
		return
	}

	logger.Info(ctx, "Retry attempt failed, rescheduled",
		"retry_id", record.ID,
		"attempts", record.Attempts,
		"next_retry", nextRetry,
		"error", cause.Error(),
	)
}

// RetryDeadLetter runs one dead-lettered payload through its handler
// immediately, outside the scheduled flow. Success marks the entry
// MANUALLY_RESOLVED; failure leaves it requiring review and returns the
// handler error.
func (p *Processor) RetryDeadLetter(ctx context.Context, deadLetterID int64) error {
	dead, err := p.repo.GetDeadLetterByID(ctx, deadLetterID)
	if err != nil {
		return err
	}

	handler, ok := p.handlers[dead.Type]
	if !ok {
		return fmt.Errorf("no handler registered for type %q", dead.Type)
	}

	record := &models.WebhookRetryRecord{
		ID:          dead.RetryID,
		Type:        dead.Type,
		Payload:     dead.Payload,
		URL:         dead.URL,
		Attempts:    dead.TotalAttempts,
		MaxAttempts: dead.TotalAttempts,
		Status:      models.RetryStatusDeadLetter,
	}

	if err := handler(ctx, record); err != nil {
		logger.Warn(ctx, "Manual dead-letter retry failed",
			"dead_letter_id", deadLetterID, "error", err.Error())
		return fmt.Errorf("manual retry failed: %w", err)
	}

	if err := p.repo.ResolveDeadLetter(ctx, deadLetterID, models.DeadLetterManuallyResolved); err != nil {
		return fmt.Errorf("manual retry succeeded but resolution update failed: %w", err)
	}

	logger.Info(ctx, "Dead-letter entry manually resolved", "dead_letter_id", deadLetterID)
	return nil
}
