package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quotelane/lead_pipeline/internal/models"
)

// RetryRepository defines persistence for the webhook retry queue and its
// dead-letter table
type RetryRepository interface {
	// CreateRetry arms a new retry record in PENDING state
	CreateRetry(ctx context.Context, record *models.WebhookRetryRecord) error

	// GetRetryByID retrieves a retry record
	GetRetryByID(ctx context.Context, id int64) (*models.WebhookRetryRecord, error)

	// ClaimDue atomically claims up to limit due PENDING records, marking
	// them RETRYING. Records stuck RETRYING past the staleness threshold
	// (a worker crashed mid-process) are claimed again. Concurrent pollers
	// never claim the same record.
	ClaimDue(ctx context.Context, limit int) ([]*models.WebhookRetryRecord, error)

	// MarkSuccess transitions a claimed record to SUCCESS
	MarkSuccess(ctx context.Context, id int64) error

	// Reschedule re-arms a claimed record as PENDING with an incremented
	// attempt count, the next retry time, and the failure message
	Reschedule(ctx context.Context, id int64, attempts int, nextRetry time.Time, lastError string) error

	// Release returns a claimed record to PENDING without consuming an
	// attempt, pushing next_retry out so the next poll does not
	// immediately re-claim it
	Release(ctx context.Context, id int64, nextRetry time.Time, lastError string) error

	// MoveToDeadLetter transitions an exhausted record to DEAD_LETTER and
	// writes the dead-letter entry in one transaction
	MoveToDeadLetter(ctx context.Context, record *models.WebhookRetryRecord, lastError string) (*models.DeadLetterRecord, error)

	// GetDeadLetterByID retrieves a dead-letter entry
	GetDeadLetterByID(ctx context.Context, id int64) (*models.DeadLetterRecord, error)

	// ListDeadLetters returns unresolved dead-letter entries, newest first
	ListDeadLetters(ctx context.Context, limit int) ([]*models.DeadLetterRecord, error)

	// ResolveDeadLetter records the outcome of a manual retry
	ResolveDeadLetter(ctx context.Context, id int64, resolution models.DeadLetterResolution) error

	// QueueDepth returns retry record counts grouped by status
	QueueDepth(ctx context.Context) (map[string]int, error)
}

// retryRepository is the concrete implementation of RetryRepository
type retryRepository struct {
	db *sql.DB
}

// NewRetryRepository creates a new RetryRepository instance
func NewRetryRepository(db *sql.DB) RetryRepository {
	return &retryRepository{
		db: db,
	}
}

const retryColumns = `
	id, type, payload, url, attempts, max_attempts, next_retry,
	last_error, status, created_at, updated_at
`

// CreateRetry arms a new retry record in PENDING state
func (r *retryRepository) CreateRetry(ctx context.Context, record *models.WebhookRetryRecord) error {
	query := `
		INSERT INTO webhook_retries (
			type, payload, url, attempts, max_attempts, next_retry,
			last_error, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	if record.Status == "" {
		record.Status = models.RetryStatusPending
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		record.Type,
		record.Payload,
		record.URL,
		record.Attempts,
		record.MaxAttempts,
		record.NextRetry,
		record.LastError,
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
	).Scan(&record.ID)

	if err != nil {
		return fmt.Errorf("failed to create retry record: %w", err)
	}

	return nil
}

// GetRetryByID retrieves a retry record
func (r *retryRepository) GetRetryByID(ctx context.Context, id int64) (*models.WebhookRetryRecord, error) {
	query := `SELECT ` + retryColumns + ` FROM webhook_retries WHERE id = $1`

	record, err := scanRetry(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("retry record not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retry record: %w", err)
	}

	return record, nil
}

// retryingStuckAfter is how long a record may sit RETRYING before it is
// considered abandoned by a crashed worker and becomes claimable again
const retryingStuckAfter = 5 * time.Minute

// ClaimDue atomically claims up to limit due PENDING records, marking
// them RETRYING. RETRYING rows untouched for retryingStuckAfter are
// claimed too, so a crash mid-process never strands a record. FOR UPDATE
// SKIP LOCKED keeps concurrent pollers from claiming the same rows.
func (r *retryRepository) ClaimDue(ctx context.Context, limit int) ([]*models.WebhookRetryRecord, error) {
	query := `
		UPDATE webhook_retries
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM webhook_retries
			WHERE (status = $2 AND next_retry <= NOW())
			   OR (status = $1 AND updated_at <= NOW() - ($4 * interval '1 second'))
			ORDER BY next_retry ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + retryColumns

	rows, err := r.db.QueryContext(ctx, query,
		models.RetryStatusRetrying, models.RetryStatusPending, limit, int(retryingStuckAfter.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to claim due retries: %w", err)
	}
	defer rows.Close()

	records := make([]*models.WebhookRetryRecord, 0, limit)
	for rows.Next() {
		record, err := scanRetry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retry record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// MarkSuccess transitions a claimed record to SUCCESS
func (r *retryRepository) MarkSuccess(ctx context.Context, id int64) error {
	return r.updateStatus(ctx, id, models.RetryStatusSuccess, "")
}

// Reschedule re-arms a claimed record as PENDING after a failed attempt
func (r *retryRepository) Reschedule(ctx context.Context, id int64, attempts int, nextRetry time.Time, lastError string) error {
	query := `
		UPDATE webhook_retries
		SET status = $1, attempts = $2, next_retry = $3, last_error = $4, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, query, models.RetryStatusPending, attempts, nextRetry, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to reschedule retry: %w", err)
	}

	return requireRow(result, id)
}

// Release returns a claimed record to PENDING without consuming an
// attempt. The caller supplies the new next_retry; reusing the stale one
// would make the record due again on the very next poll.
func (r *retryRepository) Release(ctx context.Context, id int64, nextRetry time.Time, lastError string) error {
	query := `
		UPDATE webhook_retries
		SET status = $1, next_retry = $2, last_error = COALESCE(NULLIF($3, ''), last_error), updated_at = NOW()
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, models.RetryStatusPending, nextRetry, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to release retry: %w", err)
	}

	return requireRow(result, id)
}

func (r *retryRepository) updateStatus(ctx context.Context, id int64, status models.RetryStatus, lastError string) error {
	query := `
		UPDATE webhook_retries
		SET status = $1, last_error = COALESCE(NULLIF($2, ''), last_error), updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, status, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to update retry status: %w", err)
	}

	return requireRow(result, id)
}

// MoveToDeadLetter transitions an exhausted record to DEAD_LETTER and
// writes the dead-letter entry in one transaction
func (r *retryRepository) MoveToDeadLetter(ctx context.Context, record *models.WebhookRetryRecord, lastError string) (*models.DeadLetterRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE webhook_retries
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, updateQuery, models.RetryStatusDeadLetter, lastError, record.ID); err != nil {
		return nil, fmt.Errorf("failed to mark retry as dead letter: %w", err)
	}

	dead := &models.DeadLetterRecord{
		RetryID:       record.ID,
		Type:          record.Type,
		Payload:       record.Payload,
		URL:           record.URL,
		TotalAttempts: record.Attempts,
		LastError:     lastError,
		FirstFailedAt: record.CreatedAt,
		MovedAt:       time.Now(),
		Resolution:    models.DeadLetterRequiresReview,
	}

	insertQuery := `
		INSERT INTO webhook_dead_letter_queue (
			retry_id, type, payload, url, total_attempts, last_error,
			first_failed_at, moved_at, resolution, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at
	`
	err = tx.QueryRowContext(
		ctx,
		insertQuery,
		dead.RetryID,
		dead.Type,
		dead.Payload,
		dead.URL,
		dead.TotalAttempts,
		dead.LastError,
		dead.FirstFailedAt,
		dead.MovedAt,
		dead.Resolution,
	).Scan(&dead.ID, &dead.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert dead-letter record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dead-letter move: %w", err)
	}

	return dead, nil
}

const deadLetterColumns = `
	id, retry_id, type, payload, url, total_attempts, last_error,
	first_failed_at, moved_at, resolution, created_at
`

// GetDeadLetterByID retrieves a dead-letter entry
func (r *retryRepository) GetDeadLetterByID(ctx context.Context, id int64) (*models.DeadLetterRecord, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM webhook_dead_letter_queue WHERE id = $1`

	dead, err := scanDeadLetter(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dead-letter record not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead-letter record: %w", err)
	}

	return dead, nil
}

// ListDeadLetters returns unresolved dead-letter entries, newest first
func (r *retryRepository) ListDeadLetters(ctx context.Context, limit int) ([]*models.DeadLetterRecord, error) {
	query := `
		SELECT ` + deadLetterColumns + `
		FROM webhook_dead_letter_queue
		WHERE resolution = $1
		ORDER BY moved_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, models.DeadLetterRequiresReview, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead-letter records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.DeadLetterRecord, 0, limit)
	for rows.Next() {
		dead, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead-letter record: %w", err)
		}
		records = append(records, dead)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// ResolveDeadLetter records the outcome of a manual retry
func (r *retryRepository) ResolveDeadLetter(ctx context.Context, id int64, resolution models.DeadLetterResolution) error {
	query := `
		UPDATE webhook_dead_letter_queue
		SET resolution = $1
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, resolution, id)
	if err != nil {
		return fmt.Errorf("failed to resolve dead-letter record: %w", err)
	}

	return requireRow(result, id)
}

// QueueDepth returns retry record counts grouped by status
func (r *retryRepository) QueueDepth(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*) as count
		FROM webhook_retries
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query retry queue depth: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}

func scanRetry(row rowScanner) (*models.WebhookRetryRecord, error) {
	record := &models.WebhookRetryRecord{}
	var url, lastError sql.NullString

	err := row.Scan(
		&record.ID,
		&record.Type,
		&record.Payload,
		&url,
		&record.Attempts,
		&record.MaxAttempts,
		&record.NextRetry,
		&lastError,
		&record.Status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.URL = url.String
	record.LastError = lastError.String

	return record, nil
}

func scanDeadLetter(row rowScanner) (*models.DeadLetterRecord, error) {
	dead := &models.DeadLetterRecord{}
	var url sql.NullString

	err := row.Scan(
		&dead.ID,
		&dead.RetryID,
		&dead.Type,
		&dead.Payload,
		&url,
		&dead.TotalAttempts,
		&dead.LastError,
		&dead.FirstFailedAt,
		&dead.MovedAt,
		&dead.Resolution,
		&dead.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	dead.URL = url.String

	return dead, nil
}

func requireRow(result sql.Result, id int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("record not found: %d", id)
	}
	return nil
}
