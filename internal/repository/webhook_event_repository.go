package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quotelane/lead_pipeline/internal/models"
)

// WebhookEventRepository persists the intake audit trail: one record per
// webhook request that reached the pipeline, whatever its outcome
type WebhookEventRepository interface {
	// RecordEvent writes one audit record
	RecordEvent(ctx context.Context, event *models.WebhookEvent) error

	// GetRecentEvents returns the most recent audit records
	GetRecentEvents(ctx context.Context, limit int) ([]*models.WebhookEvent, error)

	// CountByOutcome returns audit record counts grouped by outcome since
	// the given time
	CountByOutcome(ctx context.Context, since time.Time) (map[string]int, error)
}

// webhookEventRepository is the concrete implementation of WebhookEventRepository
type webhookEventRepository struct {
	db *sql.DB
}

// NewWebhookEventRepository creates a new WebhookEventRepository instance
func NewWebhookEventRepository(db *sql.DB) WebhookEventRepository {
	return &webhookEventRepository{
		db: db,
	}
}

// RecordEvent writes one audit record
func (r *webhookEventRepository) RecordEvent(ctx context.Context, event *models.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (platform, lead_id, outcome, detail, received_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		event.Platform,
		event.LeadID,
		event.Outcome,
		event.Detail,
		event.ReceivedAt,
	).Scan(&event.ID, &event.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}

	return nil
}

// GetRecentEvents returns the most recent audit records
func (r *webhookEventRepository) GetRecentEvents(ctx context.Context, limit int) ([]*models.WebhookEvent, error) {
	query := `
		SELECT id, platform, lead_id, outcome, detail, received_at, created_at
		FROM webhook_events
		ORDER BY received_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.WebhookEvent, 0, limit)
	for rows.Next() {
		event := &models.WebhookEvent{}
		var leadID, detail sql.NullString

		err := rows.Scan(
			&event.ID,
			&event.Platform,
			&leadID,
			&event.Outcome,
			&detail,
			&event.ReceivedAt,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}

		if leadID.Valid {
			event.LeadID = &leadID.String
		}
		if detail.Valid {
			event.Detail = &detail.String
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}

// CountByOutcome returns audit record counts grouped by outcome since the
// given time
func (r *webhookEventRepository) CountByOutcome(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT outcome, COUNT(*) as count
		FROM webhook_events
		WHERE received_at >= $1
		GROUP BY outcome
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook event counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[outcome] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}
