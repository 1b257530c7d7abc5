package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quotelane/lead_pipeline/internal/models"
)

// NotificationRepository persists in-app notifications for the CRM UI.
// It satisfies the notification service's in-app sink.
type NotificationRepository interface {
	// SaveNotification writes one in-app notification
	SaveNotification(ctx context.Context, leadID string, event models.NotificationEvent, title, body string) error

	// MarkRead flags a notification as read
	MarkRead(ctx context.Context, id int64) error
}

// notificationRepository is the concrete implementation of NotificationRepository
type notificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a new NotificationRepository instance
func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{
		db: db,
	}
}

// SaveNotification writes one in-app notification
func (r *notificationRepository) SaveNotification(ctx context.Context, leadID string, event models.NotificationEvent, title, body string) error {
	query := `
		INSERT INTO in_app_notifications (lead_id, event, title, body, is_read, created_at)
		VALUES (NULLIF($1, ''), $2, $3, $4, FALSE, NOW())
	`

	_, err := r.db.ExecContext(ctx, query, leadID, event, title, body)
	if err != nil {
		return fmt.Errorf("failed to save in-app notification: %w", err)
	}

	return nil
}

// MarkRead flags a notification as read
func (r *notificationRepository) MarkRead(ctx context.Context, id int64) error {
	query := `
		UPDATE in_app_notifications
		SET is_read = TRUE
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	return requireRow(result, id)
}
