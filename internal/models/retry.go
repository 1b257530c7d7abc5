package models

import "time"

// WebhookRetryRecord tracks a webhook payload whose processing failed and
// is being retried with exponential backoff
type WebhookRetryRecord struct {
	ID          int64       `json:"id" db:"id"`
	Type        string      `json:"type" db:"type"`
	Payload     JSONB       `json:"payload" db:"payload"`
	URL         string      `json:"url,omitempty" db:"url"`
	Attempts    int         `json:"attempts" db:"attempts"`
	MaxAttempts int         `json:"max_attempts" db:"max_attempts"`
	NextRetry   time.Time   `json:"next_retry" db:"next_retry"`
	LastError   string      `json:"last_error,omitempty" db:"last_error"`
	Status      RetryStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// DeadLetterRecord preserves full failure context for manual remediation
// after a retry record exhausts its budget
type DeadLetterRecord struct {
	ID            int64                `json:"id" db:"id"`
	RetryID       int64                `json:"retry_id" db:"retry_id"`
	Type          string               `json:"type" db:"type"`
	Payload       JSONB                `json:"payload" db:"payload"`
	URL           string               `json:"url,omitempty" db:"url"`
	TotalAttempts int                  `json:"total_attempts" db:"total_attempts"`
	LastError     string               `json:"last_error" db:"last_error"`
	FirstFailedAt time.Time            `json:"first_failed_at" db:"first_failed_at"`
	MovedAt       time.Time            `json:"moved_at" db:"moved_at"`
	Resolution    DeadLetterResolution `json:"resolution" db:"resolution"`
	CreatedAt     time.Time            `json:"created_at" db:"created_at"`
}

// WebhookEvent is the intake audit record written for every webhook
// request that reaches the processing pipeline
type WebhookEvent struct {
	ID         int64     `json:"id" db:"id"`
	Platform   string    `json:"platform" db:"platform"`
	LeadID     *string   `json:"lead_id,omitempty" db:"lead_id"`
	Outcome    string    `json:"outcome" db:"outcome"`
	Detail     *string   `json:"detail,omitempty" db:"detail"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
