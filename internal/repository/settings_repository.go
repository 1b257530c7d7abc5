package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/quotelane/lead_pipeline/internal/models"
)

// SettingsRepository loads the rule sets and notification settings that
// drive scoring, assignment and fan-out. Everything here is read fresh
// per operation so configuration edits take effect immediately.
type SettingsRepository interface {
	// GetScoringRules returns all configured scoring rules
	GetScoringRules(ctx context.Context) ([]models.ScoringRule, error)

	// GetAssignmentRules returns all configured assignment rules
	GetAssignmentRules(ctx context.Context) ([]models.AssignmentRule, error)

	// GetCrmSettings returns the current notification settings. A missing
	// settings row yields the zero value, which disables everything.
	GetCrmSettings(ctx context.Context) (models.CrmSettings, error)
}

// settingsRepository is the concrete implementation of SettingsRepository
type settingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository creates a new SettingsRepository instance
func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{
		db: db,
	}
}

// GetScoringRules returns all configured scoring rules
func (r *settingsRepository) GetScoringRules(ctx context.Context) ([]models.ScoringRule, error) {
	query := `
		SELECT id, action, points, is_active, display_order
		FROM scoring_rules
		ORDER BY display_order ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scoring rules: %w", err)
	}
	defer rows.Close()

	rules := []models.ScoringRule{}
	for rows.Next() {
		var rule models.ScoringRule
		if err := rows.Scan(&rule.ID, &rule.Action, &rule.Points, &rule.IsActive, &rule.DisplayOrder); err != nil {
			return nil, fmt.Errorf("failed to scan scoring rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rules, nil
}

// GetAssignmentRules returns all configured assignment rules
func (r *settingsRepository) GetAssignmentRules(ctx context.Context) ([]models.AssignmentRule, error) {
	query := `
		SELECT id, name, conditions, assign_to, priority, is_active
		FROM assignment_rules
		ORDER BY priority DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment rules: %w", err)
	}
	defer rows.Close()

	rules := []models.AssignmentRule{}
	for rows.Next() {
		var rule models.AssignmentRule
		var conditionsJSON []byte

		if err := rows.Scan(&rule.ID, &rule.Name, &conditionsJSON, &rule.AssignTo, &rule.Priority, &rule.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan assignment rule: %w", err)
		}

		if len(conditionsJSON) > 0 {
			if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal conditions for rule %d: %w", rule.ID, err)
			}
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rules, nil
}

// GetCrmSettings returns the current notification settings
func (r *settingsRepository) GetCrmSettings(ctx context.Context) (models.CrmSettings, error) {
	query := `
		SELECT instant_alerts_enabled, daily_digest_enabled,
			email_enabled, email_address,
			sms_enabled, sms_number,
			webhook_enabled, webhook_url
		FROM crm_settings
		ORDER BY id ASC
		LIMIT 1
	`

	var settings models.CrmSettings
	var emailAddress, smsNumber, webhookURL sql.NullString

	err := r.db.QueryRowContext(ctx, query).Scan(
		&settings.InstantAlertsEnabled,
		&settings.DailyDigestEnabled,
		&settings.EmailEnabled,
		&emailAddress,
		&settings.SMSEnabled,
		&smsNumber,
		&settings.WebhookEnabled,
		&webhookURL,
	)
	if err == sql.ErrNoRows {
		// No settings row means notifications are off
		return models.CrmSettings{}, nil
	}
	if err != nil {
		return models.CrmSettings{}, fmt.Errorf("failed to get crm settings: %w", err)
	}

	settings.EmailAddress = emailAddress.String
	settings.SMSNumber = smsNumber.String
	settings.WebhookURL = webhookURL.String

	return settings, nil
}
