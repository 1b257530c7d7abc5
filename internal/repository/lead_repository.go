package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/quotelane/lead_pipeline/internal/models"
)

// LeadRepository defines the interface for lead persistence operations
type LeadRepository interface {
	// CreateLead inserts a processed lead record
	CreateLead(ctx context.Context, lead *models.ProcessedLead) error

	// GetLeadByID retrieves a lead by its ID
	GetLeadByID(ctx context.Context, id string) (*models.ProcessedLead, error)

	// UpdateLeadStatus updates the status of a lead atomically
	UpdateLeadStatus(ctx context.Context, id string, status models.LeadStatus) error

	// UpdateLeadAssignment records which agent a lead was routed to
	UpdateLeadAssignment(ctx context.Context, id string, assignedTo string) error

	// GetLeadCountsByStatus returns counts of leads grouped by status
	GetLeadCountsByStatus(ctx context.Context) (map[string]int, error)

	// GetRecentLeads returns the most recent leads ordered by created_at
	GetRecentLeads(ctx context.Context, limit int) ([]*models.ProcessedLead, error)
}

// leadRepository is the concrete implementation of LeadRepository
type leadRepository struct {
	db *sql.DB
}

// NewLeadRepository creates a new LeadRepository instance
func NewLeadRepository(db *sql.DB) LeadRepository {
	return &leadRepository{
		db: db,
	}
}

const leadColumns = `
	id, email, first_name, last_name, phone, age, zip_code, city, state,
	source, insurance_type, status, score, tags, estimated_value,
	assigned_to, utm_source, utm_medium, utm_campaign, custom_fields,
	raw_payload, created_at, updated_at
`

// CreateLead inserts a processed lead record
func (r *leadRepository) CreateLead(ctx context.Context, lead *models.ProcessedLead) error {
	query := `
		INSERT INTO leads (
			id, email, first_name, last_name, phone, age, zip_code, city, state,
			source, insurance_type, status, score, tags, estimated_value,
			assigned_to, utm_source, utm_medium, utm_campaign, custom_fields,
			raw_payload, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23
		)
	`

	now := time.Now()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	if lead.UpdatedAt.IsZero() {
		lead.UpdatedAt = now
	}
	if lead.Status == "" {
		lead.Status = models.LeadStatusNew
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		lead.ID,
		lead.Email,
		lead.FirstName,
		lead.LastName,
		lead.Phone,
		lead.Age,
		lead.ZipCode,
		lead.City,
		lead.State,
		lead.Source,
		lead.InsuranceType,
		lead.Status,
		lead.Score,
		lead.Tags,
		lead.EstimatedValue,
		lead.AssignedTo,
		lead.UTMSource,
		lead.UTMMedium,
		lead.UTMCampaign,
		lead.CustomFields,
		lead.RawPayload,
		lead.CreatedAt,
		lead.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}

	return nil
}

// GetLeadByID retrieves a lead by its ID
func (r *leadRepository) GetLeadByID(ctx context.Context, id string) (*models.ProcessedLead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lead not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	return lead, nil
}

// UpdateLeadStatus updates the status of a lead atomically
func (r *leadRepository) UpdateLeadStatus(ctx context.Context, id string, status models.LeadStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid lead status: %s", status)
	}

	query := `
		UPDATE leads
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update lead status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("lead not found: %s", id)
	}

	return nil
}

// UpdateLeadAssignment records which agent a lead was routed to
func (r *leadRepository) UpdateLeadAssignment(ctx context.Context, id string, assignedTo string) error {
	query := `
		UPDATE leads
		SET assigned_to = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, assignedTo, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update lead assignment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("lead not found: %s", id)
	}

	return nil
}

// GetLeadCountsByStatus returns counts of leads grouped by status
func (r *leadRepository) GetLeadCountsByStatus(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*) as count
		FROM leads
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead counts: %w", err)
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

// GetRecentLeads returns the most recent leads ordered by created_at
func (r *leadRepository) GetRecentLeads(ctx context.Context, limit int) ([]*models.ProcessedLead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent leads: %w", err)
	}
	defer rows.Close()

	leads := make([]*models.ProcessedLead, 0, limit)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return leads, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(row rowScanner) (*models.ProcessedLead, error) {
	lead := &models.ProcessedLead{}
	var lastName, phone, zipCode, city, state sql.NullString
	var assignedTo, utmSource, utmMedium, utmCampaign sql.NullString
	var age sql.NullInt64

	err := row.Scan(
		&lead.ID,
		&lead.Email,
		&lead.FirstName,
		&lastName,
		&phone,
		&age,
		&zipCode,
		&city,
		&state,
		&lead.Source,
		&lead.InsuranceType,
		&lead.Status,
		&lead.Score,
		&lead.Tags,
		&lead.EstimatedValue,
		&assignedTo,
		&utmSource,
		&utmMedium,
		&utmCampaign,
		&lead.CustomFields,
		&lead.RawPayload,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	lead.LastName = lastName.String
	lead.Phone = phone.String
	lead.Age = int(age.Int64)
	lead.ZipCode = zipCode.String
	lead.City = city.String
	lead.State = state.String
	lead.AssignedTo = assignedTo.String
	lead.UTMSource = utmSource.String
	lead.UTMMedium = utmMedium.String
	lead.UTMCampaign = utmCampaign.String

	return lead, nil
}
