package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quotelane/lead_pipeline/internal/models"
)

// AgentRepository exposes the agent roster used by the assignment engine
type AgentRepository interface {
	// GetAgents returns the full roster with current availability
	GetAgents(ctx context.Context) ([]models.AgentAvailability, error)

	// IncrementLeadCount bumps an agent's active lead count after an
	// assignment lands
	IncrementLeadCount(ctx context.Context, agentID string) error
}

// agentRepository is the concrete implementation of AgentRepository
type agentRepository struct {
	db *sql.DB
}

// NewAgentRepository creates a new AgentRepository instance
func NewAgentRepository(db *sql.DB) AgentRepository {
	return &agentRepository{
		db: db,
	}
}

// GetAgents returns the full roster with current availability
func (r *agentRepository) GetAgents(ctx context.Context) ([]models.AgentAvailability, error) {
	query := `
		SELECT agent_id, agent_name, current_lead_count, max_lead_capacity,
			specializations, is_online, is_active
		FROM agents
		ORDER BY agent_name ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	agents := []models.AgentAvailability{}
	for rows.Next() {
		var agent models.AgentAvailability
		err := rows.Scan(
			&agent.AgentID,
			&agent.AgentName,
			&agent.CurrentLeadCount,
			&agent.MaxLeadCapacity,
			&agent.Specializations,
			&agent.IsOnline,
			&agent.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return agents, nil
}

// IncrementLeadCount bumps an agent's active lead count
func (r *agentRepository) IncrementLeadCount(ctx context.Context, agentID string) error {
	query := `
		UPDATE agents
		SET current_lead_count = current_lead_count + 1
		WHERE agent_id = $1 OR agent_name = $1
	`

	result, err := r.db.ExecContext(ctx, query, agentID)
	if err != nil {
		return fmt.Errorf("failed to increment agent lead count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("agent not found: %s", agentID)
	}

	return nil
}
