package services

import (
	"context"
	"time"

	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/models"
	"github.com/quotelane/lead_pipeline/internal/repository"
)

// PipelineResult carries everything produced by one pass through the
// lead pipeline
type PipelineResult struct {
	Lead       *models.ProcessedLead
	Score      models.LeadScore
	Assignment AssignmentResult
	Validation ValidationResult
}

// LeadPipeline runs an inbound webhook payload through mapping,
// validation, scoring, assignment, persistence and notification. The
// same path serves live webhook requests and retry reprocessing, so a
// retried payload behaves exactly like a fresh one.
type LeadPipeline struct {
	leads    repository.LeadRepository
	agents   repository.AgentRepository
	settings repository.SettingsRepository
	notifier *NotificationService
}

// NewLeadPipeline wires the pipeline's dependencies
func NewLeadPipeline(
	leads repository.LeadRepository,
	agents repository.AgentRepository,
	settings repository.SettingsRepository,
	notifier *NotificationService,
) *LeadPipeline {
	return &LeadPipeline{
		leads:    leads,
		agents:   agents,
		settings: settings,
		notifier: notifier,
	}
}

// ProcessWebhookPayload runs one raw platform payload through the full
// pipeline. Validation failures return a result with Validation.IsValid
// false and a nil error; they are payload problems, not pipeline ones.
// Infrastructure failures (rule loading, persistence) come back as
// ReprocessError with Infrastructure set so the intake handler knows to
// queue the payload for retry. Each retried run that fails again still
// consumes one attempt from the record's budget.
func (p *LeadPipeline) ProcessWebhookPayload(ctx context.Context, platform string, payload models.JSONB) (*PipelineResult, error) {
	start := time.Now()

	mapper := MapperForPlatform(platform)
	if mapper == nil {
		logger.Warn(ctx, "Unknown platform, using generic mapper", "platform", platform)
		mapper = MapGenericLead
	}
	data := mapper(payload)
	if data.RawPayload == nil {
		data.RawPayload = payload
	}

	result := &PipelineResult{
		Validation: ValidateLeadData(&data),
	}
	if !result.Validation.IsValid {
		logger.Info(ctx, "Lead payload failed validation",
			"platform", platform,
			"errors", len(result.Validation.Errors),
		)
		return result, nil
	}

	result.Lead = ProcessLeadData(&data, ProcessOptions{})
	ctx = context.WithValue(ctx, logger.LeadIDKey, result.Lead.ID)

	// Rule-driven operational score; settings are read fresh per payload
	scoringRules, err := p.settings.GetScoringRules(ctx)
	if err != nil {
		return result, models.NewReprocessError("scoring", "failed to load scoring rules", true, err)
	}
	result.Score = NewScoringEngine(scoringRules).CalculateScore(ctx, result.Lead, nil)

	p.assign(ctx, result)

	if err := p.leads.CreateLead(ctx, result.Lead); err != nil {
		return result, models.NewReprocessError("persistence", "failed to persist lead", true, err)
	}

	if result.Assignment.Success {
		if err := p.agents.IncrementLeadCount(ctx, result.Assignment.AssignedTo); err != nil {
			// The lead is saved; a stale counter is not worth failing the payload
			logger.Warn(ctx, "Failed to increment agent lead count",
				"agent", result.Assignment.AssignedTo, "error", err.Error())
		}
	}

	p.notify(ctx, result)

	logger.Info(ctx, "Lead processed",
		"platform", platform,
		"score", result.Lead.Score,
		"rule_score_pct", result.Score.Percentage,
		"assigned_to", result.Lead.AssignedTo,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	logger.LogSlowOperation(ctx, "process_webhook_payload", time.Since(start))

	return result, nil
}

// assign routes the lead through the assignment engine. Assignment
// failure leaves the lead unassigned; it never fails the pipeline.
func (p *LeadPipeline) assign(ctx context.Context, result *PipelineResult) {
	rules, err := p.settings.GetAssignmentRules(ctx)
	if err != nil {
		logger.Warn(ctx, "Failed to load assignment rules, leaving lead unassigned", "error", err.Error())
		result.Assignment = AssignmentResult{Success: false, Reason: "assignment rules unavailable", Err: err}
		return
	}

	agents, err := p.agents.GetAgents(ctx)
	if err != nil {
		logger.Warn(ctx, "Failed to load agent roster, leaving lead unassigned", "error", err.Error())
		result.Assignment = AssignmentResult{Success: false, Reason: "agent roster unavailable", Err: err}
		return
	}

	result.Assignment = NewAssignmentEngine(rules, agents).AssignLead(ctx, result.Lead, &result.Score)
	if result.Assignment.Success {
		result.Lead.AssignedTo = result.Assignment.AssignedTo
	} else {
		logger.Info(ctx, "Lead left unassigned", "reason", result.Assignment.Reason)
	}
}

// notify fans out lead_created, lead_assigned and high_score_lead events
// as settings allow. Notification failures are logged by the service and
// never fail the pipeline.
func (p *LeadPipeline) notify(ctx context.Context, result *PipelineResult) {
	if p.notifier == nil {
		return
	}

	settings, err := p.settings.GetCrmSettings(ctx)
	if err != nil {
		logger.Warn(ctx, "Failed to load notification settings, skipping fan-out", "error", err.Error())
		return
	}

	p.notifier.Send(ctx, settings, NotificationPayload{
		Event: models.NotificationLeadCreated,
		Lead:  result.Lead,
		Score: &result.Score,
	})

	if result.Assignment.Success {
		p.notifier.Send(ctx, settings, NotificationPayload{
			Event: models.NotificationLeadAssigned,
			Lead:  result.Lead,
			Score: &result.Score,
		})
	}

	p.notifier.Send(ctx, settings, NotificationPayload{
		Event: models.NotificationHighScoreLead,
		Lead:  result.Lead,
		Score: &result.Score,
	})
}
