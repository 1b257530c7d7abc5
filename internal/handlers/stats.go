package handlers

import (
	"net/http"
	"time"

	"github.com/quotelane/lead_pipeline/internal/database"
	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/repository"
)

// StatsHandler handles statistics and observability endpoints
type StatsHandler struct {
	db      *database.DB
	leads   repository.LeadRepository
	retries repository.RetryRepository
	events  repository.WebhookEventRepository
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(
	db *database.DB,
	leads repository.LeadRepository,
	retries repository.RetryRepository,
	events repository.WebhookEventRepository,
) *StatsHandler {
	return &StatsHandler{
		db:      db,
		leads:   leads,
		retries: retries,
		events:  events,
	}
}

// LeadCountsByStatus represents lead counts grouped by status
type LeadCountsByStatus struct {
	New       int `json:"new"`
	Contacted int `json:"contacted"`
	Qualified int `json:"qualified"`
	Converted int `json:"converted"`
	Lost      int `json:"lost"`
	Total     int `json:"total"`
}

// RecentLeadSummary represents a summary of a recent lead
type RecentLeadSummary struct {
	ID             string  `json:"id"`
	CreatedAt      string  `json:"created_at"`
	Status         string  `json:"status"`
	Source         string  `json:"source"`
	InsuranceType  string  `json:"insurance_type"`
	Score          int     `json:"score"`
	EstimatedValue float64 `json:"estimated_value"`
	AssignedTo     string  `json:"assigned_to,omitempty"`
}

// QueueStats reports the retry queue depth and recent intake outcomes
type QueueStats struct {
	RetryQueue      map[string]int `json:"retry_queue"`
	WebhookOutcomes map[string]int `json:"webhook_outcomes_24h"`
}

// HandleLeadCounts handles GET /stats/leads/counts
func (h *StatsHandler) HandleLeadCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.leads.GetLeadCountsByStatus(ctx)
	if err != nil {
		logger.LogError(ctx, "Failed to get lead counts", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	respondJSON(w, ctx, http.StatusOK, LeadCountsByStatus{
		New:       counts["NEW"],
		Contacted: counts["CONTACTED"],
		Qualified: counts["QUALIFIED"],
		Converted: counts["CONVERTED"],
		Lost:      counts["LOST"],
		Total:     total,
	})
}

// HandleRecentLeads handles GET /stats/leads/recent
func (h *StatsHandler) HandleRecentLeads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	leads, err := h.leads.GetRecentLeads(ctx, 50)
	if err != nil {
		logger.LogError(ctx, "Failed to get recent leads", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	response := make([]RecentLeadSummary, 0, len(leads))
	for _, lead := range leads {
		response = append(response, RecentLeadSummary{
			ID:             lead.ID,
			CreatedAt:      lead.CreatedAt.Format(time.RFC3339),
			Status:         string(lead.Status),
			Source:         lead.Source,
			InsuranceType:  lead.InsuranceType,
			Score:          lead.Score,
			EstimatedValue: lead.EstimatedValue,
			AssignedTo:     lead.AssignedTo,
		})
	}

	respondJSON(w, ctx, http.StatusOK, response)
}

// HandleQueueStats handles GET /stats/queue
func (h *StatsHandler) HandleQueueStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	depth, err := h.retries.QueueDepth(ctx)
	if err != nil {
		logger.LogError(ctx, "Failed to get retry queue depth", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	outcomes, err := h.events.CountByOutcome(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		logger.LogError(ctx, "Failed to get webhook outcome counts", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	respondJSON(w, ctx, http.StatusOK, QueueStats{
		RetryQueue:      depth,
		WebhookOutcomes: outcomes,
	})
}

// HandleHealth handles GET /health
func (h *StatsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.db.HealthCheck(); err != nil {
		logger.LogError(ctx, "Health check failed", err)
		respondJSON(w, ctx, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
		})
		return
	}

	respondJSON(w, ctx, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
