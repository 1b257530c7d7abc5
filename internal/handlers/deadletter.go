package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/repository"
	"github.com/quotelane/lead_pipeline/internal/retry"
)

// DeadLetterHandler exposes the manual remediation endpoints for
// dead-lettered webhook payloads
type DeadLetterHandler struct {
	retries   repository.RetryRepository
	processor *retry.Processor
}

// NewDeadLetterHandler creates a new DeadLetterHandler
func NewDeadLetterHandler(retries repository.RetryRepository, processor *retry.Processor) *DeadLetterHandler {
	return &DeadLetterHandler{
		retries:   retries,
		processor: processor,
	}
}

// DeadLetterSummary represents one unresolved dead-letter entry
type DeadLetterSummary struct {
	ID            int64  `json:"id"`
	RetryID       int64  `json:"retry_id"`
	Type          string `json:"type"`
	TotalAttempts int    `json:"total_attempts"`
	LastError     string `json:"last_error"`
	FirstFailedAt string `json:"first_failed_at"`
	MovedAt       string `json:"moved_at"`
	Resolution    string `json:"resolution"`
}

// HandleList handles GET /admin/dead-letters
func (h *DeadLetterHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.retries.ListDeadLetters(ctx, 100)
	if err != nil {
		logger.LogError(ctx, "Failed to list dead-letter records", err)
		respondError(w, ctx, http.StatusInternalServerError, "internal server error", nil)
		return
	}

	response := make([]DeadLetterSummary, 0, len(records))
	for _, dead := range records {
		response = append(response, DeadLetterSummary{
			ID:            dead.ID,
			RetryID:       dead.RetryID,
			Type:          dead.Type,
			TotalAttempts: dead.TotalAttempts,
			LastError:     dead.LastError,
			FirstFailedAt: dead.FirstFailedAt.Format(time.RFC3339),
			MovedAt:       dead.MovedAt.Format(time.RFC3339),
			Resolution:    string(dead.Resolution),
		})
	}

	respondJSON(w, ctx, http.StatusOK, response)
}

// HandleRetry handles POST /admin/dead-letters/{id}/retry
func (h *DeadLetterHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, ctx, http.StatusBadRequest, "invalid dead-letter id", nil)
		return
	}

	logger.Info(ctx, "Manual dead-letter retry requested", "dead_letter_id", id)

	if err := h.processor.RetryDeadLetter(ctx, id); err != nil {
		logger.LogError(ctx, "Manual dead-letter retry failed", err, "dead_letter_id", id)
		respondError(w, ctx, http.StatusBadGateway, "manual retry failed", []string{err.Error()})
		return
	}

	respondJSON(w, ctx, http.StatusOK, map[string]string{
		"status": "manually_resolved",
	})
}
