package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/quotelane/lead_pipeline/internal/config"
	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/models"
	"github.com/quotelane/lead_pipeline/internal/ratelimit"
	"github.com/quotelane/lead_pipeline/internal/repository"
	"github.com/quotelane/lead_pipeline/internal/retry"
	"github.com/quotelane/lead_pipeline/internal/security"
	"github.com/quotelane/lead_pipeline/internal/services"
)

// maxBodySize caps inbound webhook payloads at 1 MiB
const maxBodySize = 1 << 20

// Audit outcomes recorded for every webhook request
const (
	OutcomeProcessed   = "processed"
	OutcomeInvalid     = "invalid_payload"
	OutcomeRejected    = "rejected"
	OutcomeRateLimited = "rate_limited"
	OutcomeRetryQueued = "retry_queued"
)

// WebhookHandler receives platform webhook requests and runs them
// through security validation and the lead pipeline
type WebhookHandler struct {
	cfg       *config.Config
	validator *security.Validator
	pipeline  *services.LeadPipeline
	events    repository.WebhookEventRepository
	scheduler *retry.Scheduler
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(
	cfg *config.Config,
	validator *security.Validator,
	pipeline *services.LeadPipeline,
	events repository.WebhookEventRepository,
	scheduler *retry.Scheduler,
) *WebhookHandler {
	return &WebhookHandler{
		cfg:       cfg,
		validator: validator,
		pipeline:  pipeline,
		events:    events,
		scheduler: scheduler,
	}
}

// WebhookResponse represents the response returned to webhook callers
type WebhookResponse struct {
	LeadID          string `json:"lead_id,omitempty"`
	Status          string `json:"status"`
	Score           int    `json:"score,omitempty"`
	ScorePercentage int    `json:"score_percentage,omitempty"`
	Priority        string `json:"priority,omitempty"`
	AssignedTo      string `json:"assigned_to,omitempty"`
	CorrelationID   string `json:"correlation_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error         string   `json:"error"`
	Details       []string `json:"details,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// HandleWebhook handles POST /webhooks/{platform}
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	correlationID := uuid.New().String()
	platform := mux.Vars(r)["platform"]

	ctx := context.WithValue(r.Context(), logger.CorrelationIDKey, correlationID)
	ctx = context.WithValue(ctx, logger.PlatformKey, platform)

	logger.Info(ctx, "Received webhook request",
		"remote_addr", r.RemoteAddr,
		"method", r.Method,
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		logger.LogError(ctx, "Failed to read request body", err)
		respondError(w, ctx, http.StatusBadRequest, "failed to read request body", nil)
		return
	}
	defer r.Body.Close()

	// Security checks run against the raw body, before any parsing
	secResult := h.validator.ValidateRequest(r, body, platform, h.cfg.Webhook.Secret(platform), security.Options{
		VerifySignature:    h.cfg.Webhook.VerifySignature,
		VerifyTimestamp:    h.cfg.Webhook.VerifyTimestamp,
		VerifyRateLimit:    true,
		TimestampTolerance: h.cfg.Webhook.TimestampTolerance,
	})

	if secResult.RateLimit != nil {
		window := secResult.Window
		if window <= 0 {
			window = h.cfg.RateLimit.Window
		}
		ratelimit.SetHeaders(w.Header(), *secResult.RateLimit, window)
	}

	if secResult.RateLimited {
		logger.Warn(ctx, "Webhook rate limited", "platform", platform)
		h.audit(ctx, platform, nil, OutcomeRateLimited, "rate limit exceeded")
		respondError(w, ctx, http.StatusTooManyRequests, secResult.Error, nil)
		return
	}

	if !secResult.IsValid {
		h.audit(ctx, platform, nil, OutcomeRejected, secResult.Error)
		respondError(w, ctx, http.StatusUnauthorized, secResult.Error, nil)
		return
	}

	var rawPayload map[string]interface{}
	if err := json.Unmarshal(body, &rawPayload); err != nil {
		logger.LogError(ctx, "Malformed JSON payload", err)
		h.audit(ctx, platform, nil, OutcomeInvalid, "malformed JSON")
		respondError(w, ctx, http.StatusBadRequest, "malformed JSON payload", nil)
		return
	}

	result, err := h.pipeline.ProcessWebhookPayload(ctx, platform, models.JSONB(rawPayload))
	if err != nil {
		// Infrastructure failure: preserve the payload for the retry worker
		logger.LogError(ctx, "Pipeline failed, scheduling retry", err)

		record, schedErr := h.scheduler.ScheduleRetry(ctx, retry.TypeLeadProcessing, models.JSONB{
			"platform": platform,
			"payload":  map[string]interface{}(rawPayload),
		}, "", err)
		if schedErr != nil {
			logger.LogError(ctx, "Failed to schedule retry", schedErr)
			h.audit(ctx, platform, nil, OutcomeRejected, "processing and retry scheduling both failed")
			respondError(w, ctx, http.StatusServiceUnavailable, "temporarily unable to process lead", nil)
			return
		}

		h.audit(ctx, platform, nil, OutcomeRetryQueued, record.LastError)
		respondJSON(w, ctx, http.StatusAccepted, WebhookResponse{
			Status:        "queued_for_retry",
			CorrelationID: correlationID,
		})
		return
	}

	if !result.Validation.IsValid {
		details := append([]string(nil), result.Validation.Errors...)
		h.audit(ctx, platform, nil, OutcomeInvalid, "lead validation failed")
		respondError(w, ctx, http.StatusUnprocessableEntity, "lead validation failed", details)
		return
	}

	lead := result.Lead
	h.audit(ctx, platform, &lead.ID, OutcomeProcessed, "")

	logger.LogSlowOperation(ctx, "webhook_request", time.Since(startTime))

	respondJSON(w, ctx, http.StatusOK, WebhookResponse{
		LeadID:          lead.ID,
		Status:          string(lead.Status),
		Score:           lead.Score,
		ScorePercentage: result.Score.Percentage,
		Priority:        string(services.PriorityForPercentage(result.Score.Percentage)),
		AssignedTo:      lead.AssignedTo,
		CorrelationID:   correlationID,
	})
}

// audit writes one webhook_events record; audit failures are logged and
// swallowed so they never affect the caller's response
func (h *WebhookHandler) audit(ctx context.Context, platform string, leadID *string, outcome, detail string) {
	event := &models.WebhookEvent{
		Platform:   platform,
		LeadID:     leadID,
		Outcome:    outcome,
		ReceivedAt: time.Now(),
	}
	if detail != "" {
		event.Detail = &detail
	}

	if err := h.events.RecordEvent(ctx, event); err != nil {
		logger.LogError(ctx, "Failed to record webhook audit event", err)
	}
}

// respondJSON sends a JSON response with the correlation header
func respondJSON(w http.ResponseWriter, ctx context.Context, statusCode int, data interface{}) {
	if correlationID, ok := ctx.Value(logger.CorrelationIDKey).(string); ok {
		w.Header().Set("X-Correlation-ID", correlationID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.LogError(ctx, "Failed to encode response", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, ctx context.Context, statusCode int, message string, details []string) {
	correlationID := ""
	if id, ok := ctx.Value(logger.CorrelationIDKey).(string); ok {
		correlationID = id
	}

	respondJSON(w, ctx, statusCode, ErrorResponse{
		Error:         message,
		Details:       details,
		CorrelationID: correlationID,
	})
}
