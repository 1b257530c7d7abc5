package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/quotelane/lead_pipeline/internal/config"
	"github.com/quotelane/lead_pipeline/internal/models"
	"github.com/quotelane/lead_pipeline/internal/ratelimit"
	"github.com/quotelane/lead_pipeline/internal/retry"
	"github.com/quotelane/lead_pipeline/internal/security"
	"github.com/quotelane/lead_pipeline/internal/services"
)

const testWebhookSecret = "handler-test-secret"

// In-memory repository fakes shared across handler tests

type fakeLeadRepo struct {
	created   []*models.ProcessedLead
	createErr error
}

func (f *fakeLeadRepo) CreateLead(_ context.Context, lead *models.ProcessedLead) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, lead)
	return nil
}

func (f *fakeLeadRepo) GetLeadByID(_ context.Context, id string) (*models.ProcessedLead, error) {
	for _, lead := range f.created {
		if lead.ID == id {
			return lead, nil
		}
	}
	return nil, fmt.Errorf("lead not found: %s", id)
}

func (f *fakeLeadRepo) UpdateLeadStatus(_ context.Context, _ string, _ models.LeadStatus) error {
	return nil
}

func (f *fakeLeadRepo) UpdateLeadAssignment(_ context.Context, _ string, _ string) error {
	return nil
}

func (f *fakeLeadRepo) GetLeadCountsByStatus(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, lead := range f.created {
		counts[string(lead.Status)]++
	}
	return counts, nil
}

func (f *fakeLeadRepo) GetRecentLeads(_ context.Context, _ int) ([]*models.ProcessedLead, error) {
	return f.created, nil
}

type fakeAgentRepo struct {
	agents []models.AgentAvailability
}

func (f *fakeAgentRepo) GetAgents(_ context.Context) ([]models.AgentAvailability, error) {
	return f.agents, nil
}

func (f *fakeAgentRepo) IncrementLeadCount(_ context.Context, _ string) error {
	return nil
}

type fakeSettingsRepo struct {
	rules    []models.ScoringRule
	rulesErr error
}

func (f *fakeSettingsRepo) GetScoringRules(_ context.Context) ([]models.ScoringRule, error) {
	if f.rulesErr != nil {
		return nil, f.rulesErr
	}
	return f.rules, nil
}

func (f *fakeSettingsRepo) GetAssignmentRules(_ context.Context) ([]models.AssignmentRule, error) {
	return nil, nil
}

func (f *fakeSettingsRepo) GetCrmSettings(_ context.Context) (models.CrmSettings, error) {
	return models.CrmSettings{}, nil
}

type fakeEventRepo struct {
	events []*models.WebhookEvent
}

func (f *fakeEventRepo) RecordEvent(_ context.Context, event *models.WebhookEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventRepo) GetRecentEvents(_ context.Context, _ int) ([]*models.WebhookEvent, error) {
	return f.events, nil
}

func (f *fakeEventRepo) CountByOutcome(_ context.Context, _ time.Time) (map[string]int, error) {
	counts := make(map[string]int)
	for _, event := range f.events {
		counts[event.Outcome]++
	}
	return counts, nil
}

func (f *fakeEventRepo) lastOutcome() string {
	if len(f.events) == 0 {
		return ""
	}
	return f.events[len(f.events)-1].Outcome
}

type fakeSchedulerRepo struct {
	scheduled []*models.WebhookRetryRecord
	createErr error
}

func (f *fakeSchedulerRepo) CreateRetry(_ context.Context, record *models.WebhookRetryRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	record.ID = int64(len(f.scheduled) + 1)
	f.scheduled = append(f.scheduled, record)
	return nil
}

func (f *fakeSchedulerRepo) GetRetryByID(_ context.Context, id int64) (*models.WebhookRetryRecord, error) {
	return nil, fmt.Errorf("retry record not found: %d", id)
}

func (f *fakeSchedulerRepo) ClaimDue(_ context.Context, _ int) ([]*models.WebhookRetryRecord, error) {
	return nil, nil
}

func (f *fakeSchedulerRepo) MarkSuccess(_ context.Context, _ int64) error { return nil }

func (f *fakeSchedulerRepo) Reschedule(_ context.Context, _ int64, _ int, _ time.Time, _ string) error {
	return nil
}

func (f *fakeSchedulerRepo) Release(_ context.Context, _ int64, _ time.Time, _ string) error {
	return nil
}

func (f *fakeSchedulerRepo) MoveToDeadLetter(_ context.Context, _ *models.WebhookRetryRecord, _ string) (*models.DeadLetterRecord, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSchedulerRepo) GetDeadLetterByID(_ context.Context, id int64) (*models.DeadLetterRecord, error) {
	return nil, fmt.Errorf("dead-letter record not found: %d", id)
}

func (f *fakeSchedulerRepo) ListDeadLetters(_ context.Context, _ int) ([]*models.DeadLetterRecord, error) {
	return nil, nil
}

func (f *fakeSchedulerRepo) ResolveDeadLetter(_ context.Context, _ int64, _ models.DeadLetterResolution) error {
	return nil
}

func (f *fakeSchedulerRepo) QueueDepth(_ context.Context) (map[string]int, error) {
	return nil, nil
}

type handlerFixture struct {
	handler   *WebhookHandler
	router    *mux.Router
	leads     *fakeLeadRepo
	events    *fakeEventRepo
	scheduler *fakeSchedulerRepo
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	cfg := &config.Config{
		Webhook: config.WebhookConfig{
			Secrets:            map[string]string{config.PlatformGeneric: testWebhookSecret},
			TimestampTolerance: 300 * time.Second,
			VerifySignature:    true,
			VerifyTimestamp:    true,
		},
		RateLimit: config.RateLimitConfig{
			Window:  time.Hour,
			Budgets: map[string]int{"landing_page": 100},
		},
	}

	leads := &fakeLeadRepo{}
	settings := &fakeSettingsRepo{
		rules: []models.ScoringRule{
			{ID: 1, Action: "form_submitted", Points: 10, IsActive: true, DisplayOrder: 1},
			{ID: 2, Action: "phone_provided", Points: 15, IsActive: true, DisplayOrder: 2},
		},
	}
	agents := &fakeAgentRepo{
		agents: []models.AgentAvailability{
			{AgentID: "a1", AgentName: "Alice", MaxLeadCapacity: 25, IsOnline: true, IsActive: true},
		},
	}
	events := &fakeEventRepo{}
	schedulerRepo := &fakeSchedulerRepo{}

	pipeline := services.NewLeadPipeline(leads, agents, settings, nil)
	registry := ratelimit.NewRegistry(time.Hour, map[string]int{"landing_page": 100}, 100)
	validator := security.NewValidator(registry)
	scheduler := retry.NewScheduler(schedulerRepo, retry.DefaultPolicy())

	handler := NewWebhookHandler(cfg, validator, pipeline, events, scheduler)

	router := mux.NewRouter()
	router.HandleFunc("/webhooks/{platform}", handler.HandleWebhook).Methods(http.MethodPost)

	return &handlerFixture{
		handler:   handler,
		router:    router,
		leads:     leads,
		events:    events,
		scheduler: schedulerRepo,
	}
}

func signedWebhookRequest(t *testing.T, platform string, payload map[string]interface{}) *http.Request {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/webhooks/"+platform, bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Signature-256", security.SignBody(body, testWebhookSecret))
	r.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	return r
}

func TestHandleWebhookSuccess(t *testing.T) {
	fixture := newHandlerFixture(t)

	r := signedWebhookRequest(t, "landing_page", map[string]interface{}{
		"email":     "jane@example.com",
		"firstName": "Jane",
		"phone":     "5551234567",
	})
	w := httptest.NewRecorder()
	fixture.router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp WebhookResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.LeadID == "" {
		t.Error("expected lead id in response")
	}
	if resp.Status != "NEW" {
		t.Errorf("status = %q, want NEW", resp.Status)
	}
	// form_submitted and phone_provided both apply
	if resp.ScorePercentage != 100 {
		t.Errorf("score percentage = %d, want 100", resp.ScorePercentage)
	}
	if resp.Priority != "URGENT" {
		t.Errorf("priority = %q, want URGENT", resp.Priority)
	}
	if resp.AssignedTo != "Alice" {
		t.Errorf("assigned to = %q, want Alice via round-robin", resp.AssignedTo)
	}
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing correlation header")
	}
	if w.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("missing rate-limit headers on allowed request")
	}

	if len(fixture.leads.created) != 1 {
		t.Fatalf("persisted %d leads, want 1", len(fixture.leads.created))
	}
	if fixture.events.lastOutcome() != OutcomeProcessed {
		t.Errorf("audit outcome = %q, want processed", fixture.events.lastOutcome())
	}
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	fixture := newHandlerFixture(t)

	body := []byte(`{"email":"jane@example.com","firstName":"Jane"}`)
	r := httptest.NewRequest(http.MethodPost, "/webhooks/landing_page", bytes.NewReader(body))
	r.Header.Set("X-Signature-256", "sha256=deadbeef")
	r.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	w := httptest.NewRecorder()
	fixture.router.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if fixture.events.lastOutcome() != OutcomeRejected {
		t.Errorf("audit outcome = %q, want rejected", fixture.events.lastOutcome())
	}
	if len(fixture.leads.created) != 0 {
		t.Error("rejected request must not persist a lead")
	}
}

func TestHandleWebhookRateLimited(t *testing.T) {
	fixture := newHandlerFixture(t)

	// Rebuild the validator with a one-request budget and a window that
	// differs from the configured default, so the headers must reflect
	// the limiter actually consulted
	registry := ratelimit.NewRegistry(30*time.Minute, map[string]int{"landing_page": 1}, 1)
	fixture.handler.validator = security.NewValidator(registry)

	payload := map[string]interface{}{"email": "jane@example.com", "firstName": "Jane"}

	w := httptest.NewRecorder()
	fixture.router.ServeHTTP(w, signedWebhookRequest(t, "landing_page", payload))
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	fixture.router.ServeHTTP(w, signedWebhookRequest(t, "landing_page", payload))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining header = %q, want 0", w.Header().Get("X-RateLimit-Remaining"))
	}
	if got := w.Header().Get("X-RateLimit-Window"); got != (30 * time.Minute).String() {
		t.Errorf("window header = %q, want the limiter's window", got)
	}
	if fixture.events.lastOutcome() != OutcomeRateLimited {
		t.Errorf("audit outcome = %q, want rate_limited", fixture.events.lastOutcome())
	}
}

func TestHandleWebhookMalformedJSON(t *testing.T) {
	fixture := newHandlerFixture(t)

	body := []byte(`{"email": `)
	r := httptest.NewRequest(http.MethodPost, "/webhooks/landing_page", bytes.NewReader(body))
	r.Header.Set("X-Signature-256", security.SignBody(body, testWebhookSecret))
	r.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	w := httptest.NewRecorder()
	fixture.router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if fixture.events.lastOutcome() != OutcomeInvalid {
		t.Errorf("audit outcome = %q, want invalid_payload", fixture.events.lastOutcome())
	}
}

func TestHandleWebhookValidationFailure(t *testing.T) {
	fixture := newHandlerFixture(t)

	// Missing email and first name
	r := signedWebhookRequest(t, "landing_page", map[string]interface{}{
		"phone": "5551234567",
	})
	w := httptest.NewRecorder()
	fixture.router.ServeHTTP(w, r)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", w.Code, w.Body.String())
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if len(resp.Details) == 0 {
		t.Error("expected validation details in response")
	}
	if fixture.events.lastOutcome() != OutcomeInvalid {
		t.Errorf("audit outcome = %q, want invalid_payload", fixture.events.lastOutcome())
	}
}

func TestHandleWebhookInfrastructureFailureQueuesRetry(t *testing.T) {
	fixture := newHandlerFixture(t)
	fixture.leads.createErr = errors.New("connection refused")

	r := signedWebhookRequest(t, "landing_page", map[string]interface{}{
		"email":     "jane@example.com",
		"firstName": "Jane",
	})
	w := httptest.NewRecorder()
	fixture.router.ServeHTTP(w, r)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body = %s", w.Code, w.Body.String())
	}

	var resp WebhookResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "queued_for_retry" {
		t.Errorf("status = %q, want queued_for_retry", resp.Status)
	}

	if len(fixture.scheduler.scheduled) != 1 {
		t.Fatalf("scheduled %d retries, want 1", len(fixture.scheduler.scheduled))
	}
	record := fixture.scheduler.scheduled[0]
	if record.Type != retry.TypeLeadProcessing {
		t.Errorf("retry type = %q", record.Type)
	}
	if record.Payload["platform"] != "landing_page" {
		t.Errorf("retry payload = %v, want originating platform preserved", record.Payload)
	}
	if fixture.events.lastOutcome() != OutcomeRetryQueued {
		t.Errorf("audit outcome = %q, want retry_queued", fixture.events.lastOutcome())
	}
}

func TestHandleWebhookRetrySchedulingFailure(t *testing.T) {
	fixture := newHandlerFixture(t)
	fixture.leads.createErr = errors.New("connection refused")
	fixture.scheduler.createErr = errors.New("also down")

	r := signedWebhookRequest(t, "landing_page", map[string]interface{}{
		"email":     "jane@example.com",
		"firstName": "Jane",
	})
	w := httptest.NewRecorder()
	fixture.router.ServeHTTP(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHandleWebhookUnknownPlatformUsesGenericMapper(t *testing.T) {
	fixture := newHandlerFixture(t)

	r := signedWebhookRequest(t, "mystery_crm", map[string]interface{}{
		"email":     "gen@example.com",
		"firstName": "Gen",
	})
	w := httptest.NewRecorder()
	fixture.router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(fixture.leads.created) != 1 {
		t.Fatalf("persisted %d leads, want 1", len(fixture.leads.created))
	}
	if fixture.leads.created[0].Source != "WEBHOOK" {
		t.Errorf("source = %q, want WEBHOOK default", fixture.leads.created[0].Source)
	}
}
