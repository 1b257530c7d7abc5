package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotelane/lead_pipeline/internal/models"
	"github.com/quotelane/lead_pipeline/internal/retry"
)

type deadLetterRepo struct {
	fakeSchedulerRepo
	deadLetters map[int64]*models.DeadLetterRecord
	listErr     error
	resolved    map[int64]models.DeadLetterResolution
}

func newDeadLetterRepo() *deadLetterRepo {
	return &deadLetterRepo{
		deadLetters: make(map[int64]*models.DeadLetterRecord),
		resolved:    make(map[int64]models.DeadLetterResolution),
	}
}

func (d *deadLetterRepo) ListDeadLetters(_ context.Context, _ int) ([]*models.DeadLetterRecord, error) {
	if d.listErr != nil {
		return nil, d.listErr
	}
	records := make([]*models.DeadLetterRecord, 0, len(d.deadLetters))
	for _, dead := range d.deadLetters {
		records = append(records, dead)
	}
	return records, nil
}

func (d *deadLetterRepo) GetDeadLetterByID(_ context.Context, id int64) (*models.DeadLetterRecord, error) {
	dead, ok := d.deadLetters[id]
	if !ok {
		return nil, fmt.Errorf("dead-letter record not found: %d", id)
	}
	return dead, nil
}

func (d *deadLetterRepo) ResolveDeadLetter(_ context.Context, id int64, resolution models.DeadLetterResolution) error {
	d.resolved[id] = resolution
	return nil
}

func newDeadLetterRouter(repo *deadLetterRepo, reprocess retry.HandlerFunc) *mux.Router {
	processor := retry.NewProcessor(repo, retry.DefaultPolicy(), 10)
	if reprocess != nil {
		processor.Register(retry.TypeLeadProcessing, reprocess)
	}

	handler := NewDeadLetterHandler(repo, processor)

	router := mux.NewRouter()
	router.HandleFunc("/admin/dead-letters", handler.HandleList).Methods(http.MethodGet)
	router.HandleFunc("/admin/dead-letters/{id}/retry", handler.HandleRetry).Methods(http.MethodPost)
	return router
}

func TestHandleListDeadLetters(t *testing.T) {
	failedAt := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	repo := newDeadLetterRepo()
	repo.deadLetters[7] = &models.DeadLetterRecord{
		ID:            7,
		RetryID:       42,
		Type:          retry.TypeLeadProcessing,
		TotalAttempts: 5,
		LastError:     "connection refused",
		FirstFailedAt: failedAt,
		MovedAt:       failedAt.Add(30 * time.Minute),
		Resolution:    models.DeadLetterRequiresReview,
	}

	router := newDeadLetterRouter(repo, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/dead-letters", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp []DeadLetterSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp, 1)

	assert.Equal(t, int64(7), resp[0].ID)
	assert.Equal(t, int64(42), resp[0].RetryID)
	assert.Equal(t, retry.TypeLeadProcessing, resp[0].Type)
	assert.Equal(t, 5, resp[0].TotalAttempts)
	assert.Equal(t, "connection refused", resp[0].LastError)
	assert.Equal(t, "2026-08-26T09:00:00Z", resp[0].FirstFailedAt)
	assert.Equal(t, "2026-08-26T09:30:00Z", resp[0].MovedAt)
	assert.Equal(t, "REQUIRES_MANUAL_REVIEW", resp[0].Resolution)
}

func TestHandleListDeadLettersEmpty(t *testing.T) {
	router := newDeadLetterRouter(newDeadLetterRepo(), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/dead-letters", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestHandleListDeadLettersRepoError(t *testing.T) {
	repo := newDeadLetterRepo()
	repo.listErr = errors.New("connection refused")
	router := newDeadLetterRouter(repo, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/dead-letters", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleRetryDeadLetterSuccess(t *testing.T) {
	repo := newDeadLetterRepo()
	repo.deadLetters[7] = &models.DeadLetterRecord{
		ID:            7,
		RetryID:       42,
		Type:          retry.TypeLeadProcessing,
		Payload:       models.JSONB{"platform": "meta"},
		TotalAttempts: 5,
		Resolution:    models.DeadLetterRequiresReview,
	}

	var handled *models.WebhookRetryRecord
	router := newDeadLetterRouter(repo, func(_ context.Context, record *models.WebhookRetryRecord) error {
		handled = record
		return nil
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/dead-letters/7/retry", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "manually_resolved", resp["status"])

	require.NotNil(t, handled, "reprocess handler was never invoked")
	assert.Equal(t, int64(42), handled.ID)
	assert.Equal(t, "meta", handled.Payload["platform"])
	assert.Equal(t, models.DeadLetterManuallyResolved, repo.resolved[7])
}

func TestHandleRetryDeadLetterFailure(t *testing.T) {
	repo := newDeadLetterRepo()
	repo.deadLetters[7] = &models.DeadLetterRecord{
		ID:         7,
		RetryID:    42,
		Type:       retry.TypeLeadProcessing,
		Resolution: models.DeadLetterRequiresReview,
	}

	router := newDeadLetterRouter(repo, func(_ context.Context, _ *models.WebhookRetryRecord) error {
		return errors.New("still failing")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/dead-letters/7/retry", nil))

	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "manual retry failed", resp.Error)
	require.NotEmpty(t, resp.Details)
	assert.Contains(t, resp.Details[0], "still failing")

	_, resolved := repo.resolved[7]
	assert.False(t, resolved, "failed retry must leave the entry unresolved")
}

func TestHandleRetryDeadLetterUnknownID(t *testing.T) {
	router := newDeadLetterRouter(newDeadLetterRepo(), func(_ context.Context, _ *models.WebhookRetryRecord) error {
		return nil
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/dead-letters/99/retry", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleRetryDeadLetterInvalidID(t *testing.T) {
	router := newDeadLetterRouter(newDeadLetterRepo(), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/dead-letters/not-a-number/retry", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
