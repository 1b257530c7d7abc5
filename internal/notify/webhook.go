package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quotelane/lead_pipeline/internal/models"
	"github.com/quotelane/lead_pipeline/internal/security"
)

// WebhookSender posts a JSON notification payload to a configured URL
type WebhookSender interface {
	SendWebhook(ctx context.Context, url string, payload interface{}) error
}

// SMSSender delivers a compact text message to one phone number.
// Transport is deployment-specific; the pipeline only defines the
// contract and validates destination configuration.
type SMSSender interface {
	SendSMS(ctx context.Context, number, message string) error
}

// HTTPWebhookSender delivers outbound webhooks over plain HTTP with an
// optional HMAC signature header
type HTTPWebhookSender struct {
	httpClient *http.Client
	secret     string
}

// NewHTTPWebhookSender creates a webhook sender. If secret is non-empty,
// deliveries carry an X-Signature-256 header the receiver can verify.
func NewHTTPWebhookSender(timeout time.Duration, secret string) *HTTPWebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPWebhookSender{
		httpClient: &http.Client{Timeout: timeout},
		secret:     secret,
	}
}

// SendWebhook posts the payload as JSON. Errors are classified with the
// retriable flag so callers can decide whether a redelivery makes sense.
func (s *HTTPWebhookSender) SendWebhook(ctx context.Context, url string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return models.NewDeliveryError(0, "failed to marshal payload", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return models.NewDeliveryError(0, "failed to create request", false, err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.secret != "" {
		req.Header.Set("X-Signature-256", security.SignBody(jsonData, s.secret))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Network errors are retriable
		return models.NewDeliveryError(0, "network error", true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(bodyBytes))

	return models.NewDeliveryError(resp.StatusCode, message, isRetriableStatusCode(resp.StatusCode), nil)
}

// isRetriableStatusCode classifies HTTP status codes for redelivery
func isRetriableStatusCode(statusCode int) bool {
	// 5xx errors are retriable (server errors)
	if statusCode >= 500 && statusCode < 600 {
		return true
	}

	// 429 Too Many Requests is retriable
	if statusCode == 429 {
		return true
	}

	return false
}
