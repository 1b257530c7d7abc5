package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quotelane/lead_pipeline/internal/models"
	"github.com/quotelane/lead_pipeline/internal/security"
)

func TestSendWebhookSuccess(t *testing.T) {
	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Signature-256")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPWebhookSender(5*time.Second, "delivery-secret")
	err := sender.SendWebhook(context.Background(), server.URL, map[string]interface{}{
		"event": "lead_created",
	})
	if err != nil {
		t.Fatalf("SendWebhook() error = %v", err)
	}

	if gotSignature == "" {
		t.Fatal("expected signature header on delivery")
	}
	if gotSignature != security.SignBody(gotBody, "delivery-secret") {
		t.Error("signature does not verify against the delivered body")
	}
}

func TestSendWebhookNoSecretOmitsSignature(t *testing.T) {
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Signature-256")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewHTTPWebhookSender(5*time.Second, "")
	if err := sender.SendWebhook(context.Background(), server.URL, map[string]string{"k": "v"}); err != nil {
		t.Fatalf("SendWebhook() error = %v", err)
	}
	if gotSignature != "" {
		t.Errorf("signature header = %q, want none without a secret", gotSignature)
	}
}

func TestSendWebhookStatusClassification(t *testing.T) {
	tests := []struct {
		status        int
		wantRetriable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))

		sender := NewHTTPWebhookSender(5*time.Second, "")
		err := sender.SendWebhook(context.Background(), server.URL, map[string]string{})
		server.Close()

		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}

		var delivery *models.DeliveryError
		if !errors.As(err, &delivery) {
			t.Errorf("status %d: error type = %T", tt.status, err)
			continue
		}
		if delivery.StatusCode != tt.status {
			t.Errorf("status code = %d, want %d", delivery.StatusCode, tt.status)
		}
		if delivery.IsRetriable() != tt.wantRetriable {
			t.Errorf("status %d retriable = %v, want %v", tt.status, delivery.IsRetriable(), tt.wantRetriable)
		}
	}
}

func TestSendWebhookNetworkErrorIsRetriable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := server.URL
	server.Close() // connection refused from here on

	sender := NewHTTPWebhookSender(time.Second, "")
	err := sender.SendWebhook(context.Background(), url, map[string]string{})
	if err == nil {
		t.Fatal("expected network error")
	}

	var delivery *models.DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("error type = %T", err)
	}
	if !delivery.IsRetriable() {
		t.Error("network errors should be retriable")
	}
}

func TestSendWebhookUnmarshalablePayload(t *testing.T) {
	sender := NewHTTPWebhookSender(time.Second, "")
	err := sender.SendWebhook(context.Background(), "http://localhost:0", map[string]interface{}{
		"bad": make(chan int),
	})
	if err == nil {
		t.Fatal("expected marshal error")
	}

	var delivery *models.DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("error type = %T", err)
	}
	if delivery.IsRetriable() {
		t.Error("marshal failures are permanent, not retriable")
	}
}
