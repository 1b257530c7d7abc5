package security

import (
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/quotelane/lead_pipeline/internal/ratelimit"
)

const testSecret = "webhook-test-secret"

func TestValidateRequestHappyPath(t *testing.T) {
	v := NewValidator(nil)
	body := []byte(`{"email":"a@b.com"}`)

	r := httptest.NewRequest("POST", "/webhooks/meta", nil)
	r.Header.Set("X-Hub-Signature-256", SignBody(body, testSecret))
	r.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	result := v.ValidateRequest(r, body, "meta", testSecret, DefaultOptions())

	if !result.IsValid {
		t.Fatalf("expected valid, got %+v", result)
	}
	if result.Error != "" {
		t.Errorf("error = %q, want empty", result.Error)
	}
}

func TestValidateRequestTamperedBody(t *testing.T) {
	v := NewValidator(nil)
	body := []byte(`{"email":"a@b.com"}`)

	r := httptest.NewRequest("POST", "/webhooks/meta", nil)
	r.Header.Set("X-Hub-Signature-256", SignBody(body, testSecret))
	r.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	tampered := []byte(`{"email":"evil@b.com"}`)
	result := v.ValidateRequest(r, tampered, "meta", testSecret, DefaultOptions())

	if result.IsValid {
		t.Fatal("tampered body accepted")
	}
	if result.Error != "invalid signature" {
		t.Errorf("error = %q, want invalid signature", result.Error)
	}
}

func TestValidateRequestWrongSecret(t *testing.T) {
	v := NewValidator(nil)
	body := []byte(`{}`)

	r := httptest.NewRequest("POST", "/webhooks/meta", nil)
	r.Header.Set("X-Hub-Signature-256", SignBody(body, "other-secret"))
	r.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	result := v.ValidateRequest(r, body, "meta", testSecret, DefaultOptions())
	if result.IsValid {
		t.Fatal("wrong secret accepted")
	}
}

func TestValidateRequestEmptySecretAlwaysFails(t *testing.T) {
	v := NewValidator(nil)
	body := []byte(`{}`)

	r := httptest.NewRequest("POST", "/webhooks/meta", nil)
	r.Header.Set("X-Hub-Signature-256", SignBody(body, ""))
	r.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	result := v.ValidateRequest(r, body, "meta", "", DefaultOptions())
	if result.IsValid {
		t.Fatal("empty secret must never validate")
	}
}

func TestValidateRequestMissingSignatureHeader(t *testing.T) {
	v := NewValidator(nil)
	r := httptest.NewRequest("POST", "/webhooks/meta", nil)
	r.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

	result := v.ValidateRequest(r, []byte(`{}`), "meta", testSecret, DefaultOptions())
	if result.IsValid {
		t.Fatal("missing signature header accepted")
	}
}

func TestValidateRequestAlternateSignatureHeaders(t *testing.T) {
	v := NewValidator(nil)
	body := []byte(`{"id":1}`)

	for _, header := range []string{"X-Hub-Signature-256", "X-Goog-Signature", "X-Signature-256"} {
		t.Run(header, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/webhooks/meta", nil)
			r.Header.Set(header, SignBody(body, testSecret))
			r.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))

			result := v.ValidateRequest(r, body, "meta", testSecret, DefaultOptions())
			if !result.IsValid {
				t.Errorf("signature in %s rejected: %+v", header, result)
			}
		})
	}
}

func TestValidateRequestStaleTimestamp(t *testing.T) {
	v := NewValidator(nil)
	body := []byte(`{}`)

	tests := []struct {
		name string
		ts   int64
		want bool
	}{
		{"fresh", time.Now().Unix(), true},
		{"just inside tolerance", time.Now().Add(-290 * time.Second).Unix(), true},
		{"stale", time.Now().Add(-10 * time.Minute).Unix(), false},
		{"future beyond tolerance", time.Now().Add(10 * time.Minute).Unix(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/webhooks/meta", nil)
			r.Header.Set("X-Hub-Signature-256", SignBody(body, testSecret))
			r.Header.Set("X-Timestamp", strconv.FormatInt(tt.ts, 10))

			result := v.ValidateRequest(r, body, "meta", testSecret, DefaultOptions())
			if result.IsValid != tt.want {
				t.Errorf("valid = %v, want %v (%+v)", result.IsValid, tt.want, result)
			}
			if !tt.want && result.Error != "invalid timestamp" {
				t.Errorf("error = %q, want invalid timestamp", result.Error)
			}
		})
	}
}

func TestValidateRequestMalformedTimestamp(t *testing.T) {
	v := NewValidator(nil)
	body := []byte(`{}`)

	r := httptest.NewRequest("POST", "/webhooks/meta", nil)
	r.Header.Set("X-Hub-Signature-256", SignBody(body, testSecret))
	r.Header.Set("X-Timestamp", "yesterday-ish")

	result := v.ValidateRequest(r, body, "meta", testSecret, DefaultOptions())
	if result.IsValid {
		t.Fatal("malformed timestamp accepted")
	}
}

func TestValidateRequestChecksDisabled(t *testing.T) {
	v := NewValidator(nil)

	r := httptest.NewRequest("POST", "/webhooks/meta", nil)
	result := v.ValidateRequest(r, []byte(`{}`), "meta", "", Options{})

	if !result.IsValid {
		t.Fatalf("all checks disabled should pass, got %+v", result)
	}
}

func TestValidateRequestRateLimitShortCircuits(t *testing.T) {
	registry := ratelimit.NewRegistry(time.Hour, map[string]int{"meta": 1}, 1)
	v := NewValidator(registry)
	body := []byte(`{}`)

	makeRequest := func() *Result {
		r := httptest.NewRequest("POST", "/webhooks/meta", nil)
		r.RemoteAddr = "203.0.113.7:4455"
		r.Header.Set("X-Hub-Signature-256", SignBody(body, testSecret))
		r.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
		res := v.ValidateRequest(r, body, "meta", testSecret, DefaultOptions())
		return &res
	}

	first := makeRequest()
	if !first.IsValid {
		t.Fatalf("first request rejected: %+v", first)
	}
	if first.RateLimit == nil {
		t.Fatal("allowed request should carry rate-limit state for headers")
	}
	if first.Window != time.Hour {
		t.Errorf("window = %v, want the limiter's window", first.Window)
	}

	second := makeRequest()
	if second.IsValid || !second.RateLimited {
		t.Fatalf("second request should be rate limited, got %+v", second)
	}
	if second.Error != "rate limit exceeded" {
		t.Errorf("error = %q", second.Error)
	}
	if second.RateLimit == nil || second.RateLimit.Remaining != 0 {
		t.Errorf("rate limit state = %+v", second.RateLimit)
	}
	if second.Window != time.Hour {
		t.Errorf("rejected window = %v, want the limiter's window", second.Window)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr with port", "198.51.100.4:9000", "", "198.51.100.4"},
		{"forwarded single", "10.0.0.1:80", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain takes first", "10.0.0.1:80", "203.0.113.7, 10.0.0.2", "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSignBodyShape(t *testing.T) {
	body := []byte(`{"k":"v"}`)
	sig := SignBody(body, testSecret)

	if len(sig) != len("sha256=")+64 {
		t.Errorf("signature length = %d: %s", len(sig), sig)
	}
	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature missing prefix: %s", sig)
	}
	if SignBody(body, "another-secret") == sig {
		t.Error("different secrets should produce different signatures")
	}
}
