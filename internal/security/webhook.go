// Package security validates inbound webhook requests: rate limiting,
// HMAC-SHA256 signature verification and timestamp freshness.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/ratelimit"
)

// Signature header names accepted per platform convention. The generic
// header is always tried last.
var signatureHeaders = []string{
	"X-Hub-Signature-256",
	"X-Goog-Signature",
	"X-Signature-256",
}

var timestampHeaders = []string{
	"X-Timestamp",
	"X-Request-Timestamp",
}

// Options toggles the individual validation checks
type Options struct {
	VerifySignature    bool
	VerifyTimestamp    bool
	VerifyRateLimit    bool
	TimestampTolerance time.Duration
}

// DefaultOptions enables every check with a 300s replay tolerance
func DefaultOptions() Options {
	return Options{
		VerifySignature:    true,
		VerifyTimestamp:    true,
		VerifyRateLimit:    true,
		TimestampTolerance: 300 * time.Second,
	}
}

// Result is the outcome of validating a webhook request. Error strings
// are deliberately generic; internals are logged, never returned.
type Result struct {
	IsValid     bool
	Error       string
	RateLimited bool
	RateLimit   *ratelimit.Result

	// Window is the rate-limit window the request was counted against,
	// for response headers. Zero when the rate-limit check did not run.
	Window time.Duration
}

// Validator checks inbound webhook requests before any processing
type Validator struct {
	limiters *ratelimit.Registry
}

// NewValidator creates a Validator backed by the given limiter registry
func NewValidator(limiters *ratelimit.Registry) *Validator {
	return &Validator{limiters: limiters}
}

// ValidateRequest runs the rate-limit, signature and timestamp checks in
// order, short-circuiting on the first failure. The raw body must already
// be buffered by the caller; it is never read from the request here.
// No error or panic ever escapes: any internal failure downgrades to a
// generic invalid result.
func (v *Validator) ValidateRequest(r *http.Request, body []byte, platform, secret string, opts Options) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(r.Context(), "Panic during webhook validation", "panic", rec)
			result = Result{IsValid: false, Error: "invalid request"}
		}
	}()

	if opts.VerifyRateLimit && v.limiters != nil {
		limiter := v.limiters.For(platform)
		key := ratelimit.WebhookKey(platform, ClientIP(r))
		res := limiter.CheckLimit(key)
		if !res.Allowed {
			return Result{
				IsValid:     false,
				Error:       "rate limit exceeded",
				RateLimited: true,
				RateLimit:   &res,
				Window:      limiter.Window(),
			}
		}
		result.RateLimit = &res
		result.Window = limiter.Window()
	}

	if opts.VerifySignature {
		if !verifySignature(r, body, secret) {
			logger.Warn(r.Context(), "Webhook signature verification failed", "platform", platform)
			result.IsValid = false
			result.Error = "invalid signature"
			return result
		}
	}

	if opts.VerifyTimestamp {
		tolerance := opts.TimestampTolerance
		if tolerance <= 0 {
			tolerance = 300 * time.Second
		}
		if !verifyTimestamp(r, tolerance, time.Now()) {
			logger.Warn(r.Context(), "Webhook timestamp verification failed", "platform", platform)
			result.IsValid = false
			result.Error = "invalid timestamp"
			return result
		}
	}

	result.IsValid = true
	return result
}

// verifySignature computes HMAC-SHA256 over the raw body and compares it
// against the header-supplied signature in constant time. A missing header
// or length mismatch fails immediately; unequal-length buffers are never
// compared.
func verifySignature(r *http.Request, body []byte, secret string) bool {
	if secret == "" {
		return false
	}

	var provided string
	for _, header := range signatureHeaders {
		if val := r.Header.Get(header); val != "" {
			provided = val
			break
		}
	}
	if provided == "" {
		return false
	}

	provided = strings.TrimPrefix(provided, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(provided) != len(expected) {
		return false
	}

	return hmac.Equal([]byte(provided), []byte(expected))
}

// verifyTimestamp rejects requests whose declared timestamp is outside
// the replay tolerance in either direction
func verifyTimestamp(r *http.Request, tolerance time.Duration, now time.Time) bool {
	var raw string
	for _, header := range timestampHeaders {
		if val := r.Header.Get(header); val != "" {
			raw = val
			break
		}
	}
	if raw == "" {
		return false
	}

	unix, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return false
	}

	ts := time.Unix(unix, 0)
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}

	return diff <= tolerance
}

// ClientIP extracts the originating client IP, preferring X-Forwarded-For
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SignBody computes the hex HMAC-SHA256 signature for a payload. Used by
// tests and by the outbound webhook channel to sign deliveries.
func SignBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
