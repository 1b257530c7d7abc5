// Package ratelimit provides an in-process, per-key sliding-window request
// limiter used to gatekeep inbound webhook traffic.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Result is the outcome of a limit check. It is always returned, whether
// the request was allowed or not.
type Result struct {
	Allowed       bool
	Limit         int
	Remaining     int
	ResetAt       time.Time
	TotalRequests int
}

type windowEntry struct {
	count       int
	windowStart time.Time
}

// Limiter is a per-key fixed-budget sliding-window counter. Expired
// windows are reset lazily on the next check; a background sweep purges
// keys that have gone quiet entirely.
type Limiter struct {
	mu         sync.Mutex
	entries    map[string]*windowEntry
	window     time.Duration
	maxReqs    int
	onLimitHit func(key string, res Result)
}

// Option configures a Limiter
type Option func(*Limiter)

// WithLimitCallback registers a callback fired when a key breaches its
// budget. The request is still rejected; the callback is observational.
func WithLimitCallback(fn func(key string, res Result)) Option {
	return func(l *Limiter) {
		l.onLimitHit = fn
	}
}

// New creates a Limiter with the given window and per-window budget
func New(window time.Duration, maxRequests int, opts ...Option) *Limiter {
	if window <= 0 {
		window = time.Hour
	}
	if maxRequests <= 0 {
		maxRequests = 1
	}

	l := &Limiter{
		entries: make(map[string]*windowEntry),
		window:  window,
		maxReqs: maxRequests,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the periodic cleanup sweep under the caller's lifecycle.
// The sweep runs at window cadence and stops when ctx is cancelled.
func (l *Limiter) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.window)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep(time.Now())
			}
		}
	}()
}

// sweep removes entries whose window has fully expired
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, entry := range l.entries {
		if now.Sub(entry.windowStart) >= l.window {
			delete(l.entries, key)
		}
	}
}

// CheckLimit counts a request against the key's budget and reports whether
// it is allowed. Never returns an error; a breached budget is a normal
// result, not a failure.
func (l *Limiter) CheckLimit(key string) Result {
	now := time.Now()
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.windowStart) >= l.window {
		entry = &windowEntry{windowStart: now}
		l.entries[key] = entry
	}

	res := Result{
		Limit:   l.maxReqs,
		ResetAt: entry.windowStart.Add(l.window),
	}

	if entry.count >= l.maxReqs {
		res.Allowed = false
		res.Remaining = 0
		res.TotalRequests = entry.count
		if l.onLimitHit != nil {
			l.onLimitHit(key, res)
		}
		return res
	}

	entry.count++
	res.Allowed = true
	res.Remaining = l.maxReqs - entry.count
	res.TotalRequests = entry.count
	return res
}

// Increment counts a request against the key without gating on the budget.
// Used when the allow/deny decision was made elsewhere.
func (l *Limiter) Increment(key string) {
	now := time.Now()
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.windowStart) >= l.window {
		entry = &windowEntry{windowStart: now}
		l.entries[key] = entry
	}
	entry.count++
}

// Window returns the limiter's window duration
func (l *Limiter) Window() time.Duration {
	return l.window
}

// WebhookKey builds the limiter key for an inbound webhook request:
// declared platform plus client IP.
func WebhookKey(platform, clientIP string) string {
	return fmt.Sprintf("%s:%s", platform, clientIP)
}

// SetHeaders writes the standard rate-limit response headers, including
// Retry-After when the request was rejected.
func SetHeaders(h http.Header, res Result, window time.Duration) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	h.Set("X-RateLimit-Window", window.String())

	if !res.Allowed {
		retryAfter := int(time.Until(res.ResetAt).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		h.Set("Retry-After", strconv.Itoa(retryAfter))
	}
}

// Registry owns one limiter per webhook platform, each with its own
// budget. Constructed once per process and injected where needed.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	window   time.Duration
	budgets  map[string]int
	fallback int
	opts     []Option
}

// NewRegistry creates a Registry with per-platform budgets. Platforms
// without an explicit budget share the fallback budget.
func NewRegistry(window time.Duration, budgets map[string]int, fallback int, opts ...Option) *Registry {
	if fallback <= 0 {
		fallback = 200
	}
	return &Registry{
		limiters: make(map[string]*Limiter),
		window:   window,
		budgets:  budgets,
		fallback: fallback,
		opts:     opts,
	}
}

// For returns the limiter for a platform, creating it on first use
func (r *Registry) For(platform string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[platform]; ok {
		return l
	}

	budget, ok := r.budgets[platform]
	if !ok || budget <= 0 {
		budget = r.fallback
	}

	l := New(r.window, budget, r.opts...)
	r.limiters[platform] = l
	return l
}

// Start launches cleanup sweeps for all known platforms under ctx
func (r *Registry) Start(ctx context.Context, platforms []string) {
	for _, platform := range platforms {
		r.For(platform).Start(ctx)
	}
}
