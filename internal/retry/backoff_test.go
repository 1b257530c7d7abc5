package retry

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/quotelane/lead_pipeline/internal/config"
)

func TestDelayWithoutJitter(t *testing.T) {
	policy := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Minute,
		Multiplier:  2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{10, 5 * time.Minute}, // 512s capped
		{0, time.Second},      // invalid attempts clamp to 1
		{-3, time.Second},
	}

	for _, tt := range tests {
		if got := policy.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayJitterBounds(t *testing.T) {
	policy := DefaultPolicy()

	for i := 0; i < 200; i++ {
		got := policy.Delay(2) // 2s nominal, ±1s jitter
		if got < time.Second || got > 3*time.Second {
			t.Fatalf("Delay(2) = %v, want within [1s, 3s]", got)
		}
	}
}

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	if policy.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", policy.MaxAttempts)
	}
	if policy.BaseDelay != time.Second {
		t.Errorf("base delay = %v, want 1s", policy.BaseDelay)
	}
	if policy.MaxDelay != 5*time.Minute {
		t.Errorf("max delay = %v, want 5m", policy.MaxDelay)
	}
	if policy.Multiplier != 2 {
		t.Errorf("multiplier = %v, want 2", policy.Multiplier)
	}
	if policy.Jitter != time.Second {
		t.Errorf("jitter = %v, want 1s", policy.Jitter)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    time.Minute,
		Multiplier:  3,
		Jitter:      500 * time.Millisecond,
	}

	policy := PolicyFromConfig(cfg)
	if policy.MaxAttempts != 3 || policy.BaseDelay != 2*time.Second ||
		policy.MaxDelay != time.Minute || policy.Multiplier != 3 {
		t.Errorf("policy = %+v, want config values carried through", policy)
	}

	// Invalid values fall back to defaults
	policy = PolicyFromConfig(config.RetryConfig{MaxAttempts: 0, Multiplier: 0.5})
	defaults := DefaultPolicy()
	if policy.MaxAttempts != defaults.MaxAttempts {
		t.Errorf("max attempts = %d, want default %d", policy.MaxAttempts, defaults.MaxAttempts)
	}
	if policy.Multiplier != defaults.Multiplier {
		t.Errorf("multiplier = %v, want default %v", policy.Multiplier, defaults.Multiplier)
	}
	if policy.BaseDelay != defaults.BaseDelay {
		t.Errorf("base delay = %v, want default %v", policy.BaseDelay, defaults.BaseDelay)
	}
}

func TestDelayProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("delay is never negative and never exceeds cap plus jitter", prop.ForAll(
		func(attempt, jitterMs int) bool {
			policy := Policy{
				MaxAttempts: 5,
				BaseDelay:   time.Second,
				MaxDelay:    5 * time.Minute,
				Multiplier:  2,
				Jitter:      time.Duration(jitterMs) * time.Millisecond,
			}
			delay := policy.Delay(attempt)
			return delay >= 0 && delay <= policy.MaxDelay+policy.Jitter
		},
		gen.IntRange(-5, 100),
		gen.IntRange(0, 5000),
	))

	properties.TestingRun(t)
}
