package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database  DatabaseConfig
	API       APIConfig
	Worker    WorkerConfig
	Retry     RetryConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Notify    NotifyConfig
	Logging   LoggingConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// APIConfig holds API server settings
type APIConfig struct {
	Port string
	Host string
}

// WorkerConfig holds retry worker settings
type WorkerConfig struct {
	PollInterval time.Duration
}

// RetryConfig holds webhook retry tuning
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      time.Duration
}

// WebhookConfig holds inbound webhook security settings
type WebhookConfig struct {
	Secrets            map[string]string // platform -> shared secret
	TimestampTolerance time.Duration
	VerifySignature    bool
	VerifyTimestamp    bool
}

// RateLimitConfig holds per-platform rate-limit budgets
type RateLimitConfig struct {
	Window  time.Duration
	Budgets map[string]int // platform -> max requests per window
}

// NotifyConfig holds outbound notification settings
type NotifyConfig struct {
	EmailFrom   string
	AWSRegion   string
	HTTPTimeout time.Duration
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string
}

// Webhook platform identifiers. These are the only values accepted in the
// /webhooks/{platform} path and the retry dispatch table.
const (
	PlatformMeta        = "meta"
	PlatformGoogle      = "google"
	PlatformTikTok      = "tiktok"
	PlatformLandingPage = "landing_page"
	PlatformGeneric     = "generic"
)

// Platforms lists every supported webhook platform
func Platforms() []string {
	return []string{PlatformMeta, PlatformGoogle, PlatformTikTok, PlatformLandingPage, PlatformGeneric}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "lead_pipeline"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		API: APIConfig{
			Port: getEnv("API_PORT", "8080"),
			Host: getEnv("API_HOST", "0.0.0.0"),
		},
		Worker: WorkerConfig{
			PollInterval: parseDuration(getEnv("WORKER_POLL_INTERVAL", "15s"), 15*time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: parseInt(getEnv("RETRY_MAX_ATTEMPTS", "5"), 5),
			BaseDelay:   parseDuration(getEnv("RETRY_BASE_DELAY", "1s"), time.Second),
			MaxDelay:    parseDuration(getEnv("RETRY_MAX_DELAY", "5m"), 5*time.Minute),
			Multiplier:  parseFloat(getEnv("RETRY_MULTIPLIER", "2"), 2),
			Jitter:      parseDuration(getEnv("RETRY_JITTER", "1s"), time.Second),
		},
		Webhook: WebhookConfig{
			Secrets: map[string]string{
				PlatformMeta:        getEnv("META_WEBHOOK_SECRET", ""),
				PlatformGoogle:      getEnv("GOOGLE_WEBHOOK_SECRET", ""),
				PlatformTikTok:      getEnv("TIKTOK_WEBHOOK_SECRET", ""),
				PlatformLandingPage: getEnv("LANDING_PAGE_WEBHOOK_SECRET", ""),
				PlatformGeneric:     getEnv("GENERIC_WEBHOOK_SECRET", ""),
			},
			TimestampTolerance: parseDuration(getEnv("WEBHOOK_TIMESTAMP_TOLERANCE", "300s"), 300*time.Second),
			VerifySignature:    parseBool(getEnv("WEBHOOK_VERIFY_SIGNATURE", "true")),
			VerifyTimestamp:    parseBool(getEnv("WEBHOOK_VERIFY_TIMESTAMP", "true")),
		},
		RateLimit: RateLimitConfig{
			Window: parseDuration(getEnv("RATE_LIMIT_WINDOW", "1h"), time.Hour),
			Budgets: map[string]int{
				PlatformMeta:        parseInt(getEnv("META_RATE_LIMIT", "1000"), 1000),
				PlatformGoogle:      parseInt(getEnv("GOOGLE_RATE_LIMIT", "1000"), 1000),
				PlatformTikTok:      parseInt(getEnv("TIKTOK_RATE_LIMIT", "500"), 500),
				PlatformLandingPage: parseInt(getEnv("LANDING_PAGE_RATE_LIMIT", "500"), 500),
				PlatformGeneric:     parseInt(getEnv("GENERIC_RATE_LIMIT", "200"), 200),
			},
		},
		Notify: NotifyConfig{
			EmailFrom:   getEnv("NOTIFY_EMAIL_FROM", ""),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			HTTPTimeout: parseDuration(getEnv("NOTIFY_HTTP_TIMEOUT", "10s"), 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration fields are consistent
func (c *Config) Validate() error {
	if c.Webhook.VerifySignature {
		var missing []string
		for _, platform := range Platforms() {
			if c.Webhook.Secrets[platform] == "" {
				missing = append(missing, platform)
			}
		}
		if len(missing) == len(Platforms()) {
			return fmt.Errorf("signature verification enabled but no webhook secret configured (set META_WEBHOOK_SECRET etc. or WEBHOOK_VERIFY_SIGNATURE=false)")
		}
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("RETRY_MULTIPLIER must be at least 1")
	}

	for platform, budget := range c.RateLimit.Budgets {
		if budget < 1 {
			return fmt.Errorf("rate limit budget for %s must be positive", platform)
		}
	}

	return nil
}

// Secret returns the shared webhook secret for a platform, falling back to
// the generic secret for unknown platforms
func (c *WebhookConfig) Secret(platform string) string {
	if s, ok := c.Secrets[platform]; ok && s != "" {
		return s
	}
	return c.Secrets[PlatformGeneric]
}

// Budget returns the per-window request budget for a platform, falling
// back to the generic budget for unknown platforms
func (c *RateLimitConfig) Budget(platform string) int {
	if b, ok := c.Budgets[platform]; ok && b > 0 {
		return b
	}
	return c.Budgets[PlatformGeneric]
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseInt(value string, defaultValue int) int {
	var result int
	_, err := fmt.Sscanf(strings.TrimSpace(value), "%d", &result)
	if err != nil {
		return defaultValue
	}
	return result
}

func parseFloat(value string, defaultValue float64) float64 {
	var result float64
	_, err := fmt.Sscanf(strings.TrimSpace(value), "%g", &result)
	if err != nil {
		return defaultValue
	}
	return result
}

func parseBool(value string) bool {
	return value == "true" || value == "1" || value == "yes"
}
