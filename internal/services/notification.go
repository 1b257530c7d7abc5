package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quotelane/lead_pipeline/internal/logger"
	"github.com/quotelane/lead_pipeline/internal/models"
	"github.com/quotelane/lead_pipeline/internal/notify"
	"github.com/quotelane/lead_pipeline/internal/retry"
)

// highScoreNotifyThreshold gates high_score_lead notifications
const highScoreNotifyThreshold = 70

// lostNotifyThreshold gates lead_lost notifications; low-scoring lost
// leads are not worth an alert
const lostNotifyThreshold = 60

// NotificationPayload describes one lead lifecycle event to fan out
type NotificationPayload struct {
	Event models.NotificationEvent `json:"event"`
	Lead  *models.ProcessedLead    `json:"lead,omitempty"`
	Score *models.LeadScore        `json:"score,omitempty"`

	// Message overrides the templated body when set
	Message string `json:"message,omitempty"`
}

// NotificationResult reports the outcome of one channel delivery
type NotificationResult struct {
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
	Error   string `json:"error,omitempty"`
}

// InAppSink persists an in-app notification for the CRM UI
type InAppSink interface {
	SaveNotification(ctx context.Context, leadID string, event models.NotificationEvent, title, body string) error
}

// DeliveryScheduler arms background redelivery for failed outbound
// webhooks. Satisfied by retry.Scheduler.
type DeliveryScheduler interface {
	ScheduleRetry(ctx context.Context, retryType string, payload models.JSONB, url string, cause error) (*models.WebhookRetryRecord, error)
}

// NotificationService fans a lead event out to every enabled channel.
// Settings are passed per call rather than cached so toggles take effect
// immediately. Channel failures are independent: one channel erroring
// never suppresses the others.
type NotificationService struct {
	email      notify.EmailSender
	sms        notify.SMSSender
	webhook    notify.WebhookSender
	inApp      InAppSink
	redelivery DeliveryScheduler
}

// NewNotificationService wires the channel sinks. Any sink may be nil;
// nil sinks report a configuration error instead of panicking.
func NewNotificationService(email notify.EmailSender, sms notify.SMSSender, webhook notify.WebhookSender, inApp InAppSink) *NotificationService {
	return &NotificationService{
		email:   email,
		sms:     sms,
		webhook: webhook,
		inApp:   inApp,
	}
}

// WithRedelivery arms background redelivery: retriable webhook channel
// failures are handed to the scheduler for the retry worker instead of
// being dropped
func (s *NotificationService) WithRedelivery(scheduler DeliveryScheduler) *NotificationService {
	s.redelivery = scheduler
	return s
}

// ShouldSend applies the notification gates for an event against the
// current settings. Digest events are controlled by the digest toggle;
// everything else requires instant alerts. Score-gated events
// additionally require the lead's score percentage to clear their
// threshold.
func (s *NotificationService) ShouldSend(settings models.CrmSettings, payload NotificationPayload) bool {
	if payload.Event.IsDigest() {
		return settings.DailyDigestEnabled
	}
	if !settings.InstantAlertsEnabled {
		return false
	}

	switch payload.Event {
	case models.NotificationHighScoreLead:
		return s.scorePercentage(payload) >= highScoreNotifyThreshold
	case models.NotificationLeadLost:
		return s.scorePercentage(payload) >= lostNotifyThreshold
	default:
		return true
	}
}

// Send fans the event out to every enabled channel and returns one
// result per channel attempted. Gated-off events return an empty slice.
func (s *NotificationService) Send(ctx context.Context, settings models.CrmSettings, payload NotificationPayload) []NotificationResult {
	if !s.ShouldSend(settings, payload) {
		logger.Debug(ctx, "Notification suppressed by settings", "event", string(payload.Event))
		return nil
	}

	rendered := s.render(payload)
	results := make([]NotificationResult, 0, 4)

	if settings.EmailEnabled {
		results = append(results, s.sendEmail(ctx, settings, rendered.subject, rendered.emailBody))
	}
	if settings.SMSEnabled {
		results = append(results, s.sendSMS(ctx, settings, rendered.shortBody))
	}
	if settings.WebhookEnabled {
		results = append(results, s.sendWebhook(ctx, settings, payload))
	}

	// In-app notifications are always on; they have no toggle
	results = append(results, s.sendInApp(ctx, payload, rendered.subject, rendered.shortBody))

	for _, res := range results {
		if res.Error != "" {
			logger.Warn(ctx, "Notification channel failed",
				"channel", res.Channel, "event", string(payload.Event), "error", res.Error)
		}
	}

	return results
}

func (s *NotificationService) sendEmail(ctx context.Context, settings models.CrmSettings, subject, body string) NotificationResult {
	res := NotificationResult{Channel: "email"}

	if s.email == nil {
		res.Error = "email sender not configured"
		return res
	}
	if !emailPattern.MatchString(settings.EmailAddress) {
		res.Error = fmt.Sprintf("invalid destination email address %q", settings.EmailAddress)
		return res
	}

	if err := s.email.SendEmail(ctx, settings.EmailAddress, subject, body); err != nil {
		res.Error = err.Error()
		return res
	}

	res.Sent = true
	return res
}

func (s *NotificationService) sendSMS(ctx context.Context, settings models.CrmSettings, body string) NotificationResult {
	res := NotificationResult{Channel: "sms"}

	if s.sms == nil {
		res.Error = "sms sender not configured"
		return res
	}
	if strings.TrimSpace(settings.SMSNumber) == "" {
		res.Error = "sms destination number is empty"
		return res
	}

	// SMS bodies are truncated to a single segment
	message := body
	if len(message) > 160 {
		message = message[:157] + "..."
	}

	if err := s.sms.SendSMS(ctx, settings.SMSNumber, message); err != nil {
		res.Error = err.Error()
		return res
	}

	res.Sent = true
	return res
}

func (s *NotificationService) sendWebhook(ctx context.Context, settings models.CrmSettings, payload NotificationPayload) NotificationResult {
	res := NotificationResult{Channel: "webhook"}

	if s.webhook == nil {
		res.Error = "webhook sender not configured"
		return res
	}
	url := strings.TrimSpace(settings.WebhookURL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		res.Error = fmt.Sprintf("invalid webhook URL %q", settings.WebhookURL)
		return res
	}

	outbound := map[string]interface{}{
		"event":     string(payload.Event),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if payload.Lead != nil {
		outbound["lead"] = payload.Lead
	}
	if payload.Score != nil {
		outbound["score"] = payload.Score
	}
	if payload.Message != "" {
		outbound["message"] = payload.Message
	}

	if err := s.webhook.SendWebhook(ctx, url, outbound); err != nil {
		res.Error = err.Error()
		s.scheduleRedelivery(ctx, url, outbound, err)
		return res
	}

	res.Sent = true
	return res
}

// scheduleRedelivery queues a retriable webhook delivery failure for the
// background worker. Permanent failures (4xx, marshal errors) stay dropped.
func (s *NotificationService) scheduleRedelivery(ctx context.Context, url string, outbound map[string]interface{}, cause error) {
	if s.redelivery == nil {
		return
	}

	var delivery *models.DeliveryError
	if !errors.As(cause, &delivery) || !delivery.IsRetriable() {
		return
	}

	record, err := s.redelivery.ScheduleRetry(ctx, retry.TypeNotificationWebhook, models.JSONB(outbound), url, cause)
	if err != nil {
		logger.Warn(ctx, "Failed to schedule webhook redelivery", "url", url, "error", err.Error())
		return
	}

	logger.Info(ctx, "Webhook delivery queued for retry", "retry_id", record.ID, "url", url)
}

func (s *NotificationService) sendInApp(ctx context.Context, payload NotificationPayload, subject, body string) NotificationResult {
	res := NotificationResult{Channel: "in_app"}

	if s.inApp == nil {
		res.Error = "in-app sink not configured"
		return res
	}

	leadID := ""
	if payload.Lead != nil {
		leadID = payload.Lead.ID
	}

	if err := s.inApp.SaveNotification(ctx, leadID, payload.Event, subject, body); err != nil {
		res.Error = err.Error()
		return res
	}

	res.Sent = true
	return res
}

// renderedNotification holds the per-channel renders of one event: a
// long-form email body and a compact string shared by SMS and in-app
type renderedNotification struct {
	subject   string
	emailBody string
	shortBody string
}

// render produces the subject and per-channel bodies for an event,
// falling back to a generic template for events without a dedicated one
func (s *NotificationService) render(payload NotificationPayload) renderedNotification {
	name := "Unknown lead"
	detail := ""
	if lead := payload.Lead; lead != nil {
		name = strings.TrimSpace(lead.FirstName + " " + lead.LastName)
		detail = fmt.Sprintf("%s | %s | score %d", lead.InsuranceType, lead.Source, lead.Score)
	}
	if payload.Score != nil {
		detail += fmt.Sprintf(" (%d%% of max)", payload.Score.Percentage)
	}

	var subject, short, headline string
	switch payload.Event {
	case models.NotificationLeadCreated:
		subject = fmt.Sprintf("New lead: %s", name)
		headline = "A new lead just came in."
		short = fmt.Sprintf("New lead %s. %s", name, detail)
	case models.NotificationLeadAssigned:
		assignee := "an agent"
		if payload.Lead != nil && payload.Lead.AssignedTo != "" {
			assignee = payload.Lead.AssignedTo
		}
		subject = fmt.Sprintf("Lead assigned: %s", name)
		headline = fmt.Sprintf("This lead was assigned to %s.", assignee)
		short = fmt.Sprintf("%s assigned to %s. %s", name, assignee, detail)
	case models.NotificationLeadConverted:
		subject = fmt.Sprintf("Lead converted: %s", name)
		headline = "This lead converted."
		short = fmt.Sprintf("%s converted. %s", name, detail)
	case models.NotificationLeadLost:
		subject = fmt.Sprintf("High-value lead lost: %s", name)
		headline = "A high-value lead was marked lost. A follow-up review may be worthwhile."
		short = fmt.Sprintf("%s marked lost. %s", name, detail)
	case models.NotificationHighScoreLead:
		subject = fmt.Sprintf("Hot lead: %s", name)
		headline = "This lead scored above the alert threshold and should be contacted promptly."
		short = fmt.Sprintf("Hot lead %s. %s", name, detail)
	case models.NotificationDailyDigest:
		subject = "Daily lead digest"
		headline = "Here is your daily lead summary."
		short = payload.Message
	default:
		subject = fmt.Sprintf("Lead update: %s", name)
		headline = fmt.Sprintf("Event %s.", payload.Event)
		short = fmt.Sprintf("Event %s for %s. %s", payload.Event, name, detail)
	}

	email := s.renderEmailBody(payload, name, headline)

	if payload.Message != "" {
		email = payload.Message
		short = payload.Message
	}

	return renderedNotification{
		subject:   subject,
		emailBody: email,
		shortBody: short,
	}
}

// renderEmailBody builds the long-form email: a greeting, the event
// headline, and one line per known lead attribute
func (s *NotificationService) renderEmailBody(payload NotificationPayload, name, headline string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Hello,\n\n%s\n\n", headline)
	fmt.Fprintf(&b, "Lead: %s\n", name)

	if lead := payload.Lead; lead != nil {
		if lead.Email != "" {
			fmt.Fprintf(&b, "Email: %s\n", lead.Email)
		}
		if lead.Phone != "" {
			fmt.Fprintf(&b, "Phone: %s\n", lead.Phone)
		}
		fmt.Fprintf(&b, "Insurance type: %s\n", lead.InsuranceType)
		fmt.Fprintf(&b, "Source: %s\n", lead.Source)
		fmt.Fprintf(&b, "Intake score: %d\n", lead.Score)
		if lead.EstimatedValue > 0 {
			fmt.Fprintf(&b, "Estimated value: $%.2f\n", lead.EstimatedValue)
		}
		if lead.AssignedTo != "" {
			fmt.Fprintf(&b, "Assigned to: %s\n", lead.AssignedTo)
		}
	}
	if payload.Score != nil {
		fmt.Fprintf(&b, "Rule score: %d of %d (%d%%)\n",
			payload.Score.Score, payload.Score.MaxScore, payload.Score.Percentage)
	}

	b.WriteString("\nOpen the CRM for full details.\n")
	return b.String()
}

func (s *NotificationService) scorePercentage(payload NotificationPayload) int {
	if payload.Score != nil {
		return payload.Score.Percentage
	}
	if payload.Lead != nil {
		// Heuristic intake score is already on a 0-100 scale
		return payload.Lead.Score
	}
	return 0
}
