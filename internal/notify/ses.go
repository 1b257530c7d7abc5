// Package notify provides the transport sinks behind the notification
// service: SES email and signed outbound webhooks.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/quotelane/lead_pipeline/internal/logger"
)

// EmailSender delivers a rendered email to one recipient
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, textBody string) error
}

// SESSender sends email through AWS SES
type SESSender struct {
	client    *ses.Client
	fromEmail string
}

// NewSESSender creates an SES-backed sender using the default AWS
// credential chain
func NewSESSender(ctx context.Context, region, fromEmail string) (*SESSender, error) {
	if fromEmail == "" {
		return nil, fmt.Errorf("sender email address is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESSender{
		client:    ses.NewFromConfig(cfg),
		fromEmail: fromEmail,
	}, nil
}

// SendEmail sends a plain-text email via SES
func (s *SESSender) SendEmail(ctx context.Context, to, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(textBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	start := time.Now()
	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		logger.LogError(ctx, "Failed to send email", err, "to", to, "subject", subject)
		return fmt.Errorf("failed to send email: %w", err)
	}

	logger.Info(ctx, "Email sent",
		"to", to,
		"message_id", aws.ToString(result.MessageId),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
