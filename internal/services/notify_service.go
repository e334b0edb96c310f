package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// AWSSESNotifier sends security notices through AWS SES.
type AWSSESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

func NewAWSSESNotifier(region, fromAddress string, logger *slog.Logger) (*AWSSESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (s *AWSSESNotifier) SendSecondFactorEnabled(ctx context.Context, email string) error {
	return s.send(ctx, email,
		"Two-factor authentication enabled",
		`Two-factor authentication was just enabled on your account.

From now on, signing in will require a verification code in addition to your password.

If you did not make this change, please contact support immediately.`)
}

func (s *AWSSESNotifier) SendSecondFactorDisabled(ctx context.Context, email string) error {
	return s.send(ctx, email,
		"Two-factor authentication disabled",
		`Two-factor authentication was just disabled on your account.

Signing in now requires only your password.

If you did not make this change, please contact support immediately and consider resetting your password.`)
}

func (s *AWSSESNotifier) send(ctx context.Context, email, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send security notice via SES", slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("security notice sent", slog.String("message_id", *result.MessageId))
	return nil
}

// NoopNotifier is used when email notifications are disabled.
type NoopNotifier struct{}

func (NoopNotifier) SendSecondFactorEnabled(ctx context.Context, email string) error  { return nil }
func (NoopNotifier) SendSecondFactorDisabled(ctx context.Context, email string) error { return nil }
