package service

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client     sesAPI
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	logger     logrus.FieldLogger
}

// NewEmailService creates a new email service. An empty fromEmail yields a
// disabled service that logs and skips every send.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string, logger logrus.FieldLogger) (*EmailService, error) {
	if fromEmail == "" {
		logger.Info("email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false, logger: logger}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	logger.WithFields(logrus.Fields{"from": fromEmail, "region": awsRegion}).Info("email service enabled")
	return newEmailService(sesv2.NewFromConfig(cfg), fromEmail, fromName, appBaseURL, logger), nil
}

func newEmailService(client sesAPI, fromEmail, fromName, appBaseURL string, logger logrus.FieldLogger) *EmailService {
	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		logger:     logger,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// SendAccountDeletedNotice confirms to a former account holder that their
// account and gallery data were removed.
func (s *EmailService) SendAccountDeletedNotice(ctx context.Context, toEmail, toName string) error {
	if !s.enabled {
		s.logger.WithField("to", toEmail).Debug("skipping account deletion notice (service disabled)")
		return nil
	}
	if toName == "" {
		toName = "there"
	}

	subject := "Your Family Gallery account has been deleted"
	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<p>Hi %s,</p>
	<p>Your Family Gallery account has been deleted. The artwork you uploaded, the invites you sent, and any family that no longer has members have been removed.</p>
	<p>If you did not expect this, reply to your family administrator.</p>
	<p style="font-size: 12px; color: #666;">This is an automated email from Family Gallery. Please do not reply.</p>
</body>
</html>
`, toName)
	textBody := fmt.Sprintf(`Hi %s,

Your Family Gallery account has been deleted. The artwork you uploaded, the invites you sent, and any family that no longer has members have been removed.

If you did not expect this, reply to your family administrator.

---
This is an automated email from Family Gallery. Please do not reply.
`, toName)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

// SendInviteEmail sends a family invite code
func (s *EmailService) SendInviteEmail(ctx context.Context, toEmail, familyName, code string) error {
	if !s.enabled {
		s.logger.WithField("to", toEmail).Debug("skipping invite email (service disabled)")
		return nil
	}

	link := fmt.Sprintf("%s/join?code=%s", s.appBaseURL, code)
	subject := fmt.Sprintf("You're invited to %s on Family Gallery", familyName)
	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<p>You have been invited to join <strong>%s</strong> on Family Gallery.</p>
	<p><a href="%s">Accept the invite</a></p>
	<p>Or enter this code: <code>%s</code></p>
</body>
</html>
`, familyName, link, code)
	textBody := fmt.Sprintf(`You have been invited to join %s on Family Gallery.

Accept the invite: %s
Invite code: %s
`, familyName, link, code)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return errors.Wrapf(err, "failed to send email to %s", toEmail)
	}

	fields := logrus.Fields{"to": toEmail, "subject": subject}
	if result != nil && result.MessageId != nil {
		fields["message_id"] = *result.MessageId
	}
	s.logger.WithFields(fields).Info("email sent")
	return nil
}
