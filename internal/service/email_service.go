package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"medprep/internal/models"
)

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client     *sesv2.Client
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
}

// NewEmailService creates a new email service. An empty fromEmail yields a disabled
// service that skips every send.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string) (*EmailService, error) {
	if fromEmail == "" {
		slog.Info("email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	slog.Info("email service enabled", "from", fromEmail, "region", awsRegion)

	return &EmailService{
		client:     sesv2.NewFromConfig(cfg),
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
	}, nil
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// SendReviewReminder emails the list of sessions due soon
func (s *EmailService) SendReviewReminder(ctx context.Context, toEmail string, sessions []*models.ReviewSession) error {
	if !s.enabled {
		slog.Debug("skipping review reminder (email disabled)", "to", toEmail)
		return nil
	}
	if len(sessions) == 0 {
		return nil
	}

	subject, htmlBody, textBody := renderReminder(s.appBaseURL, sessions)
	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

func renderReminder(appBaseURL string, sessions []*models.ReviewSession) (subject, htmlBody, textBody string) {
	if len(sessions) == 1 {
		subject = "You have a review session due"
	} else {
		subject = fmt.Sprintf("You have %d review sessions due", len(sessions))
	}
	link := appBaseURL + "/reviews"

	var htmlItems, textItems strings.Builder
	for _, session := range sessions {
		due := session.ScheduledFor.UTC().Format("Mon 2 Jan 15:04 MST")
		fmt.Fprintf(&htmlItems, "\t\t\t\t<li><strong>%s</strong> (%d items) due %s</li>\n",
			html.EscapeString(session.Title), len(session.Items), due)
		fmt.Fprintf(&textItems, "- %s (%d items) due %s\n", session.Title, len(session.Items), due)
	}

	htmlBody = fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #2a7a6f; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		.button { display: inline-block; padding: 12px 30px; background-color: #2a7a6f; color: white; text-decoration: none; border-radius: 5px; margin: 20px 0; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>Time to review</h1>
		</div>
		<div class="content">
			<p>These review sessions are coming up:</p>
			<ul>
%s			</ul>
			<p style="text-align: center;">
				<a href="%s" class="button">Start reviewing</a>
			</p>
		</div>
		<div class="footer">
			<p>You can turn reminders off in your review preferences.</p>
		</div>
	</div>
</body>
</html>
`, htmlItems.String(), link)

	textBody = fmt.Sprintf(`These review sessions are coming up:

%s
Start reviewing: %s

---
You can turn reminders off in your review preferences.
`, textItems.String(), link)

	return subject, htmlBody, textBody
}

// sendEmail sends an email using Amazon SES
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
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	slog.Info("email sent", "to", toEmail, "subject", subject, "message_id", aws.ToString(result.MessageId))
	return nil
}
