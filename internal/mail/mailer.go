package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer delivers transactional email.
type Mailer interface {
	SendMagicLink(ctx context.Context, recipient, link string) error
}

// SendGridMailer sends through the SendGrid v3 API.
type SendGridMailer struct {
	client   *sendgrid.Client
	from     *sgmail.Email
	siteName string
	logger   *slog.Logger
}

// NewSendGrid constructs a mailer. Returns an error when the API key is
// missing so callers can fall back to the log mailer in development.
func NewSendGrid(apiKey, fromAddr, fromName, siteName string, logger *slog.Logger) (*SendGridMailer, error) {
	if apiKey == "" {
		return nil, errors.New("mail: sendgrid api key not configured")
	}
	return &SendGridMailer{
		client:   sendgrid.NewSendClient(apiKey),
		from:     sgmail.NewEmail(fromName, fromAddr),
		siteName: siteName,
		logger:   logger,
	}, nil
}

// SendMagicLink emails a one-time sign-in link.
func (m *SendGridMailer) SendMagicLink(ctx context.Context, recipient, link string) error {
	subject := fmt.Sprintf("Sign in to %s", m.siteName)
	plain := fmt.Sprintf("Click to sign in: %s\n\nThis link expires shortly and can be used once.", link)
	html := fmt.Sprintf(`<p><a href=%q>Sign in to %s</a></p><p>This link expires shortly and can be used once.</p>`, link, m.siteName)
	message := sgmail.NewSingleEmail(m.from, subject, sgmail.NewEmail("", recipient), plain, html)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("send magic link: sendgrid status %d", resp.StatusCode)
	}
	m.logger.Info("magic link sent", "status", resp.StatusCode)
	return nil
}

// LogMailer writes links to the log instead of sending email. Development
// fallback when SendGrid is not configured.
type LogMailer struct {
	Logger *slog.Logger
}

// SendMagicLink logs the link.
func (m LogMailer) SendMagicLink(_ context.Context, recipient, link string) error {
	m.Logger.Info("magic link issued", "recipient", recipient, "link", link)
	return nil
}
