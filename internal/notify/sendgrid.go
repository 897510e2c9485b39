package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/config"
)

var (
	bodyPolicy = bluemonday.UGCPolicy()
	textPolicy = bluemonday.StrictPolicy()
)

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer delivers email through the SendGrid v3 API. Without an API
// key it logs and drops every message.
type SendGridMailer struct {
	client sendClient
	from   *mail.Email
	logger *zap.Logger
}

// NewSendGridMailer builds a mailer from configuration.
func NewSendGridMailer(cfg config.NotificationConfig, logger *zap.Logger) *SendGridMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &SendGridMailer{
		from:   mail.NewEmail(cfg.EmailFromName, cfg.EmailFrom),
		logger: logger,
	}
	if cfg.Enabled() {
		m.client = sendgrid.NewSendClient(cfg.SendGridAPIKey)
	} else {
		logger.Warn("SENDGRID_API_KEY not provided; email delivery disabled")
	}
	return m
}

// Send sanitizes and sends one HTML email.
func (m *SendGridMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	to = strings.TrimSpace(to)
	if !govalidator.IsEmail(to) {
		return fmt.Errorf("invalid recipient address %q", to)
	}
	if m.client == nil {
		m.logger.Debug("email skipped; mailer disabled", zap.String("to", to), zap.String("subject", subject))
		return nil
	}

	subject = cleanSubject(subject)
	body := bodyPolicy.Sanitize(htmlBody)
	plain := strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(htmlBody)))

	message := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", to), plain, body)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	m.logger.Debug("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func cleanSubject(subject string) string {
	subject = html.UnescapeString(textPolicy.Sanitize(subject))
	subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(subject)
	return strings.TrimSpace(subject)
}
