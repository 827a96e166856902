package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/rongwang/leasehub-server/internal/config"
)

// Mailer sends a plain-text email to one address
type Mailer interface {
	Send(ctx context.Context, to, subject, text string) error
}

// ResendMailer delivers email through Resend
type ResendMailer struct {
	client *resend.Client
	from   string
}

// NewMailer returns a Resend mailer, or a no-op mailer when email is disabled
func NewMailer(cfg config.EmailConfig) Mailer {
	if !cfg.Enabled || cfg.APIKey == "" {
		return NoopMailer{}
	}

	return &ResendMailer{
		client: resend.NewClient(cfg.APIKey),
		from:   cfg.FromAddress,
	}
}

func (m *ResendMailer) Send(ctx context.Context, to, subject, text string) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Text:    text,
	}

	if _, err := m.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

// NoopMailer drops every message
type NoopMailer struct{}

func (NoopMailer) Send(context.Context, string, string, string) error { return nil }
