package notify

import (
	"context"
	"fmt"

	mail "github.com/wneessen/go-mail"

	"github.com/quillsign/quillsigngo/internal/config"
)

// Mailer is the outbound email port. Implementations return a provider
// message ID on success.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// SMTPMailer delivers mail through a configured SMTP relay
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTPMailer creates a new SMTP-backed mailer
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send composes and delivers a single HTML message
func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return "", fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return "", fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, html)
	msg.SetMessageID()

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to send mail to %s: %w", to, err)
	}

	if ids := msg.GetGenHeader(mail.HeaderMessageID); len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}
