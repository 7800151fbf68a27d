package services

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/poofware/verification-service/internal/config"
	"github.com/poofware/verification-service/internal/utils"
)

// Email is one outbound message.
type Email struct {
	To        string
	Subject   string
	PlainText string
	HTML      string
}

// Notifier delivers emails. Callers treat delivery as fire-and-forget.
type Notifier interface {
	SendEmail(ctx context.Context, email Email) error
}

// NewNotifier returns a SendGrid notifier, or a no-op one when no API key
// is configured.
func NewNotifier(cfg *config.Config) Notifier {
	if cfg.SendGridAPIKey == "" {
		return noopNotifier{}
	}
	return &sendgridNotifier{
		client:      sendgrid.NewSendClient(cfg.SendGridAPIKey),
		fromName:    cfg.SendgridFromName,
		fromEmail:   cfg.SendgridFromEmail,
		sandboxMode: cfg.LDFlag_SendgridSandboxMode,
	}
}

type sendgridNotifier struct {
	client      *sendgrid.Client
	fromName    string
	fromEmail   string
	sandboxMode bool
}

func (n *sendgridNotifier) SendEmail(ctx context.Context, email Email) error {
	msg := n.buildMessage(email)

	resp, err := n.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: failed to send email via sendgrid: %v", utils.ErrExternalServiceFailure, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sendgrid responded %d: %s", utils.ErrExternalServiceFailure, resp.StatusCode, resp.Body)
	}
	return nil
}

func (n *sendgridNotifier) buildMessage(email Email) *mail.SGMailV3 {
	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail("", email.To)
	msg := mail.NewSingleEmail(from, email.Subject, to, email.PlainText, email.HTML)
	if n.sandboxMode {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		msg.SetMailSettings(ms)
	}
	return msg
}

type noopNotifier struct{}

func (noopNotifier) SendEmail(_ context.Context, email Email) error {
	utils.Logger.Debugf("Notifier disabled; dropping email %q", email.Subject)
	return nil
}
