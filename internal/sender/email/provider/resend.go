package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// resendEmails is the part of the Resend client the provider calls.
type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendProvider sends alert emails through the Resend API.
type ResendProvider struct {
	emails resendEmails
}

// NewResendProvider creates a Resend provider. An empty API key leaves it unconfigured
// so the chain skips it.
func NewResendProvider(apiKey string) *ResendProvider {
	if apiKey == "" {
		slog.Warn("RESEND_API_KEY not set, Resend provider will be unavailable")
		return &ResendProvider{}
	}
	return &ResendProvider{emails: resend.NewClient(apiKey).Emails}
}

func (p *ResendProvider) Name() string       { return "resend" }
func (p *ResendProvider) IsConfigured() bool { return p.emails != nil }

// Send posts msg to Resend, carrying both the text and HTML parts when present.
func (p *ResendProvider) Send(ctx context.Context, msg *Message) error {
	if p.emails == nil {
		return errors.New("resend: no API key")
	}
	if len(msg.To) == 0 {
		return errors.New("resend: no recipients specified")
	}

	sent, err := p.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}

	slog.Debug("Alert email accepted by Resend", "email_id", sent.Id, "recipients", len(msg.To))
	return nil
}
