// Package email sends alert notifications by email through a provider chain.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/email/provider"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/payload"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/strategy"
)

// Sender implements email notification sending. The backend (SMTP, SES, Resend) is
// chosen by the provider chain.
type Sender struct {
	providers *provider.Chain
	from      string
}

// NewSender creates a new email sender.
func NewSender(providers *provider.Chain, from string) *Sender {
	return &Sender{
		providers: providers,
		from:      from,
	}
}

// Type returns the endpoint type this sender handles.
func (s *Sender) Type() string {
	return strategy.TypeEmail
}

// Send sends an email notification.
// The endpointValue should be a comma-separated list of email addresses.
func (s *Sender) Send(ctx context.Context, endpointValue string, n *events.Notification) error {
	if endpointValue == "" {
		return fmt.Errorf("email recipient is required")
	}

	recipients := parseRecipients(endpointValue)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid email recipients provided")
	}
	for _, recipient := range recipients {
		if !strings.Contains(recipient, "@") {
			return fmt.Errorf("invalid email address format: %q (missing @ symbol)", recipient)
		}
	}

	emailPayload := payload.BuildEmailPayload(n)
	msg := &provider.Message{
		From:    s.from,
		To:      recipients,
		Subject: emailPayload.Subject,
		Text:    emailPayload.Body,
		HTML:    emailPayload.HTML,
	}

	if err := s.providers.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.Debug("Email notification sent",
		"to", strings.Join(recipients, ", "),
		"alert_id", n.AlertID,
		"subscription_id", n.SubscriptionID,
	)
	return nil
}

// parseRecipients splits a comma-separated address list, dropping blanks.
func parseRecipients(value string) []string {
	parts := strings.Split(value, ",")
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			recipients = append(recipients, p)
		}
	}
	return recipients
}
