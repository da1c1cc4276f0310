package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
}

// SMTPProvider implements email sending over SMTP. Ports 465 and 587 use TLS;
// other ports (local relays such as MailHog) use plain SMTP.
type SMTPProvider struct {
	cfg         SMTPConfig
	dialTimeout time.Duration
}

// NewSMTPProvider creates a new SMTP email provider.
func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, dialTimeout: 10 * time.Second}
}

// Name returns the provider name.
func (p *SMTPProvider) Name() string {
	return "smtp"
}

// IsConfigured returns true if a host and port are set.
func (p *SMTPProvider) IsConfigured() bool {
	return p.cfg.Host != "" && p.cfg.Port != ""
}

// Send sends an email through the configured SMTP server.
func (p *SMTPProvider) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}
	port, err := strconv.Atoi(p.cfg.Port)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %s", p.cfg.Port)
	}

	// Gmail requires the envelope sender to match the authenticated user
	from := msg.From
	if strings.Contains(p.cfg.Host, "gmail.com") && p.cfg.User != "" {
		from = p.cfg.User
	}

	raw := buildEmailMessage(from, msg.To, msg.Subject, msg.Text)
	addr := net.JoinHostPort(p.cfg.Host, p.cfg.Port)

	if port == 587 || port == 465 {
		err = p.sendWithTLS(ctx, addr, port, from, msg.To, raw)
	} else {
		var auth smtp.Auth
		if p.cfg.User != "" && p.cfg.Password != "" {
			auth = smtp.PlainAuth("", p.cfg.User, p.cfg.Password, p.cfg.Host)
		}
		err = smtp.SendMail(addr, auth, from, msg.To, raw)
	}
	if err != nil {
		if strings.Contains(err.Error(), "connection refused") {
			return fmt.Errorf("failed to send email: %w (SMTP server at %s is not available)", err, addr)
		}
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.Info("Email sent via SMTP",
		"from", from,
		"to", strings.Join(msg.To, ", "),
		"subject", msg.Subject,
		"smtp_server", addr,
	)
	return nil
}

// sendWithTLS sends over implicit TLS (465) or STARTTLS (587).
func (p *SMTPProvider) sendWithTLS(ctx context.Context, addr string, port int, from string, recipients []string, msg []byte) error {
	dialer := &net.Dialer{Timeout: p.dialTimeout}
	tlsConfig := &tls.Config{ServerName: p.cfg.Host}

	var conn net.Conn
	var err error
	if port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if port == 587 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if p.cfg.User != "" && p.cfg.Password != "" {
		auth := smtp.PlainAuth("", p.cfg.User, p.cfg.Password, p.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender %s: %w", from, err)
	}
	for _, recipient := range recipients {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err := writer.Write(msg); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write email data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := client.Quit(); err != nil {
		slog.Warn("Error during SMTP QUIT", "error", err)
	}
	return nil
}
