package main

import (
	"context"
	"log/slog"

	"github.com/unnatinarayan/garuda-notifier/internal/config"
	"github.com/unnatinarayan/garuda-notifier/internal/sender"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/email"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/email/provider"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/retry"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/sms"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/strategy"
	"github.com/unnatinarayan/garuda-notifier/pkg/shared"
)

// newEmailProviders puts the chosen provider first. A configured SMTP server backs up
// the API providers.
func newEmailProviders(ctx context.Context, cfg *config.Config) *provider.Chain {
	smtpProvider := provider.NewSMTPProvider(provider.SMTPConfig{
		Host:     shared.GetEnvOrDefault("SMTP_HOST", ""),
		Port:     shared.GetEnvOrDefault("SMTP_PORT", "1025"),
		User:     shared.GetEnvOrDefault("SMTP_USER", ""),
		Password: shared.GetEnvOrDefault("SMTP_PASSWORD", ""),
	})

	chain := provider.NewChain()
	switch cfg.EmailProvider {
	case config.EmailProviderSES:
		chain.Add(provider.NewSESProvider(ctx, shared.GetEnvOrDefault("AWS_REGION", "us-east-1")))
	case config.EmailProviderResend:
		chain.Add(provider.NewResendProvider(shared.GetEnvOrDefault("RESEND_API_KEY", "")))
	}
	chain.Add(smtpProvider)

	slog.Info("Email provider order", "providers", chain.Names())
	return chain
}

// newDispatcher builds the out-of-band dispatcher. Returns nil when no channel is
// configured; notifications are then delivered in-app only.
func newDispatcher(ctx context.Context, cfg *config.Config, counter sender.Counter) *sender.Dispatcher {
	channels := strategy.NewRegistry()

	if cfg.EmailProvider != config.EmailProviderNone {
		providers := newEmailProviders(ctx, cfg)
		if providers.Configured() {
			channels.Register(email.NewSender(providers, cfg.EmailFrom))
		} else {
			slog.Warn("No email provider is configured, email delivery disabled", "provider", cfg.EmailProvider)
		}
	}
	if cfg.SMSGatewayURL != "" {
		channels.Register(sms.NewSender(cfg.SMSGatewayURL))
	}

	if len(channels.List()) == 0 {
		slog.Info("No out-of-band channel configured, delivering in-app only")
		return nil
	}

	slog.Info("Out-of-band delivery enabled",
		"channels", channels.List(),
		"rate_per_sec", cfg.DispatchRate,
		"burst", cfg.DispatchBurst,
	)
	return sender.NewDispatcher(channels, cfg.DispatchRate, cfg.DispatchBurst,
		sender.WithRetryConfig(retryConfig(cfg)),
		sender.WithCounter(counter),
	)
}

func retryConfig(cfg *config.Config) retry.Config {
	return retry.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.RetryBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		BackoffFactor:  2.0,
	}
}
