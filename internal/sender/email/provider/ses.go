package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the part of the SES v2 client the provider calls.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESProvider sends alert emails through AWS SES.
type SESProvider struct {
	client SESAPI
	region string
}

// NewSESProvider loads credentials from the default AWS chain. When that fails the
// provider is left unconfigured so the chain skips it.
func NewSESProvider(ctx context.Context, region string) *SESProvider {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		slog.Warn("Failed to load AWS config, SES provider will be unavailable", "region", region, "error", err)
		return &SESProvider{region: region}
	}
	return NewSESProviderWithClient(sesv2.NewFromConfig(cfg), region)
}

// NewSESProviderWithClient wraps an existing client.
func NewSESProviderWithClient(client SESAPI, region string) *SESProvider {
	return &SESProvider{client: client, region: region}
}

func (p *SESProvider) Name() string       { return "ses" }
func (p *SESProvider) IsConfigured() bool { return p.client != nil }

// Send hands msg to SES as a simple message.
func (p *SESProvider) Send(ctx context.Context, msg *Message) error {
	if p.client == nil {
		return errors.New("ses: client not initialized")
	}
	if len(msg.To) == 0 {
		return errors.New("ses: no recipients specified")
	}

	out, err := p.client.SendEmail(ctx, sesInput(msg))
	if err != nil {
		return fmt.Errorf("ses %s: %w", p.region, err)
	}

	slog.Debug("Alert email accepted by SES",
		"message_id", aws.ToString(out.MessageId),
		"region", p.region,
		"recipients", len(msg.To),
	)
	return nil
}

func sesInput(msg *Message) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text)}
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML)}
	}
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject)},
				Body:    body,
			},
		},
	}
}
