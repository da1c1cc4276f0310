// Package config provides configuration parsing and validation for the alert notifier.
package config

import (
	"fmt"
	"time"
)

// Email provider names accepted by -email-provider.
const (
	EmailProviderNone   = "none"
	EmailProviderSMTP   = "smtp"
	EmailProviderSES    = "ses"
	EmailProviderResend = "resend"
)

// Config holds all configuration parameters for the alert notifier.
type Config struct {
	HTTPPort string

	KafkaBrokers    string
	AlertsTopic     string
	ConsumerGroupID string
	ConsumerWorkers int
	DeadLetterTopic string // optional, dropped alerts are only logged when empty

	PostgresDSN   string
	LookupTimeout time.Duration

	RedisAddr    string
	CacheDepth   int
	CacheTimeout time.Duration

	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	StreamBuffer      int
	HeartbeatInterval time.Duration

	EmailProvider string
	EmailFrom     string
	SMSGatewayURL string // optional, SMS dispatch is disabled when empty
	DispatchRate  float64
	DispatchBurst int
}

// Validate checks that all required configuration fields are set and have valid values.
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("http-port cannot be empty")
	}
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.AlertsTopic == "" {
		return fmt.Errorf("alerts-topic cannot be empty")
	}
	if c.ConsumerGroupID == "" {
		return fmt.Errorf("consumer-group-id cannot be empty")
	}
	if c.ConsumerWorkers < 1 {
		return fmt.Errorf("consumer-workers must be at least 1")
	}
	if c.DeadLetterTopic != "" && c.DeadLetterTopic == c.AlertsTopic {
		return fmt.Errorf("dead-letter-topic must differ from alerts-topic")
	}
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres-dsn cannot be empty")
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("lookup-timeout must be positive")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	if c.CacheDepth < 1 {
		return fmt.Errorf("cache-depth must be at least 1")
	}
	if c.CacheTimeout <= 0 {
		return fmt.Errorf("cache-timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries cannot be negative")
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("retry-backoff must be positive")
	}
	if c.MaxBackoff < c.RetryBackoff {
		return fmt.Errorf("max-backoff cannot be less than retry-backoff")
	}
	if c.StreamBuffer < 1 {
		return fmt.Errorf("stream-buffer must be at least 1")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat-interval must be positive")
	}
	switch c.EmailProvider {
	case EmailProviderNone, EmailProviderSMTP, EmailProviderSES, EmailProviderResend:
	default:
		return fmt.Errorf("email-provider must be one of none, smtp, ses, resend")
	}
	if c.EmailProvider != EmailProviderNone && c.EmailFrom == "" {
		return fmt.Errorf("email-from cannot be empty")
	}
	if c.DispatchRate <= 0 {
		return fmt.Errorf("dispatch-rate must be positive")
	}
	if c.DispatchBurst < 1 {
		return fmt.Errorf("dispatch-burst must be at least 1")
	}
	return nil
}
