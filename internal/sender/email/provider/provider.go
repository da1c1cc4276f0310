// Package provider holds the email backends (SMTP, SES, Resend) and the chain that
// decides which of them carries an alert email.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoProvider is returned when no provider in the chain is configured.
var ErrNoProvider = errors.New("no configured email provider")

// Message is one alert email.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string // optional
}

// Provider is an email backend.
type Provider interface {
	// Name identifies the backend, matching the -email-provider values.
	Name() string
	Send(ctx context.Context, msg *Message) error
	// IsConfigured reports whether the backend has the credentials it needs.
	IsConfigured() bool
}

// Chain sends each message through its configured providers in order, moving on to
// the next one when a send fails. The first provider added is the preferred one.
type Chain struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewChain creates a chain trying providers in the given order.
func NewChain(providers ...Provider) *Chain {
	c := &Chain{}
	for _, p := range providers {
		c.Add(p)
	}
	return c
}

// Add appends p to the chain. A provider with the same name is replaced in place.
func (c *Chain) Add(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.providers {
		if existing.Name() == p.Name() {
			c.providers[i] = p
			return
		}
	}
	c.providers = append(c.providers, p)
	slog.Info("Added email provider", "name", p.Name(), "position", len(c.providers), "configured", p.IsConfigured())
}

// Names lists the configured providers in the order they are tried.
func (c *Chain) Names() []string {
	active := c.active()
	names := make([]string, len(active))
	for i, p := range active {
		names[i] = p.Name()
	}
	return names
}

// Configured reports whether any provider can send.
func (c *Chain) Configured() bool {
	return len(c.active()) > 0
}

func (c *Chain) active() []Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	active := make([]Provider, 0, len(c.providers))
	for _, p := range c.providers {
		if p.IsConfigured() {
			active = append(active, p)
		}
	}
	return active
}

// Send delivers msg through the first provider that accepts it. When all fail, the
// returned error wraps every provider's error, preferred provider first.
func (c *Chain) Send(ctx context.Context, msg *Message) error {
	active := c.active()
	if len(active) == 0 {
		return ErrNoProvider
	}

	var errs []error
	for i, p := range active {
		err := p.Send(ctx, msg)
		if err == nil {
			if i > 0 {
				slog.Info("Alert email sent by fallback provider", "provider", p.Name(), "failed_before", i)
			}
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(active) {
			slog.Warn("Email provider failed, trying next",
				"provider", p.Name(),
				"next", active[i+1].Name(),
				"error", err,
			)
		}
	}
	return errors.Join(errs...)
}
