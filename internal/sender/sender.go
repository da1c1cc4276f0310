// Package sender delivers notifications out of band (email, SMS) in the background.
// It uses the strategy pattern to route each contact channel to its sender.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/unnatinarayan/garuda-notifier/internal/database"
	"github.com/unnatinarayan/garuda-notifier/internal/events"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/retry"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/strategy"
	"github.com/unnatinarayan/garuda-notifier/pkg/metrics"
)

const (
	// DefaultSendTimeout bounds one channel send including its retries.
	DefaultSendTimeout = 30 * time.Second
	// DefaultMaxInFlight caps concurrent background sends; further dispatches are dropped.
	DefaultMaxInFlight = 256
)

// Counter records named out-of-band delivery outcomes.
type Counter interface {
	IncrementCustom(name string)
}

// Dispatcher sends notifications to user contacts without blocking the caller.
type Dispatcher struct {
	registry    *strategy.Registry
	limiter     *rate.Limiter
	retryCfg    retry.Config
	sendTimeout time.Duration
	counter     Counter

	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRetryConfig overrides the per-send retry budget.
func WithRetryConfig(cfg retry.Config) Option {
	return func(d *Dispatcher) { d.retryCfg = cfg }
}

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

// WithMaxInFlight overrides DefaultMaxInFlight.
func WithMaxInFlight(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.slots = make(chan struct{}, n)
		}
	}
}

// WithCounter records sent, failed and skipped dispatches.
func WithCounter(c Counter) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.counter = c
		}
	}
}

// NewDispatcher creates a dispatcher over the registered channel senders. Sends across
// all channels share one token bucket of ratePerSec with the given burst.
func NewDispatcher(registry *strategy.Registry, ratePerSec float64, burst int, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		registry:    registry,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), burst),
		retryCfg:    retry.DefaultConfig(),
		sendTimeout: DefaultSendTimeout,
		counter:     metrics.Discard,
		slots:       make(chan struct{}, DefaultMaxInFlight),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch queues one send per contact channel that has both an address and a
// registered sender. It never blocks.
func (d *Dispatcher) Dispatch(contact database.UserContact, n *events.Notification) {
	targets := d.targets(contact)
	if len(targets) == 0 {
		slog.Debug("No out-of-band channel configured, skipping",
			"user_id", contact.UserID,
			"alert_id", n.AlertID,
		)
		d.counter.IncrementCustom("dispatch_skipped")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		slog.Warn("Dispatcher closed, dropping out-of-band notification",
			"user_id", contact.UserID,
			"alert_id", n.AlertID,
		)
		return
	}

	for _, t := range targets {
		select {
		case d.slots <- struct{}{}:
		default:
			slog.Warn("Out-of-band queue full, dropping notification",
				"user_id", contact.UserID,
				"alert_id", n.AlertID,
				"channel", t.sender.Type(),
			)
			d.counter.IncrementCustom("dispatch_dropped")
			continue
		}

		d.wg.Add(1)
		go func(t target) {
			defer d.wg.Done()
			defer func() { <-d.slots }()
			d.send(contact.UserID, t, n)
		}(t)
	}
}

// Close stops accepting work and waits for in-flight sends. Sends still running when
// ctx ends are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("out-of-band sends cancelled: %w", ctx.Err())
	}
}

type target struct {
	sender  strategy.NotificationSender
	address string
}

func (d *Dispatcher) targets(contact database.UserContact) []target {
	var out []target
	if contact.Email != nil && *contact.Email != "" {
		if s, ok := d.registry.Get(strategy.TypeEmail); ok {
			out = append(out, target{sender: s, address: *contact.Email})
		}
	}
	if contact.Phone != nil && *contact.Phone != "" {
		if s, ok := d.registry.Get(strategy.TypeSMS); ok {
			out = append(out, target{sender: s, address: *contact.Phone})
		}
	}
	return out
}

func (d *Dispatcher) send(userID string, t target, n *events.Notification) {
	ctx, cancel := context.WithTimeout(d.ctx, d.sendTimeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		slog.Warn("Out-of-band send not attempted",
			"user_id", userID,
			"alert_id", n.AlertID,
			"channel", t.sender.Type(),
			"error", err,
		)
		d.counter.IncrementCustom("dispatch_failed")
		return
	}

	operation := fmt.Sprintf("send_%s_%d_%s", t.sender.Type(), n.AlertID, userID)
	err := retry.WithRetry(ctx, d.retryCfg, operation, func() error {
		return t.sender.Send(ctx, t.address, n)
	})
	if err != nil {
		slog.Error("Out-of-band send failed",
			"user_id", userID,
			"alert_id", n.AlertID,
			"channel", t.sender.Type(),
			"error", err,
		)
		d.counter.IncrementCustom("dispatch_failed")
		return
	}

	slog.Info("Out-of-band notification sent",
		"user_id", userID,
		"alert_id", n.AlertID,
		"channel", t.sender.Type(),
	)
	d.counter.IncrementCustom("dispatch_sent")
}
