package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
	"github.com/unnatinarayan/garuda-notifier/internal/resolver"
	"github.com/unnatinarayan/garuda-notifier/internal/sender/retry"
	"github.com/unnatinarayan/garuda-notifier/pkg/metrics"
)

// readErrorBackoff pauses the loop after a failed read so a broken broker
// connection does not spin.
const readErrorBackoff = 500 * time.Millisecond

// Options holds the optional collaborators of a Processor.
type Options struct {
	// Retry is the budget for resolving an alert and for each cache append.
	Retry retry.Config
	// DeadLetters receives alerts dropped after the retry budget. May be nil.
	DeadLetters DeadLetterPublisher
	// Metrics defaults to metrics.Discard.
	Metrics MetricsRecorder
}

// Processor consumes alert change events and delivers them to recipients.
type Processor struct {
	reader      MessageReader
	resolver    RecipientResolver
	cache       NotificationCache
	pusher      LivePusher
	deadLetters DeadLetterPublisher
	retryCfg    retry.Config
	metrics     MetricsRecorder
}

// NewProcessor creates a processor with no-op metrics and the default retry budget.
func NewProcessor(reader MessageReader, res RecipientResolver, cache NotificationCache, pusher LivePusher) *Processor {
	return NewProcessorWithOptions(reader, res, cache, pusher, Options{Retry: retry.DefaultConfig()})
}

// NewProcessorWithOptions creates a processor with the given options.
func NewProcessorWithOptions(reader MessageReader, res RecipientResolver, cache NotificationCache, pusher LivePusher, opts Options) *Processor {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Discard
	}
	return &Processor{
		reader:      reader,
		resolver:    res,
		cache:       cache,
		pusher:      pusher,
		deadLetters: opts.DeadLetters,
		retryCfg:    opts.Retry,
		metrics:     opts.Metrics,
	}
}

// ProcessAlerts reads change events until ctx is cancelled or the reader is closed.
// An offset is committed only once its alert has been cached and pushed for every
// recipient, skipped as permanently undeliverable, or dropped after the retry budget.
func (p *Processor) ProcessAlerts(ctx context.Context) error {
	slog.Info("Starting alert processing loop")

	for {
		select {
		case <-ctx.Done():
			slog.Info("Alert processing loop stopped")
			return nil
		default:
		}

		alert, msg, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				slog.Info("Alert reader closed, stopping processing loop")
				return nil
			}
			if msg != nil {
				p.metrics.RecordReceived()
				p.skip(ctx, msg, err)
				continue
			}
			slog.Error("Failed to read alert change event", "error", err)
			p.metrics.RecordError()
			sleep(ctx, readErrorBackoff)
			continue
		}

		p.metrics.RecordReceived()

		if !p.processAlert(ctx, alert, msg) {
			continue
		}
		p.commit(ctx, msg, alert.ID)
	}
}

// skip commits past a change event that carries no deliverable alert.
func (p *Processor) skip(ctx context.Context, msg *kafka.Message, cause error) {
	if errors.Is(cause, events.ErrMalformedEnvelope) {
		slog.Warn("Skipping malformed change event",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", cause,
		)
		p.metrics.RecordError()
	} else {
		slog.Debug("Skipping change event",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"reason", cause,
		)
	}
	p.metrics.IncrementCustom("alerts_skipped")
	p.commit(ctx, msg, 0)
}

// processAlert resolves, caches and pushes one alert.
// Returns true if the message should be committed.
func (p *Processor) processAlert(ctx context.Context, alert *events.Alert, msg *kafka.Message) bool {
	startTime := time.Now()

	if alert.CreatedAt.IsZero() && !msg.Time.IsZero() {
		alert.CreatedAt = msg.Time.UTC()
	}

	slog.Debug("Received alert",
		"alert_id", alert.ID,
		"subscription_id", alert.SubscriptionID,
	)

	deliveries, err := p.resolve(ctx, alert)
	if err != nil {
		return p.handleResolveFailure(ctx, alert, err)
	}

	cached, pushed := 0, 0
	for _, d := range deliveries {
		if ctx.Err() != nil {
			break
		}
		if p.appendToCache(ctx, alert, d) {
			cached++
		}
		if p.push(alert, d) {
			pushed++
		}
	}

	if ctx.Err() != nil {
		// Interrupted mid-delivery; leave the offset so the alert is redelivered
		slog.Info("Alert delivery interrupted by shutdown",
			"alert_id", alert.ID,
			"cached", cached,
			"pushed_live", pushed,
		)
		return false
	}

	p.metrics.RecordProcessed(time.Since(startTime))

	slog.Info("Processed alert",
		"alert_id", alert.ID,
		"subscription_id", alert.SubscriptionID,
		"recipients", len(deliveries),
		"cached", cached,
		"pushed_live", pushed,
	)
	return true
}

func (p *Processor) resolve(ctx context.Context, alert *events.Alert) ([]resolver.Delivery, error) {
	var deliveries []resolver.Delivery
	operation := fmt.Sprintf("resolve_alert_%d", alert.ID)
	err := retry.WithRetryIf(ctx, p.retryCfg, operation, isTransientLookupError, func() error {
		var err error
		deliveries, err = p.resolver.Resolve(ctx, alert)
		return err
	})
	return deliveries, err
}

// isTransientLookupError treats every lookup failure as worth retrying except a
// missing subscription.
func isTransientLookupError(err error) bool {
	return !errors.Is(err, resolver.ErrSubscriptionNotFound) && !errors.Is(err, context.Canceled)
}

// handleResolveFailure reports whether the alert should still be committed.
func (p *Processor) handleResolveFailure(ctx context.Context, alert *events.Alert, err error) bool {
	if ctx.Err() != nil {
		// Shutting down; leave the offset for redelivery
		return false
	}

	if errors.Is(err, resolver.ErrSubscriptionNotFound) {
		slog.Warn("Skipping orphaned alert",
			"alert_id", alert.ID,
			"subscription_id", alert.SubscriptionID,
			"error", err,
		)
		p.metrics.IncrementCustom("alerts_orphaned")
		return true
	}

	attempts := 1
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		attempts = exhausted.Attempts
	}

	slog.Error("Dropping alert after failed recipient resolution",
		"alert_id", alert.ID,
		"subscription_id", alert.SubscriptionID,
		"attempts", attempts,
		"error", err,
	)
	p.metrics.RecordError()
	p.metrics.IncrementCustom("alerts_dropped")

	if p.deadLetters != nil {
		dropped := &events.DroppedAlert{
			Alert:     alert,
			Reason:    err.Error(),
			Attempts:  attempts,
			DroppedAt: time.Now().UTC(),
		}
		if err := p.deadLetters.Publish(ctx, dropped); err != nil {
			slog.Error("Failed to publish dropped alert",
				"alert_id", alert.ID,
				"error", err,
			)
		}
	}
	return true
}

// appendToCache stores the notification for replay. A failure after the retry budget
// loses this recipient's copy from the cache only; live delivery still proceeds.
func (p *Processor) appendToCache(ctx context.Context, alert *events.Alert, d resolver.Delivery) bool {
	operation := fmt.Sprintf("cache_append_%d_%s", alert.ID, d.UserID)
	err := retry.WithRetryIf(ctx, p.retryCfg, operation, isTransientCacheError, func() error {
		return p.cache.Append(ctx, d.UserID, d.Notification)
	})
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		slog.Error("Dropping cached notification",
			"alert_id", alert.ID,
			"user_id", d.UserID,
			"error", err,
		)
		p.metrics.RecordError()
		p.metrics.IncrementCustom("cache_append_failed")
		return false
	}
	p.metrics.IncrementCustom("notifications_cached")
	return true
}

func isTransientCacheError(err error) bool {
	return !errors.Is(err, context.Canceled)
}

func (p *Processor) push(alert *events.Alert, d resolver.Delivery) bool {
	delivered, err := p.pusher.Push(d.UserID, d.Notification)
	if err != nil {
		slog.Error("Failed to push notification",
			"alert_id", alert.ID,
			"user_id", d.UserID,
			"error", err,
		)
		p.metrics.RecordError()
		return false
	}
	if delivered == 0 {
		return false
	}
	p.metrics.RecordPublished()
	p.metrics.IncrementCustom("notifications_pushed")
	return true
}

func (p *Processor) commit(ctx context.Context, msg *kafka.Message, alertID int64) {
	if err := p.reader.CommitMessage(ctx, msg); err != nil {
		slog.Error("Failed to commit offset",
			"alert_id", alertID,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		p.metrics.RecordError()
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
