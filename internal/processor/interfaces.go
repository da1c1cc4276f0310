// Package processor turns alert change events into cached and live notifications.
package processor

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
	"github.com/unnatinarayan/garuda-notifier/internal/resolver"
)

// MessageReader reads alert change events from a message queue.
type MessageReader interface {
	// ReadMessage reads the next message and returns the decoded Alert.
	// A decode failure still returns the raw message for offset tracking.
	ReadMessage(ctx context.Context) (*events.Alert, *kafka.Message, error)

	// CommitMessage commits the offset for the given message.
	CommitMessage(ctx context.Context, msg *kafka.Message) error
}

// RecipientResolver expands an alert into per-recipient deliveries.
type RecipientResolver interface {
	Resolve(ctx context.Context, alert *events.Alert) ([]resolver.Delivery, error)
}

// NotificationCache stores notifications for users who are offline.
type NotificationCache interface {
	Append(ctx context.Context, userID string, n *events.Notification) error
}

// LivePusher delivers a notification to a user's open streams.
// Returns the number of streams that accepted it.
type LivePusher interface {
	Push(userID string, n *events.Notification) (int, error)
}

// DeadLetterPublisher records alerts that could not be delivered.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, dropped *events.DroppedAlert) error
}
