package handlers

import (
	"context"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
	"github.com/unnatinarayan/garuda-notifier/internal/gateway"
)

// StreamServer streams a user's notifications to one connection.
type StreamServer interface {
	Serve(ctx context.Context, userID string, w gateway.FrameWriter) error
}

// Acknowledger marks a user's notification as read.
type Acknowledger interface {
	MarkRead(ctx context.Context, userID string, alertID int64) (int, error)
}

// HistoryReader reads a user's cached notifications, newest first.
type HistoryReader interface {
	Replay(ctx context.Context, userID string) ([]events.Notification, error)
}

// ConnectionCounter reports live stream registry occupancy.
type ConnectionCounter interface {
	Users() int
	Connections() int
}

// MetricsRecorder defines the metrics operations needed by handlers.
type MetricsRecorder interface {
	IncrementCustom(name string)
}
