// Package gateway delivers notifications to connected clients in real time and replays
// the offline cache when a client connects.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
	"github.com/unnatinarayan/garuda-notifier/internal/registry"
)

// DefaultHeartbeatInterval is how often an idle stream receives a keep-alive.
const DefaultHeartbeatInterval = 25 * time.Second

var (
	// ErrInvalidUser is returned when connecting without a user ID.
	ErrInvalidUser = errors.New("user id is required")
	// ErrStreamDropped is returned by Serve when the registry dropped the stream,
	// typically because the client fell too far behind.
	ErrStreamDropped = errors.New("stream dropped")
)

// Replayer reads a user's cached notifications, newest first.
type Replayer interface {
	Replay(ctx context.Context, userID string) ([]events.Notification, error)
}

// FrameWriter writes framed messages to one client connection.
type FrameWriter interface {
	// WriteFrame writes one serialized notification.
	WriteFrame(data []byte) error
	// WriteHeartbeat writes a keep-alive that clients ignore.
	WriteHeartbeat() error
}

// Session is an open stream plus the cached notifications to send before live ones.
type Session struct {
	Stream *registry.Stream
	Replay []events.Notification
}

// Gateway connects clients to the stream registry.
type Gateway struct {
	registry  *registry.Registry
	cache     Replayer
	heartbeat time.Duration
}

// New creates a gateway. A non-positive heartbeat uses DefaultHeartbeatInterval.
func New(reg *registry.Registry, cache Replayer, heartbeat time.Duration) *Gateway {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &Gateway{
		registry:  reg,
		cache:     cache,
		heartbeat: heartbeat,
	}
}

// Connect registers a new stream for the user and loads the cached notifications to
// replay on it. The stream is registered before the cache is read, so a notification
// pushed in between is queued on the stream and may also appear in the replay.
// A cache failure is logged and yields an empty replay.
func (g *Gateway) Connect(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	stream := g.registry.Register(userID)

	replay, err := g.cache.Replay(ctx, userID)
	if err != nil {
		slog.Error("Failed to load cached notifications for replay",
			"user_id", userID,
			"stream_id", stream.ID,
			"error", err,
		)
		replay = nil
	}

	return &Session{Stream: stream, Replay: replay}, nil
}

// Disconnect removes the session's stream from the registry.
func (g *Gateway) Disconnect(userID string, session *Session) {
	if session == nil {
		return
	}
	g.registry.Unregister(userID, session.Stream)
}

// Push serializes the notification once and queues it on every stream the user has
// open. Returns the number of streams it was queued on; zero when the user is offline.
func (g *Gateway) Push(userID string, n *events.Notification) (int, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal notification %d: %w", n.AlertID, err)
	}
	return g.registry.Push(userID, data), nil
}

// Serve connects the user, writes the replay, then writes live notifications and
// heartbeats until ctx is cancelled, the stream is dropped, or a write fails. The
// stream is always disconnected on return. A cancelled ctx is a normal close.
func (g *Gateway) Serve(ctx context.Context, userID string, w FrameWriter) error {
	session, err := g.Connect(ctx, userID)
	if err != nil {
		return err
	}
	defer g.Disconnect(userID, session)

	for i := range session.Replay {
		data, err := json.Marshal(&session.Replay[i])
		if err != nil {
			slog.Warn("Skipping unserializable cached notification",
				"user_id", userID,
				"alert_id", session.Replay[i].AlertID,
				"error", err,
			)
			continue
		}
		if err := w.WriteFrame(data); err != nil {
			return fmt.Errorf("failed to write replay frame: %w", err)
		}
	}

	slog.Debug("Replay written",
		"user_id", userID,
		"stream_id", session.Stream.ID,
		"count", len(session.Replay),
	)

	ticker := time.NewTicker(g.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Stream.Done():
			return ErrStreamDropped
		case frame := <-session.Stream.C():
			if err := w.WriteFrame(frame); err != nil {
				return fmt.Errorf("failed to write frame: %w", err)
			}
		case <-ticker.C:
			if err := w.WriteHeartbeat(); err != nil {
				return fmt.Errorf("failed to write heartbeat: %w", err)
			}
		}
	}
}
