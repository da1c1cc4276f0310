// Package cache keeps a bounded, newest-first history of notifications per user in Redis
// so clients that were offline can replay what they missed.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
)

const (
	// KeyPrefix is the Redis key prefix for per-user notification lists.
	KeyPrefix = "alerts:"
	// DefaultDepth is how many notifications are retained per user.
	DefaultDepth = 50
	// DefaultTimeout bounds each cache operation.
	DefaultTimeout = 2 * time.Second
)

// ErrTimeout is returned when a cache operation exceeds its deadline.
var ErrTimeout = errors.New("cache operation timed out")

// Cache is the Redis-backed offline notification store.
// Each user's history is a Redis list at alerts:<userId>, newest first.
type Cache struct {
	client       *redis.Client
	depth        int
	timeout      time.Duration
	removeScript *redis.Script
}

// Option configures a Cache.
type Option func(*Cache)

// WithDepth sets the number of notifications retained per user.
func WithDepth(depth int) Option {
	return func(c *Cache) {
		if depth > 0 {
			c.depth = depth
		}
	}
}

// WithTimeout sets the per-operation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// New creates a cache on top of the given Redis client.
func New(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{
		client:       client,
		depth:        DefaultDepth,
		timeout:      DefaultTimeout,
		removeScript: newRemoveScript(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the Redis key holding a user's notifications.
func Key(userID string) string {
	return KeyPrefix + userID
}

// Depth returns the per-user retention cap.
func (c *Cache) Depth() int {
	return c.depth
}

// Append prepends a notification to the user's history and trims the list to the
// retention cap. Entries beyond the cap are discarded.
func (c *Cache) Append(ctx context.Context, userID string, n *events.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification %d: %w", n.AlertID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := Key(userID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(c.depth-1))
		return nil
	})
	if err != nil {
		return c.wrap(ctx, "append", err)
	}

	slog.Debug("Cached notification",
		"user_id", userID,
		"alert_id", n.AlertID,
	)
	return nil
}

// Replay returns the user's cached notifications, newest first. Entries that no longer
// decode are skipped.
func (c *Cache) Replay(ctx context.Context, userID string) ([]events.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	entries, err := c.client.LRange(ctx, Key(userID), 0, -1).Result()
	if err != nil {
		return nil, c.wrap(ctx, "replay", err)
	}

	notifications := make([]events.Notification, 0, len(entries))
	for _, raw := range entries {
		var n events.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			slog.Warn("Skipping undecodable cached notification",
				"user_id", userID,
				"error", err,
			)
			continue
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// Remove deletes every cached notification for the user with the given alert ID and
// returns how many were removed. Removing an absent alert returns 0.
func (c *Cache) Remove(ctx context.Context, userID string, alertID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	removed, err := c.removeScript.Run(ctx, c.client, []string{Key(userID)}, strconv.FormatInt(alertID, 10)).Int()
	if err != nil {
		return 0, c.wrap(ctx, "remove", err)
	}

	slog.Debug("Removed cached notifications",
		"user_id", userID,
		"alert_id", alertID,
		"removed", removed,
	)
	return removed, nil
}

// Len returns how many notifications are cached for the user.
func (c *Cache) Len(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.client.LLen(ctx, Key(userID)).Result()
	if err != nil {
		return 0, c.wrap(ctx, "len", err)
	}
	return n, nil
}

func (c *Cache) wrap(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s after %s: %v", ErrTimeout, op, c.timeout, err)
	}
	return fmt.Errorf("cache %s failed: %w", op, err)
}
