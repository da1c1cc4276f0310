// Package ack handles user acknowledgments of delivered notifications.
package ack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrInvalidUser is returned when no user ID is given.
	ErrInvalidUser = errors.New("user id is required")
	// ErrInvalidAlert is returned when the alert ID is not positive.
	ErrInvalidAlert = errors.New("alert id must be positive")
)

// Remover deletes cached notifications for an alert.
type Remover interface {
	Remove(ctx context.Context, userID string, alertID int64) (int, error)
}

// Handler marks notifications as read by removing them from the offline cache.
// The caller is trusted to be userID; authentication happens upstream.
type Handler struct {
	cache Remover
}

// NewHandler creates an acknowledgment handler.
func NewHandler(cache Remover) *Handler {
	return &Handler{cache: cache}
}

// MarkRead removes the user's cached notifications for the alert and returns how many
// entries were removed. Zero means already acknowledged or already evicted.
func (h *Handler) MarkRead(ctx context.Context, userID string, alertID int64) (int, error) {
	if userID == "" {
		return 0, ErrInvalidUser
	}
	if alertID <= 0 {
		return 0, ErrInvalidAlert
	}

	removed, err := h.cache.Remove(ctx, userID, alertID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark alert %d read for user %s: %w", alertID, userID, err)
	}

	slog.Info("Notification marked read",
		"user_id", userID,
		"alert_id", alertID,
		"removed", removed,
	)
	return removed, nil
}
