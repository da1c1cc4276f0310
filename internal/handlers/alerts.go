package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/unnatinarayan/garuda-notifier/internal/ack"
	"github.com/unnatinarayan/garuda-notifier/internal/events"
)

// markReadRequest is the mark-read body. alertId is accepted as an alias of notificationId.
type markReadRequest struct {
	UserID         string     `json:"userId"`
	NotificationID flexibleID `json:"notificationId"`
	AlertID        flexibleID `json:"alertId"`
}

type markReadInput struct {
	UserID  string `validate:"required,max=128"`
	AlertID int64  `validate:"gt=0"`
}

// MarkReadResponse reports how many cached entries were removed.
type MarkReadResponse struct {
	Success bool `json:"success"`
	Removed int  `json:"removed"`
}

// MarkRead removes an acknowledged alert from the user's offline cache.
// POST /api/alerts/mark-read
func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := markReadInput{UserID: req.UserID, AlertID: int64(req.NotificationID)}
	if in.AlertID == 0 {
		in.AlertID = int64(req.AlertID)
	}
	if err := h.validate.Struct(in); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	removed, err := h.ack.MarkRead(r.Context(), in.UserID, in.AlertID)
	if err != nil {
		if errors.Is(err, ack.ErrInvalidUser) || errors.Is(err, ack.ErrInvalidAlert) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Error marking alert as read",
			"user_id", in.UserID,
			"alert_id", in.AlertID,
			"error", err,
		)
		h.metrics.IncrementCustom("mark_read_failed")
		writeError(w, http.StatusInternalServerError, "Failed to mark as read")
		return
	}

	h.metrics.IncrementCustom("alerts_marked_read")
	writeJSON(w, http.StatusOK, MarkReadResponse{Success: true, Removed: removed})
}

// ListCached returns the user's cached notifications, newest first.
// GET /api/alerts/cached/{userId}
func (h *Handlers) ListCached(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	notifications, err := h.history.Replay(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to read cached notifications", "user_id", userID, "error", err)
		h.metrics.IncrementCustom("cached_read_failed")
		writeError(w, http.StatusInternalServerError, "Failed to read cached alerts")
		return
	}
	if notifications == nil {
		notifications = []events.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}
