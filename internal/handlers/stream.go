package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/unnatinarayan/garuda-notifier/internal/gateway"
)

var (
	frameSuffix = []byte("\n\n")
	heartbeat   = []byte(": ping\n\n")
)

// sseWriter frames notifications as server-sent events. Every write gets its own
// deadline, replacing the server-wide timeouts for the life of the stream.
type sseWriter struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
}

func newSSEWriter(w http.ResponseWriter, writeTimeout time.Duration) *sseWriter {
	return &sseWriter{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
	}
}

func (s *sseWriter) start() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	// The server read timeout would otherwise cancel the request mid-stream
	if err := s.rc.SetReadDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("failed to clear read deadline: %w", err)
	}
	if err := s.extendDeadline(); err != nil {
		return err
	}
	s.w.WriteHeader(http.StatusOK)
	return s.rc.Flush()
}

// WriteFrame writes one "data:" event.
func (s *sseWriter) WriteFrame(data []byte) error {
	if err := s.extendDeadline(); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if _, err := s.w.Write(frameSuffix); err != nil {
		return err
	}
	return s.rc.Flush()
}

// WriteHeartbeat writes an SSE comment line.
func (s *sseWriter) WriteHeartbeat() error {
	if err := s.extendDeadline(); err != nil {
		return err
	}
	if _, err := s.w.Write(heartbeat); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseWriter) extendDeadline() error {
	err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	return nil
}

// StreamAlerts opens a server-sent event stream: cached notifications first, then live
// ones, until the client disconnects.
// GET /api/alerts/events/{userId}
func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	sse := newSSEWriter(w, h.writeTimeout)
	if err := sse.start(); err != nil {
		slog.Error("Failed to open alert stream", "user_id", userID, "error", err)
		return
	}

	start := time.Now()
	slog.Info("Alert stream opened", "user_id", userID, "remote_addr", r.RemoteAddr)

	err := h.streams.Serve(r.Context(), userID, sse)
	switch {
	case err == nil:
		slog.Info("Alert stream closed", "user_id", userID, "duration", time.Since(start))
	case errors.Is(err, gateway.ErrStreamDropped):
		slog.Warn("Alert stream dropped, client too slow", "user_id", userID, "duration", time.Since(start))
		h.metrics.IncrementCustom("streams_dropped")
	default:
		slog.Info("Alert stream ended", "user_id", userID, "duration", time.Since(start), "reason", err)
	}
}
