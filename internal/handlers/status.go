package handlers

import (
	"net/http"
	"time"

	"github.com/unnatinarayan/garuda-notifier/pkg/metrics"
)

// StatusResponse describes the running notifier.
type StatusResponse struct {
	Service       string            `json:"service"`
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Users         int               `json:"connected_users"`
	Connections   int               `json:"open_streams"`
	Metrics       *metrics.Snapshot `json:"metrics,omitempty"`
}

// Status reports uptime, live stream occupancy and the current metrics snapshot.
// GET /api/status
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Service:       metrics.ServiceName,
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	if h.connections != nil {
		resp.Users = h.connections.Users()
		resp.Connections = h.connections.Connections()
	}
	if h.collector != nil {
		resp.Metrics = h.collector.GetSnapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health is the liveness check.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
