package router

import (
	"net/http"
)

// streamPathPrefix is the live stream route; long-lived requests skip request metrics.
const streamPathPrefix = "/api/alerts/events/"

// setupRoutes configures all HTTP routes for the API.
func (r *Router) setupRoutes() {
	// Live alert stream with replay of cached alerts
	r.mux.HandleFunc("GET "+streamPathPrefix+"{userId}", r.handlers.StreamAlerts)

	// Acknowledgment
	r.mux.HandleFunc("POST /api/alerts/mark-read", r.handlers.MarkRead)

	// Cached alerts without streaming
	r.mux.HandleFunc("GET /api/alerts/cached/{userId}", r.handlers.ListCached)

	r.mux.HandleFunc("GET /api/status", r.handlers.Status)

	// Health check endpoint
	r.mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		r.handlers.Health(w, req)
	})
}
