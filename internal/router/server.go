package router

import (
	"net/http"
	"time"

	"github.com/unnatinarayan/garuda-notifier/internal/handlers"
)

// NewServer creates a new HTTP server with the router configured.
// Streaming responses manage their own deadlines per write.
func NewServer(port string, h *handlers.Handlers) *http.Server {
	router := NewRouter(h)
	return &http.Server{
		Addr:         ":" + port,
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
