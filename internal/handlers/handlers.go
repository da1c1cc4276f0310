// Package handlers provides HTTP handlers for the alert notifier API.
package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/unnatinarayan/garuda-notifier/pkg/metrics"
)

// DefaultWriteTimeout bounds each write to a streaming client.
const DefaultWriteTimeout = 10 * time.Second

// Handlers wraps dependencies for HTTP handlers.
type Handlers struct {
	streams      StreamServer
	ack          Acknowledger
	history      HistoryReader
	connections  ConnectionCounter
	metrics      MetricsRecorder
	collector    *metrics.Collector
	validate     *validator.Validate
	writeTimeout time.Duration
	startedAt    time.Time
}

// Option is a functional option for configuring Handlers.
type Option func(*Handlers)

// WithMetricsCollector records handler metrics on the service collector and exposes it
// to the router middleware.
func WithMetricsCollector(c *metrics.Collector) Option {
	return func(h *Handlers) {
		if c != nil {
			h.collector = c
			h.metrics = c
		}
	}
}

// WithMetrics sets a custom metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(h *Handlers) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithConnectionCounter enables registry occupancy in the status endpoint.
func WithConnectionCounter(c ConnectionCounter) Option {
	return func(h *Handlers) { h.connections = c }
}

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handlers) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// NewHandlers creates a new handlers instance.
func NewHandlers(streams StreamServer, ack Acknowledger, history HistoryReader, opts ...Option) *Handlers {
	h := &Handlers{
		streams:      streams,
		ack:          ack,
		history:      history,
		metrics:      metrics.Discard,
		validate:     validator.New(),
		writeTimeout: DefaultWriteTimeout,
		startedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetMetricsCollector returns the metrics collector for middleware use, or nil.
func (h *Handlers) GetMetricsCollector() *metrics.Collector {
	return h.collector
}
