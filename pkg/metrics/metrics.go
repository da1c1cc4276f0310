// Package metrics counts what the notifier does with each alert and publishes a
// snapshot to Redis under metrics:<service>, where the platform dashboard reads it.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MetricsKeyPrefix is the Redis key prefix shared by every platform service.
	MetricsKeyPrefix = "metrics:"
	// MetricsTTL expires the snapshot if the notifier stops publishing.
	MetricsTTL = 2 * time.Minute
	// DefaultReportInterval is how often a snapshot is published.
	DefaultReportInterval = 30 * time.Second
	// ServiceName is the name the notifier reports under.
	ServiceName = "alert-notifier"
)

// Snapshot is the notifier's published state. JSON keys follow the platform's
// shared metrics document so existing dashboards can read it.
type Snapshot struct {
	Service   string    `json:"service_name"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"last_updated"`
	Status    string    `json:"status"`

	// Change events read from the feed, including skipped ones
	EventsReceived uint64 `json:"messages_received"`
	// Alerts delivered to every recipient
	AlertsProcessed uint64 `json:"messages_processed"`
	// Notifications written to at least one live stream
	LivePushes uint64 `json:"messages_published"`
	Errors     uint64 `json:"processing_errors"`

	OpenStreams int64 `json:"open_streams"`
	PeakStreams int64 `json:"peak_streams"`

	// Alerts per second since the previous publish
	AlertsPerSecond float64 `json:"messages_per_second"`
	// All-time average time from read to delivered
	AvgAlertLatencyNs float64 `json:"avg_processing_latency_ns"`

	Counters map[string]uint64 `json:"custom_counters,omitempty"`
}

// Collector accumulates notifier metrics. All methods are safe for concurrent use.
type Collector struct {
	service   string
	redis     *redis.Client
	startedAt time.Time
	interval  time.Duration

	received  atomic.Uint64
	processed atomic.Uint64
	pushed    atomic.Uint64
	errors    atomic.Uint64

	latencyTotalNs atomic.Uint64
	latencySamples atomic.Uint64

	openStreams atomic.Int64
	peakStreams atomic.Int64

	window   rateWindow
	counters counterSet

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a collector. redisClient may be nil, in which case snapshots
// are only available through GetSnapshot.
func NewCollector(service string, redisClient *redis.Client) *Collector {
	now := time.Now().UTC()
	return &Collector{
		service:   service,
		redis:     redisClient,
		startedAt: now,
		interval:  DefaultReportInterval,
		window:    rateWindow{since: now},
		counters:  counterSet{byName: make(map[string]*atomic.Uint64)},
		stopCh:    make(chan struct{}),
	}
}

// SetReportInterval changes the publish interval. Call before Start.
func (c *Collector) SetReportInterval(interval time.Duration) {
	if interval > 0 {
		c.interval = interval
	}
}

// Start publishes a snapshot every interval until ctx is done or Stop is called,
// then publishes once more.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.publish(context.Background())
				return
			case <-c.stopCh:
				c.publish(context.Background())
				return
			case <-ticker.C:
				c.publish(ctx)
			}
		}
	}()
}

// Stop ends publishing and waits for the final snapshot. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RecordReceived counts a change event read from the feed.
func (c *Collector) RecordReceived() { c.received.Add(1) }

// RecordProcessed counts an alert delivered to all its recipients.
func (c *Collector) RecordProcessed(latency time.Duration) {
	c.processed.Add(1)
	if latency > 0 {
		c.latencyTotalNs.Add(uint64(latency))
	}
	c.latencySamples.Add(1)
}

// RecordPublished counts a notification that reached a live stream.
func (c *Collector) RecordPublished() { c.pushed.Add(1) }

// RecordError counts a failure anywhere in the pipeline.
func (c *Collector) RecordError() { c.errors.Add(1) }

// StreamOpened tracks a newly connected live stream.
func (c *Collector) StreamOpened() {
	open := c.openStreams.Add(1)
	for {
		peak := c.peakStreams.Load()
		if open <= peak || c.peakStreams.CompareAndSwap(peak, open) {
			return
		}
	}
}

// StreamClosed tracks a live stream going away.
func (c *Collector) StreamClosed() { c.openStreams.Add(-1) }

// IncrementCustom bumps a named counter such as alerts_orphaned.
func (c *Collector) IncrementCustom(name string) { c.counters.get(name).Add(1) }

// AddCustom adds value to a named counter.
func (c *Collector) AddCustom(name string, value uint64) { c.counters.get(name).Add(value) }

// GetSnapshot returns the current state without publishing it.
func (c *Collector) GetSnapshot() *Snapshot {
	now := time.Now().UTC()
	processed := c.processed.Load()

	var avgNs float64
	if n := c.latencySamples.Load(); n > 0 {
		avgNs = float64(c.latencyTotalNs.Load()) / float64(n)
	}

	return &Snapshot{
		Service:           c.service,
		StartedAt:         c.startedAt,
		UpdatedAt:         now,
		Status:            "healthy",
		EventsReceived:    c.received.Load(),
		AlertsProcessed:   processed,
		LivePushes:        c.pushed.Load(),
		Errors:            c.errors.Load(),
		OpenStreams:       c.openStreams.Load(),
		PeakStreams:       c.peakStreams.Load(),
		AlertsPerSecond:   c.window.rate(processed, now),
		AvgAlertLatencyNs: avgNs,
		Counters:          c.counters.values(),
	}
}

func (c *Collector) publish(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snap := c.GetSnapshot()
	c.window.advance(snap.AlertsProcessed, snap.UpdatedAt)

	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.service, "error", err)
		return
	}

	key := MetricsKeyPrefix + c.service
	if err := c.redis.Set(ctx, key, data, MetricsTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.service, "error", err)
		return
	}
	slog.Debug("Metrics written to Redis", "service", c.service, "key", key)
}

// rateWindow measures alert throughput between publishes. Status requests read it
// concurrently with the publisher.
type rateWindow struct {
	mu        sync.Mutex
	since     time.Time
	processed uint64
}

func (w *rateWindow) rate(processed uint64, now time.Time) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	elapsed := now.Sub(w.since).Seconds()
	if elapsed <= 0 || processed < w.processed {
		return 0
	}
	return float64(processed-w.processed) / elapsed
}

func (w *rateWindow) advance(processed uint64, now time.Time) {
	w.mu.Lock()
	w.since, w.processed = now, processed
	w.mu.Unlock()
}

// counterSet holds named counters created on first use.
type counterSet struct {
	mu     sync.RWMutex
	byName map[string]*atomic.Uint64
}

func (s *counterSet) get(name string) *atomic.Uint64 {
	s.mu.RLock()
	counter, ok := s.byName[name]
	s.mu.RUnlock()
	if ok {
		return counter
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if counter, ok = s.byName[name]; !ok {
		counter = &atomic.Uint64{}
		s.byName[name] = counter
	}
	return counter
}

func (s *counterSet) values() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]uint64, len(s.byName))
	for name, counter := range s.byName {
		out[name] = counter.Load()
	}
	return out
}
