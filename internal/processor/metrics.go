package processor

import "time"

// MetricsRecorder receives the processor's per-alert outcomes. *metrics.Collector
// implements it; metrics.Discard is used when none is configured.
type MetricsRecorder interface {
	// RecordReceived counts every change event read, deliverable or not.
	RecordReceived()
	// RecordProcessed counts an alert cached and pushed for all recipients.
	RecordProcessed(latency time.Duration)
	// RecordPublished counts a notification that reached a live stream.
	RecordPublished()
	RecordError()
	// IncrementCustom counts outcomes such as alerts_orphaned or cache_append_failed.
	IncrementCustom(name string)
}
