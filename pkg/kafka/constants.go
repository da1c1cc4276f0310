package kafka

import "time"

const (
	// MaxPollWait bounds how long a single fetch waits for new data on the broker.
	MaxPollWait = 500 * time.Millisecond
	// CommitInterval of zero makes CommitMessages synchronous, so an offset is
	// durable before the next alert is read.
	CommitInterval = 0
	// WriteTimeout is the maximum time to wait for a Kafka write operation.
	WriteTimeout = 10 * time.Second
	// CommitTimeout bounds a single offset commit.
	CommitTimeout = 5 * time.Second
)
