// Package kafka holds the notifier's shared kafka-go settings: broker parsing, the
// change-feed reader config and the dead-letter writer.
package kafka

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
)

var (
	errNoBrokers = errors.New("brokers cannot be empty")
	errNoTopic   = errors.New("topic cannot be empty")
	errNoGroup   = errors.New("groupID cannot be empty")
)

// ParseBrokers splits a comma-separated broker list, dropping blank entries.
func ParseBrokers(brokers string) []string {
	var list []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			list = append(list, b)
		}
	}
	return list
}

// ValidateConsumerParams checks the settings a change-feed reader needs.
func ValidateConsumerParams(brokers, topic, groupID string) error {
	if err := ValidateProducerParams(brokers, topic); err != nil {
		return err
	}
	if groupID == "" {
		return errNoGroup
	}
	return nil
}

// ValidateProducerParams checks the settings a writer needs.
func ValidateProducerParams(brokers, topic string) error {
	switch {
	case len(ParseBrokers(brokers)) == 0:
		return errNoBrokers
	case topic == "":
		return errNoTopic
	}
	return nil
}

// NewReaderConfig returns the change-feed reader settings. Offsets are committed
// explicitly after each alert is handled. A group without a committed offset starts
// at the head of the log, so alerts written before the notifier existed are never
// replayed.
func NewReaderConfig(brokers []string, topic, groupID string) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1, // alerts are small; hand each over as soon as it lands
		MaxBytes:       10e6,
		MaxWait:        MaxPollWait,
		CommitInterval: CommitInterval,
		StartOffset:    kafka.LastOffset,
	}
}

// LogReaderConfig logs the settings a reader was built with.
func LogReaderConfig(cfg kafka.ReaderConfig) {
	start := "latest"
	if cfg.StartOffset == kafka.FirstOffset {
		start = "earliest"
	}
	slog.Info("Kafka consumer configured",
		"topic", cfg.Topic,
		"group_id", cfg.GroupID,
		"min_bytes", cfg.MinBytes,
		"max_bytes", cfg.MaxBytes,
		"max_wait", cfg.MaxWait,
		"commit_interval", cfg.CommitInterval,
		"start_offset", start,
	)
}

// NewDeadLetterWriter returns a synchronous writer that waits for the leader's ack
// and hashes keys, so every drop for one subscription lands on one partition.
func NewDeadLetterWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
}
