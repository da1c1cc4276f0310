// Package producer publishes alerts that could not be delivered to a dead-letter topic.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
	kafkautil "github.com/unnatinarayan/garuda-notifier/pkg/kafka"
)

// Producer wraps a Kafka writer for dropped alerts.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer with the specified brokers and topic.
// Writes are synchronous and wait for the leader's ack.
func NewProducer(brokers string, topic string) (*Producer, error) {
	if err := kafkautil.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing dead-letter producer",
		"brokers", brokerList,
		"topic", topic,
	)

	return &Producer{
		writer: kafkautil.NewDeadLetterWriter(brokerList, topic),
		topic:  topic,
	}, nil
}

// buildMessage creates a Kafka message from a DroppedAlert, keyed by subscription_id
// so every drop for one subscription lands on the same partition.
func buildMessage(dropped *events.DroppedAlert) (kafka.Message, error) {
	if dropped.Alert == nil {
		return kafka.Message{}, fmt.Errorf("dropped alert has no alert")
	}

	payload, err := json.Marshal(dropped)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal dropped alert: %w", err)
	}

	return kafka.Message{
		Key:   []byte(strconv.FormatInt(dropped.Alert.SubscriptionID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(strconv.FormatInt(dropped.Alert.ID, 10))},
			{Key: "reason", Value: []byte(dropped.Reason)},
		},
		Time: time.Now(),
	}, nil
}

// Publish writes a dropped alert to the dead-letter topic.
func (p *Producer) Publish(ctx context.Context, dropped *events.DroppedAlert) error {
	msg, err := buildMessage(dropped)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	slog.Info("Published dropped alert",
		"alert_id", dropped.Alert.ID,
		"subscription_id", dropped.Alert.SubscriptionID,
		"reason", dropped.Reason,
		"topic", p.topic,
	)
	return nil
}

// Close gracefully closes the Kafka writer and releases resources.
func (p *Producer) Close() error {
	slog.Info("Closing dead-letter producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		slog.Error("Error closing dead-letter producer", "error", err)
		return err
	}
	return nil
}
