// Package consumer provides the Kafka consumer for the alerts change-data-capture topic.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/unnatinarayan/garuda-notifier/internal/events"
	kafkautil "github.com/unnatinarayan/garuda-notifier/pkg/kafka"
)

// Consumer wraps a Kafka reader and decodes change events into alerts.
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a new Kafka consumer with the specified brokers, topic, and group ID.
// Offsets are only committed through CommitMessage, giving at-least-once delivery.
func NewConsumer(brokers string, topic string, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	readerCfg := kafkautil.NewReaderConfig(brokerList, topic, groupID)
	reader := kafka.NewReader(readerCfg)
	kafkautil.LogReaderConfig(readerCfg)

	return &Consumer{
		reader: reader,
		topic:  topic,
	}, nil
}

// ReadMessage fetches the next change event and decodes it into an Alert.
// When decoding fails the raw message is still returned with the error so the caller
// can commit past it; such errors wrap events.ErrNotInsert or events.ErrMalformedEnvelope.
func (c *Consumer) ReadMessage(ctx context.Context) (*events.Alert, *kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read message from Kafka: %w", err)
	}

	alert, err := events.DecodeAlert(msg.Value)
	if err != nil {
		return nil, &msg, err
	}
	return alert, &msg, nil
}

// CommitMessage commits the offset for the given message.
// This should be called after the alert has been fully handled.
func (c *Consumer) CommitMessage(ctx context.Context, msg *kafka.Message) error {
	ctx, cancel := context.WithTimeout(ctx, kafkautil.CommitTimeout)
	defer cancel()
	return c.reader.CommitMessages(ctx, *msg)
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing Kafka consumer", "error", err)
		return err
	}
	slog.Info("Kafka consumer closed successfully")
	return nil
}
