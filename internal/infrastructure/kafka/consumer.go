package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hubp2p/exchange-service/internal/models"
	"github.com/segmentio/kafka-go"
)

// Dispatcher handles a lifecycle event pulled off the topic. Dispatch failure
// is logged and the consumer moves on; the triggering state change has
// already committed and must never be unwound from here.
type Dispatcher interface {
	Dispatch(ctx context.Context, transactionID, kind string) error
}

type Consumer struct {
	reader     *kafka.Reader
	dispatcher Dispatcher
}

func NewConsumer(brokers []string, topic, groupID string, dispatcher Dispatcher) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		dispatcher: dispatcher,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		var event models.TransactionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			slog.Error("failed to unmarshal lifecycle event", "error", err)
			continue
		}
		if event.TransactionID == "" {
			slog.Error("lifecycle event missing transaction_id", "key", string(msg.Key))
			continue
		}

		if err := c.dispatcher.Dispatch(ctx, event.TransactionID, event.Kind); err != nil {
			// Best-effort: the attempt is already in notification_logs.
			slog.Error("notification dispatch failed", "transaction_id", event.TransactionID, "kind", event.Kind, "error", err)
			continue
		}

		slog.Info("lifecycle event dispatched", "transaction_id", event.TransactionID, "kind", event.Kind, "status", event.NewStatus)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
