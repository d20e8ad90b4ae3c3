package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/outbox"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/tracing"
)

// ConfirmationPublisher forwards verified gateway events to the settlement
// topic, keyed by session so replays land on one partition.
type ConfirmationPublisher struct {
	log      *slog.Logger
	producer outbox.Producer
	topic    string
}

func NewConfirmationPublisher(log *slog.Logger, producer outbox.Producer, topic string) *ConfirmationPublisher {
	return &ConfirmationPublisher{log: log, producer: producer, topic: topic}
}

func (p *ConfirmationPublisher) Publish(ctx context.Context, ev domain.GatewayEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode gateway event: %w", err)
	}
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(ev.Type)},
		{Key: "source", Value: []byte("checkout-service")},
	}
	msg := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(ev.SessionID),
		Value:   payload,
		Headers: tracing.InjectKafkaHeaders(ctx, headers),
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish gateway event %s: %w", ev.EventID, err)
	}
	p.log.Info("gateway event published", "event_id", ev.EventID, "session_id", ev.SessionID, "type", ev.Type)
	return nil
}
