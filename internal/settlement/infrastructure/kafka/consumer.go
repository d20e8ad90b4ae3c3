package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/application"
	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/idempotency"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/tracing"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Handler interface {
	Handle(ctx context.Context, ev domain.GatewayEvent) (application.Outcome, error)
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

var errStopped = errors.New("consumer stopped")

type Consumer struct {
	log         *slog.Logger
	reader      Reader
	handler     Handler
	idem        *idempotency.Store
	tracer      trace.Tracer
	maxAttempts int
	backoff     time.Duration
}

type Option func(*Consumer)

// WithRetry sets how often a failing message is retried and the base delay,
// doubled after each attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Consumer) {
		c.maxAttempts = attempts
		c.backoff = backoff
	}
}

func NewConsumer(log *slog.Logger, reader Reader, handler Handler, idem *idempotency.Store, opts ...Option) *Consumer {
	c := &Consumer{
		log:         log,
		reader:      reader,
		handler:     handler,
		idem:        idem,
		tracer:      otel.Tracer("settlement-consumer"),
		maxAttempts: 5,
		backoff:     200 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run consumes until ctx is cancelled. A message that keeps failing stops the
// consumer uncommitted, so it is redelivered after restart.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.process(ctx, msg); err != nil {
			if errors.Is(err, errStopped) {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	// The key is marked only after handling, so a crash mid-handling leaves
	// the redelivery unmarked. The settlement write is idempotent on its own.
	key := c.idem.MessageKey(msg.Topic, msg.Partition, msg.Offset)
	done, err := c.idem.IsDone(ctx, key)
	if err != nil {
		c.log.Warn("idempotency check failed", "key", key, "err", err)
	} else if done {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeGatewayEvent")
	defer span.End()

	var ev domain.GatewayEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error("unmarshal failed", "offset", msg.Offset, "err", err)
		span.SetStatus(codes.Error, "malformed message")
		c.markDone(key)
		return nil
	}

	delay := c.backoff
	for attempt := 1; ; attempt++ {
		outcome, err := c.handler.Handle(msgCtx, ev)
		if err == nil {
			c.log.Info("gateway event processed", "session_id", ev.SessionID, "outcome", outcome)
			c.markDone(key)
			return nil
		}
		span.RecordError(err)
		if apperr.KindOf(err) == apperr.KindMissingFields {
			c.log.Error("gateway event rejected", "session_id", ev.SessionID, "err", err)
			c.markDone(key)
			return nil
		}
		if attempt >= c.maxAttempts {
			span.SetStatus(codes.Error, "retries exhausted")
			return fmt.Errorf("gateway event %s failed after %d attempts: %w", ev.SessionID, attempt, err)
		}
		c.log.Warn("gateway event failed, retrying", "session_id", ev.SessionID, "attempt", attempt, "err", err)

		select {
		case <-ctx.Done():
			return errStopped
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Consumer) markDone(key string) {
	if err := c.idem.MarkDone(context.Background(), key); err != nil {
		c.log.Warn("idempotency mark failed", "key", key, "err", err)
	}
}
