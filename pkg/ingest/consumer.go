package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/impactdao/treasury-engine/internal/metrics"
	apperrors "github.com/impactdao/treasury-engine/pkg/app/errors"
	"github.com/impactdao/treasury-engine/pkg/config"
)

// Consumer pulls chain events off a durable AMQP queue and feeds them to the
// engine. Delivery is at-least-once: messages are acked only after the engine
// applied them (or recognized a redelivery), and nacked back onto the queue
// otherwise.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	retries uint
	engine  *Engine
	logger  *zap.Logger
}

// NewConsumer connects to the broker, declares the ingest queue and applies
// the configured prefetch window.
func NewConsumer(cfg *config.QueueConfig, engine *Engine, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if _, err := channel.QueueDeclare(cfg.IngestQueue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.IngestQueue, err)
	}
	if err := channel.Qos(cfg.PrefetchCount, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set prefetch count: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: channel,
		queue:   cfg.IngestQueue,
		retries: cfg.MaxRetries,
		engine:  engine,
		logger:  logger,
	}, nil
}

// Run consumes until the context is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.queue, err)
	}
	c.logger.Info("event consumer started", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", c.queue)
			}
			c.handle(ctx, delivery)
		}
	}
}

// Close releases the channel and connection.
func (c *Consumer) Close() error {
	if err := c.channel.Close(); err != nil {
		return err
	}
	return c.conn.Close()
}

func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var ev Event
	if err := json.Unmarshal(delivery.Body, &ev); err != nil {
		// A message that does not even decode will never apply; drop it.
		c.logger.Error("failed to decode event, dropping",
			zap.String("message_id", delivery.MessageId),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("ingest", "decode_failed").Inc()
		c.reject(delivery, false)
		return
	}

	err := retry.Do(
		func() error {
			return c.engine.Apply(ctx, &ev)
		},
		retry.Context(ctx),
		retry.Attempts(c.retries),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			// Malformed events stay malformed; only transient errors retry.
			return !apperrors.Is(err, apperrors.CategoryDataError)
		}),
	)
	if err != nil {
		if apperrors.Is(err, apperrors.CategoryDataError) {
			c.logger.Error("rejecting malformed event",
				zap.String("kind", string(ev.Kind)),
				zap.String("tx_hash", ev.TxHash.Hex()),
				zap.Error(err))
			c.reject(delivery, false)
			return
		}
		c.logger.Warn("event application failed, requeueing",
			zap.String("kind", string(ev.Kind)),
			zap.String("tx_hash", ev.TxHash.Hex()),
			zap.Error(err))
		c.reject(delivery, true)
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack delivery",
			zap.String("kind", string(ev.Kind)),
			zap.Uint64("delivery_tag", delivery.DeliveryTag),
			zap.Error(err))
	}
}

func (c *Consumer) reject(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		c.logger.Error("failed to nack delivery",
			zap.Uint64("delivery_tag", delivery.DeliveryTag),
			zap.Error(err))
	}
}
