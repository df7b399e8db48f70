package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

// MessageHandler processes one message value.
type MessageHandler func(ctx context.Context, key, value []byte) error

// fetchErrorWindow is how long a broker error keeps Ping failing.
const fetchErrorWindow = 30 * time.Second

// Consumer reads the analytics topic as part of a consumer group. A message
// the handler rejects is logged and committed anyway, so one bad event
// cannot stall the group.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	logger  *slog.Logger

	processed atomic.Int64
	rejected  atomic.Int64
	lastError atomic.Pointer[fetchError]
}

type fetchError struct {
	at  time.Time
	err error
}

func NewConsumer(cfg config.KafkaConfig, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			Topic:          cfg.Topic,
			GroupID:        cfg.ConsumerGroup,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        500 * time.Millisecond,
			CommitInterval: time.Second,
			StartOffset:    kafka.FirstOffset,
		}),
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", cfg.Topic),
	}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		switch {
		case ctx.Err() != nil:
			c.logger.Info("consumer stopped", "processed", c.processed.Load(), "rejected", c.rejected.Load())
			return nil
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			c.lastError.Store(&fetchError{at: time.Now(), err: err})
			c.logger.Warn("fetch failed", "error", err)
			continue
		}

		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.rejected.Add(1)
			c.logger.Warn("message rejected", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		} else {
			c.processed.Add(1)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// Ping fails while the last broker error is recent, for readiness checks.
func (c *Consumer) Ping(context.Context) error {
	if fe := c.lastError.Load(); fe != nil && time.Since(fe.at) < fetchErrorWindow {
		return fmt.Errorf("last fetch %s ago: %w", time.Since(fe.at).Round(time.Second), fe.err)
	}
	return nil
}

// Counts reports how many messages were handled and rejected.
func (c *Consumer) Counts() (processed, rejected int64) {
	return c.processed.Load(), c.rejected.Load()
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("decoding message: %w", err)
	}
	return out, nil
}
