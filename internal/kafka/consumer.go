package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader     messageReader
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	return newConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}), logger)
}

func newConsumerWithReader(reader messageReader, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{reader: reader, logger: logger, newBackOff: handlerBackOff}
}

// handlerBackOff never gives up; a stuck handler holds its partition until
// it recovers or the worker stops.
func handlerBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume hands every message to handler and commits its offset only once
// handler has succeeded. A failing handler is retried with backoff, so an
// uncommitted message is never skipped. A cancelled context is a clean stop
// and returns nil.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.handle(ctx, msg, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d of %s/%d: %w", msg.Offset, msg.Topic, msg.Partition, err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler func(context.Context, kafka.Message) error) error {
	b := backoff.WithContext(c.newBackOff(), ctx)
	return backoff.RetryNotify(func() error {
		return handler(ctx, msg)
	}, b, func(err error, wait time.Duration) {
		c.logger.Warn("message handler failed, retrying",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})
}
