package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tourledger/internal/retry"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventPaymentCreated       = "payment_created"
	EventPaymentStatusChanged = "payment_status_changed"
)

type PaymentEvent struct {
	Type             string    `json:"type"`
	PaymentID        string    `json:"payment_id"`
	Status           string    `json:"status"`
	PreviousStatus   string    `json:"previous_status,omitempty"`
	Amount           float64   `json:"amount"`
	InvoiceNumber    string    `json:"invoice_number"`
	BookingID        string    `json:"booking_id,omitempty"`
	TravelScheduleID string    `json:"travel_schedule_id,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

type Producer struct {
	brokers []string
	writer  *kafka.Writer
	logger  *zap.Logger
}

func NewProducer(brokers []string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}

	return &Producer{
		brokers: brokers,
		writer:  writer,
		logger:  logger,
	}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.Debug("published to kafka", zap.String("topic", topic), zap.String("key", key))
	return nil
}

// PublishWithRetry retries transient write failures with a linear backoff.
func (p *Producer) PublishWithRetry(ctx context.Context, topic, key string, payload interface{}, maxRetries int) error {
	policy := retry.Policy{MaxAttempts: maxRetries, BaseDelay: 500 * time.Millisecond}
	return retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		err := p.Publish(ctx, topic, key, payload)
		var unsupported *json.UnsupportedTypeError
		if errors.As(err, &unsupported) {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, err error, wait time.Duration) {
		p.logger.Warn("kafka publish attempt failed",
			zap.String("topic", topic),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// CheckConnection dials the first broker and lists partitions.
func (p *Producer) CheckConnection(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("failed to read partitions: %w", err)
	}

	p.logger.Info("connected to kafka", zap.Int("partitions", len(partitions)))
	return nil
}
