package settlement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/Domenick1991/tourledger/internal/metrics"
	"github.com/Domenick1991/tourledger/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Publisher interface {
	PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error
}

// publishAttempts bounds broker retries for one failure record.
const publishAttempts = 3

// KafkaFailureSink publishes exhausted notifications to a topic that the
// worker drains into the failure store.
type KafkaFailureSink struct {
	publisher Publisher
	topic     string
}

func NewKafkaFailureSink(publisher Publisher, topic string) *KafkaFailureSink {
	return &KafkaFailureSink{publisher: publisher, topic: topic}
}

func (s *KafkaFailureSink) RecordFailure(ctx context.Context, f domain.SettlementFailure) error {
	return s.publisher.PublishWithRetry(ctx, s.topic, f.PaymentID, f, publishAttempts)
}

// RepositorySink writes failures straight into the store. Used when no
// broker is configured.
type RepositorySink struct {
	repo repository.SettlementFailureRepository
}

func NewRepositorySink(repo repository.SettlementFailureRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) RecordFailure(ctx context.Context, f domain.SettlementFailure) error {
	return s.repo.Record(ctx, f)
}

// Recorder is the worker side of KafkaFailureSink.
type Recorder struct {
	repo    repository.SettlementFailureRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRecorder(repo repository.SettlementFailureRepository, m *metrics.Metrics, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, metrics: m, logger: logger}
}

// Handle stores one message. Undecodable messages are logged and dropped.
func (r *Recorder) Handle(ctx context.Context, msg kafka.Message) error {
	var f domain.SettlementFailure
	if err := json.Unmarshal(msg.Value, &f); err != nil || f.ID == "" {
		r.logger.Error("dropping malformed settlement failure",
			zap.Int64("offset", msg.Offset),
			zap.ByteString("raw_value", msg.Value),
			zap.Error(err))
		return nil
	}
	if err := r.repo.Record(ctx, f); err != nil {
		return fmt.Errorf("record settlement failure %s: %w", f.ID, err)
	}
	r.metrics.FailureRecorded()
	r.logger.Info("settlement failure recorded",
		zap.String("payment_id", f.PaymentID),
		zap.String("booking_id", f.BookingID),
		zap.Int("attempts", f.Attempts))
	return nil
}

var (
	_ FailureSink = (*KafkaFailureSink)(nil)
	_ FailureSink = (*RepositorySink)(nil)
)
