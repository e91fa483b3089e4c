package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tourledger/internal/apperr"
	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/Domenick1991/tourledger/internal/metrics"
	"github.com/Domenick1991/tourledger/internal/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	errEmptyAck   = errors.New("booking service returned no acknowledgement")
	errSuperseded = errors.New("payment status moved on")
)

// FailureSink receives notifications that ran out of attempts.
type FailureSink interface {
	RecordFailure(ctx context.Context, f domain.SettlementFailure) error
}

// PaymentSource reads the current state of a payment.
type PaymentSource interface {
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
}

type Result struct {
	Delivered  bool
	Skipped    bool
	Superseded bool
	Attempts   int
	Ack       *BookingAck
	Err       error
}

type Notifier struct {
	collaborator   Collaborator
	policy         retry.Policy
	attemptTimeout time.Duration
	sink           FailureSink
	payments       PaymentSource
	metrics        *metrics.Metrics
	logger         *zap.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

type NotifierOption func(*Notifier)

func WithFailureSink(sink FailureSink) NotifierOption {
	return func(n *Notifier) {
		n.sink = sink
	}
}

// WithPaymentSource makes every attempt re-read the payment first. A notice
// whose status is no longer current is dropped instead of delivered.
func WithPaymentSource(src PaymentSource) NotifierOption {
	return func(n *Notifier) {
		n.payments = src
	}
}

func WithMetrics(m *metrics.Metrics) NotifierOption {
	return func(n *Notifier) {
		n.metrics = m
	}
}

func WithLogger(logger *zap.Logger) NotifierOption {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func NewNotifier(collaborator Collaborator, policy retry.Policy, attemptTimeout time.Duration, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		collaborator:   collaborator,
		policy:         policy,
		attemptTimeout: attemptTimeout,
		logger:         zap.NewNop(),
		tracer:         otel.Tracer("tourledger/settlement"),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify pushes the normalized status of p to the booking service. It never
// panics and never returns an error to the caller: the outcome, including
// exhaustion of the retry budget, is reported in Result only.
func (n *Notifier) Notify(ctx context.Context, p *domain.Payment) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res.Delivered = false
			res.Err = fmt.Errorf("settlement notifier panic: %v", r)
			n.logger.Error("settlement notifier panicked", zap.String("payment_id", p.ID), zap.Any("panic", r))
		}
	}()

	status, ok := p.Status.SettlementStatus()
	bookingID := p.BookingRef()
	if !ok || bookingID == "" {
		res.Skipped = true
		return res
	}

	ctx, span := n.tracer.Start(ctx, "settlement.notify", trace.WithAttributes(
		attribute.String("payment.id", p.ID),
		attribute.String("booking.id", bookingID),
		attribute.String("settlement.status", status),
	))
	defer span.End()

	err := retry.Do(ctx, n.policy, func(ctx context.Context, attempt int) error {
		if n.superseded(ctx, p) {
			return retry.Permanent(errSuperseded)
		}
		res.Attempts = attempt
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if n.attemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, n.attemptTimeout)
		}
		defer cancel()

		ack, err := n.collaborator.UpdateBookingPaymentStatus(attemptCtx, bookingID, status)
		if err == nil && ack == nil {
			err = errEmptyAck
		}
		n.metrics.SettlementAttempt(err == nil)
		if err != nil {
			return err
		}
		res.Ack = ack
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		n.logger.Warn("booking payment status update failed, retrying",
			zap.String("payment_id", p.ID),
			zap.String("booking_id", bookingID),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})
	span.SetAttributes(attribute.Int("settlement.attempts", res.Attempts))

	if errors.Is(err, errSuperseded) {
		res.Superseded = true
		n.metrics.SettlementOutcome("superseded")
		n.logger.Info("dropping stale booking payment status",
			zap.String("payment_id", p.ID),
			zap.String("booking_id", bookingID),
			zap.String("status", status),
			zap.Int("attempts", res.Attempts))
		return res
	}

	if err == nil {
		res.Delivered = true
		n.metrics.SettlementOutcome("delivered")
		n.logger.Info("booking payment status updated",
			zap.String("payment_id", p.ID),
			zap.String("booking_id", bookingID),
			zap.String("status", status),
			zap.Int("attempts", res.Attempts))
		return res
	}

	res.Err = apperr.RemoteUnavailable(err, "booking %s was not updated to %s", bookingID, status)
	span.RecordError(res.Err)
	span.SetStatus(codes.Error, "settlement exhausted")
	n.metrics.SettlementOutcome("exhausted")
	n.logger.Error("booking payment status update gave up",
		zap.String("payment_id", p.ID),
		zap.String("booking_id", bookingID),
		zap.String("status", status),
		zap.Int("attempts", res.Attempts),
		zap.Error(err))

	n.recordFailure(ctx, p, bookingID, status, res.Attempts, err)
	return res
}

// superseded reports whether p.Status is no longer the stored status. A read
// error does not block delivery.
func (n *Notifier) superseded(ctx context.Context, p *domain.Payment) bool {
	if n.payments == nil {
		return false
	}
	current, err := n.payments.GetByID(ctx, p.ID)
	if err != nil {
		n.logger.Warn("cannot re-read payment before notifying", zap.String("payment_id", p.ID), zap.Error(err))
		return false
	}
	return current.Status != p.Status
}

func (n *Notifier) recordFailure(ctx context.Context, p *domain.Payment, bookingID, status string, attempts int, cause error) {
	if n.sink == nil {
		return
	}
	failure := domain.SettlementFailure{
		ID:        uuid.NewString(),
		PaymentID: p.ID,
		BookingID: bookingID,
		Status:    status,
		Attempts:  attempts,
		LastError: cause.Error(),
		FailedAt:  n.now().UTC(),
	}
	if err := n.sink.RecordFailure(ctx, failure); err != nil {
		n.logger.Error("failed to record settlement failure",
			zap.String("payment_id", p.ID),
			zap.Error(err))
	}
}
