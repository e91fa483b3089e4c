package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/tourledger/internal/apperr"
	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/Domenick1991/tourledger/internal/kafka"
	"github.com/Domenick1991/tourledger/internal/metrics"
	"github.com/Domenick1991/tourledger/internal/repository"
	"github.com/Domenick1991/tourledger/internal/settlement"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// invoiceAttempts bounds regeneration when an invoice number is taken.
const invoiceAttempts = 3

type PaymentUseCase interface {
	ProcessPayment(ctx context.Context, input ProcessInput) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, paymentID, status string) (*StatusUpdate, error)
	ProcessRefund(ctx context.Context, paymentID string, amount *float64) (*domain.Payment, error)
	GenerateInvoice(ctx context.Context, paymentID string) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, lookup InvoiceLookup) (*domain.Invoice, error)
	GetSettlementStatus(ctx context.Context, lookup SettlementLookup) (*SettlementStatus, error)
}

type Notifier interface {
	Notify(ctx context.Context, p *domain.Payment) settlement.Result
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type PaymentService struct {
	payments    repository.PaymentRepository
	invoices    InvoiceNumberGenerator
	notifier    Notifier
	producer    Producer
	eventsTopic string
	metrics     *metrics.Metrics
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time

	inflight sync.WaitGroup
	queueMu  sync.Mutex
	queues   map[string]chan struct{}
}

type ServiceOption func(*PaymentService)

func WithNotifier(n Notifier) ServiceOption {
	return func(s *PaymentService) {
		s.notifier = n
	}
}

func WithEvents(producer Producer, topic string) ServiceOption {
	return func(s *PaymentService) {
		s.producer = producer
		s.eventsTopic = topic
	}
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *PaymentService) {
		s.metrics = m
	}
}

func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *PaymentService) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *PaymentService) {
		s.now = now
	}
}

func NewPaymentService(payments repository.PaymentRepository, invoices InvoiceNumberGenerator, opts ...ServiceOption) *PaymentService {
	s := &PaymentService{
		payments: payments,
		invoices: invoices,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("tourledger/payment"),
		now:      time.Now,
		queues:   make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ProcessInput struct {
	Method           string
	Amount           float64
	UserID           string
	BookingID        *string
	TravelScheduleID *string
}

type StatusUpdate struct {
	ID      string
	Status  domain.PaymentStatus
	Message string
	Payment *domain.Payment
}

// InvoiceLookup finds an invoice by payment id or by invoice number.
type InvoiceLookup struct {
	PaymentID     string
	InvoiceNumber string
}

// SettlementLookup selects the latest payment of a booking or a travel schedule.
type SettlementLookup struct {
	BookingID        string
	TravelScheduleID string
}

type SettlementStatus struct {
	IsPaid        bool
	PaymentStatus domain.PaymentStatus
	PaymentID     string
	Amount        float64
	PaidAt        *time.Time
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// maxAmount is the largest value a NUMERIC(12,2) column holds.
const maxAmount = 9_999_999_999.99

// checkAmount accepts what the payments table can store exactly: positive,
// at most maxAmount, at most two decimal places.
func checkAmount(field string, v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0) || v <= 0:
		return apperr.Validation("%s must be greater than zero", field)
	case v > maxAmount:
		return apperr.Validation("%s must be at most %.2f", field, maxAmount)
	case decimalPlaces(v) > 2:
		return apperr.Validation("%s must have at most two decimal places, got %v", field, v)
	}
	return nil
}

func decimalPlaces(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

func (s *PaymentService) ProcessPayment(ctx context.Context, input ProcessInput) (*domain.Payment, error) {
	if strings.TrimSpace(input.Method) == "" {
		return nil, apperr.Validation("payment method is required")
	}
	method, err := domain.ParsePaymentMethod(input.Method)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if err := checkAmount("amount", input.Amount); err != nil {
		return nil, err
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	bookingID, scheduleID := nonEmpty(input.BookingID), nonEmpty(input.TravelScheduleID)
	if bookingID == nil && scheduleID == nil {
		return nil, apperr.Validation("either booking id or travel schedule id is required")
	}

	ctx, span := s.tracer.Start(ctx, "payment.process", trace.WithAttributes(
		attribute.String("payment.method", string(method)),
		attribute.String("user.id", userID),
	))
	defer span.End()

	payment := &domain.Payment{
		ID:               uuid.NewString(),
		Method:           method,
		Amount:           input.Amount,
		Status:           domain.PaymentStatusPending,
		BookingID:        bookingID,
		TravelScheduleID: scheduleID,
		UserID:           userID,
	}

	for attempt := 1; ; attempt++ {
		number, err := s.invoices.Next()
		if err != nil {
			return nil, fmt.Errorf("generate invoice number: %w", err)
		}
		payment.Invoice = domain.NewInvoice(number, s.now().UTC())

		err = s.payments.Create(ctx, payment)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateInvoice) || attempt == invoiceAttempts {
			span.RecordError(err)
			return nil, fmt.Errorf("create payment: %w", err)
		}
		s.logger.Warn("invoice number collision, regenerating", zap.String("invoice_number", number))
	}
	span.SetAttributes(attribute.String("payment.id", payment.ID))

	s.metrics.PaymentTransition("NEW", string(domain.PaymentStatusPending))
	s.publish(ctx, kafka.EventPaymentCreated, payment, "")
	s.logger.Info("payment created",
		zap.String("payment_id", payment.ID),
		zap.String("invoice_number", payment.Invoice.Number),
		zap.Float64("amount", payment.Amount))
	return payment, nil
}

func (s *PaymentService) UpdateStatus(ctx context.Context, paymentID, status string) (*StatusUpdate, error) {
	target, err := domain.ParsePaymentStatus(status)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	current, err := s.get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if current.Status == target {
		return &StatusUpdate{
			ID:      current.ID,
			Status:  current.Status,
			Message: fmt.Sprintf("payment is already %s", current.Status),
			Payment: current,
		}, nil
	}

	var refund *domain.Refund
	if target == domain.PaymentStatusRefunded {
		refund = &domain.Refund{Amount: current.Amount}
	}
	updated, err := s.transition(ctx, current, target, refund)
	if err != nil {
		return nil, err
	}
	return &StatusUpdate{
		ID:      updated.ID,
		Status:  updated.Status,
		Message: fmt.Sprintf("payment status changed from %s to %s", current.Status, updated.Status),
		Payment: updated,
	}, nil
}

func (s *PaymentService) ProcessRefund(ctx context.Context, paymentID string, amount *float64) (*domain.Payment, error) {
	current, err := s.get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.PaymentStatusCompleted {
		return nil, apperr.Validation("only completed payments can be refunded, payment %s is %s", current.ID, current.Status)
	}

	refundAmount := current.Amount
	if amount != nil {
		refundAmount = *amount
	}
	if err := checkAmount("refund amount", refundAmount); err != nil {
		return nil, err
	}
	if refundAmount > current.Amount {
		return nil, apperr.Validation("refund amount must be at most %.2f", current.Amount)
	}

	return s.transition(ctx, current, domain.PaymentStatusRefunded, &domain.Refund{Amount: refundAmount})
}

// transition persists current -> target and then hands the outcome to the
// notifier. The local write is final before any notification starts.
func (s *PaymentService) transition(ctx context.Context, current *domain.Payment, target domain.PaymentStatus, refund *domain.Refund) (*domain.Payment, error) {
	if current.Status.IsTerminal() {
		return nil, apperr.Validation("payment %s is %s and can no longer change", current.ID, current.Status)
	}
	if !domain.CanTransition(current.Status, target) {
		return nil, apperr.Validation("cannot change payment status from %s to %s", current.Status, target)
	}

	ctx, span := s.tracer.Start(ctx, "payment.transition", trace.WithAttributes(
		attribute.String("payment.id", current.ID),
		attribute.String("payment.from", string(current.Status)),
		attribute.String("payment.to", string(target)),
	))
	defer span.End()

	now := s.now().UTC()
	change := repository.StatusChange{From: current.Status, To: target}
	if target == domain.PaymentStatusCompleted {
		change.CompletedAt = &now
	}
	if refund != nil {
		refund.RefundedAt = now
		change.Refund = refund
	}

	updated, err := s.payments.CompareAndSetStatus(ctx, current.ID, change)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.NotFound("payment %s not found", current.ID)
	case errors.Is(err, repository.ErrStatusChanged):
		return nil, apperr.Conflict("payment %s was changed concurrently, reload and retry", current.ID)
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("update payment %s: %w", current.ID, err)
	}

	s.metrics.PaymentTransition(string(current.Status), string(target))
	s.publish(ctx, kafka.EventPaymentStatusChanged, updated, current.Status)
	s.logger.Info("payment status changed",
		zap.String("payment_id", updated.ID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(updated.Status)))

	if updated.Status.Settles() {
		s.settle(ctx, updated)
	}
	return updated, nil
}

// settle runs the notifier detached from the caller: the request returns
// right away and the notification runs to completion even if the request
// context is cancelled. Notifications of one payment run one at a time, in
// the order their transitions were persisted.
func (s *PaymentService) settle(ctx context.Context, p *domain.Payment) {
	if s.notifier == nil {
		return
	}
	snapshot := *p
	ctx = context.WithoutCancel(ctx)

	s.queueMu.Lock()
	prev := s.queues[p.ID]
	done := make(chan struct{})
	s.queues[p.ID] = done
	s.queueMu.Unlock()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			close(done)
			s.queueMu.Lock()
			if s.queues[snapshot.ID] == done {
				delete(s.queues, snapshot.ID)
			}
			s.queueMu.Unlock()
		}()
		if prev != nil {
			<-prev
		}

		res := s.notifier.Notify(ctx, &snapshot)
		if res.Err != nil {
			s.logger.Warn("payment outcome not delivered to booking service",
				zap.String("payment_id", snapshot.ID),
				zap.Int("attempts", res.Attempts),
				zap.Error(res.Err))
		}
	}()
}

// Wait blocks until every started notification has finished.
func (s *PaymentService) Wait() {
	s.inflight.Wait()
}

func (s *PaymentService) GenerateInvoice(ctx context.Context, paymentID string) (*domain.Invoice, error) {
	p, err := s.get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return invoiceOf(p)
}

func (s *PaymentService) GetInvoice(ctx context.Context, lookup InvoiceLookup) (*domain.Invoice, error) {
	switch {
	case lookup.PaymentID != "":
		return s.GenerateInvoice(ctx, lookup.PaymentID)
	case lookup.InvoiceNumber != "":
		p, err := s.payments.GetByInvoiceNumber(ctx, lookup.InvoiceNumber)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("invoice %s not found", lookup.InvoiceNumber)
		}
		if err != nil {
			return nil, fmt.Errorf("get invoice %s: %w", lookup.InvoiceNumber, err)
		}
		return invoiceOf(p)
	default:
		return nil, apperr.Validation("payment id or invoice number is required")
	}
}

func invoiceOf(p *domain.Payment) (*domain.Invoice, error) {
	if p.Invoice.Number == "" || p.Invoice.DateIssued.IsZero() {
		return nil, apperr.NotFound("payment %s has no invoice", p.ID)
	}
	invoice := p.Invoice
	return &invoice, nil
}

func (s *PaymentService) GetSettlementStatus(ctx context.Context, lookup SettlementLookup) (*SettlementStatus, error) {
	var (
		p   *domain.Payment
		err error
		ref string
	)
	switch {
	case lookup.BookingID != "":
		ref = "booking " + lookup.BookingID
		p, err = s.payments.LatestByBooking(ctx, lookup.BookingID)
	case lookup.TravelScheduleID != "":
		ref = "travel schedule " + lookup.TravelScheduleID
		p, err = s.payments.LatestByTravelSchedule(ctx, lookup.TravelScheduleID)
	default:
		return nil, apperr.Validation("booking id or travel schedule id is required")
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("no payment for %s", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment for %s: %w", ref, err)
	}

	return &SettlementStatus{
		IsPaid:        p.Status == domain.PaymentStatusCompleted,
		PaymentStatus: p.Status,
		PaymentID:     p.ID,
		Amount:        p.Amount,
		PaidAt:        p.CompletedAt,
	}, nil
}

func (s *PaymentService) get(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, apperr.Validation("payment id is required")
	}
	p, err := s.payments.GetByID(ctx, paymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("payment %s not found", paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", paymentID, err)
	}
	return p, nil
}

func (s *PaymentService) publish(ctx context.Context, eventType string, p *domain.Payment, previous domain.PaymentStatus) {
	if s.producer == nil || s.eventsTopic == "" {
		return
	}
	event := kafka.PaymentEvent{
		Type:           eventType,
		PaymentID:      p.ID,
		Status:         string(p.Status),
		PreviousStatus: string(previous),
		Amount:         p.Amount,
		InvoiceNumber:  p.Invoice.Number,
		BookingID:      p.BookingRef(),
		OccurredAt:     s.now().UTC(),
	}
	if p.TravelScheduleID != nil {
		event.TravelScheduleID = *p.TravelScheduleID
	}
	if err := s.producer.Publish(ctx, s.eventsTopic, p.ID, event); err != nil {
		s.logger.Warn("failed to publish payment event",
			zap.String("type", eventType),
			zap.String("payment_id", p.ID),
			zap.Error(err))
	}
}

var _ PaymentUseCase = (*PaymentService)(nil)
