package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/tourledger/internal/apperr"
	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/Domenick1991/tourledger/internal/metrics"
	"github.com/Domenick1991/tourledger/internal/repository/memory"
	"github.com/Domenick1991/tourledger/internal/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCollaborator struct {
	mock.Mock
}

func (m *MockCollaborator) UpdateBookingPaymentStatus(ctx context.Context, bookingID, status string) (*BookingAck, error) {
	args := m.Called(ctx, bookingID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BookingAck), args.Error(1)
}

type MockFailureSink struct {
	mock.Mock
}

func (m *MockFailureSink) RecordFailure(ctx context.Context, f domain.SettlementFailure) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

var fastPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

func completedPayment() *domain.Payment {
	booking := "B1"
	return &domain.Payment{ID: "p1", Status: domain.PaymentStatusCompleted, BookingID: &booking}
}

func TestNotifier_SucceedsOnThirdAttempt(t *testing.T) {
	collab := &MockCollaborator{}
	sink := &MockFailureSink{}
	ack := &BookingAck{ID: "B1", PaymentStatus: "PAID", Status: "CONFIRMED"}
	collab.On("UpdateBookingPaymentStatus", mock.Anything, "B1", "PAID").Return(nil, errors.New("connection refused")).Twice()
	collab.On("UpdateBookingPaymentStatus", mock.Anything, "B1", "PAID").Return(ack, nil).Once()

	n := NewNotifier(collab, fastPolicy, time.Second, WithFailureSink(sink), WithMetrics(metrics.New(prometheus.NewRegistry())))
	res := n.Notify(context.Background(), completedPayment())

	assert.True(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, ack, res.Ack)
	assert.NoError(t, res.Err)
	collab.AssertNumberOfCalls(t, "UpdateBookingPaymentStatus", 3)
	sink.AssertNotCalled(t, "RecordFailure", mock.Anything, mock.Anything)
}

func TestNotifier_AlwaysFailing(t *testing.T) {
	collab := &MockCollaborator{}
	sink := &MockFailureSink{}
	collab.On("UpdateBookingPaymentStatus", mock.Anything, "B1", "REFUNDED").Return(nil, errors.New("503"))
	sink.On("RecordFailure", mock.Anything, mock.MatchedBy(func(f domain.SettlementFailure) bool {
		return f.PaymentID == "p1" && f.BookingID == "B1" && f.Status == "REFUNDED" && f.Attempts == 3 && f.ID != ""
	})).Return(nil).Once()

	p := completedPayment()
	p.Status = domain.PaymentStatusRefunded

	n := NewNotifier(collab, fastPolicy, time.Second, WithFailureSink(sink))
	var res Result
	assert.NotPanics(t, func() { res = n.Notify(context.Background(), p) })

	assert.False(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, apperr.IsRemoteUnavailable(res.Err))
	collab.AssertNumberOfCalls(t, "UpdateBookingPaymentStatus", 3)
	sink.AssertExpectations(t)
}

func TestNotifier_NilAckIsFailure(t *testing.T) {
	collab := &MockCollaborator{}
	collab.On("UpdateBookingPaymentStatus", mock.Anything, "B1", "PAID").Return(nil, nil)

	res := NewNotifier(collab, fastPolicy, time.Second).Notify(context.Background(), completedPayment())

	assert.False(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.ErrorIs(t, res.Err, errEmptyAck)
}

func TestNotifier_Skips(t *testing.T) {
	collab := &MockCollaborator{}
	n := NewNotifier(collab, fastPolicy, time.Second)

	pending := completedPayment()
	pending.Status = domain.PaymentStatusPending
	assert.True(t, n.Notify(context.Background(), pending).Skipped)

	noBooking := completedPayment()
	noBooking.BookingID = nil
	assert.True(t, n.Notify(context.Background(), noBooking).Skipped)

	collab.AssertNotCalled(t, "UpdateBookingPaymentStatus", mock.Anything, mock.Anything, mock.Anything)
}

type stubPayments struct {
	payment *domain.Payment
	err     error
}

func (s stubPayments) GetByID(context.Context, string) (*domain.Payment, error) {
	return s.payment, s.err
}

func TestNotifier_DropsSupersededNotice(t *testing.T) {
	collab := &MockCollaborator{}
	sink := &MockFailureSink{}
	refunded := completedPayment()
	refunded.Status = domain.PaymentStatusRefunded

	n := NewNotifier(collab, fastPolicy, time.Second, WithFailureSink(sink), WithPaymentSource(stubPayments{payment: refunded}))
	res := n.Notify(context.Background(), completedPayment())

	assert.True(t, res.Superseded)
	assert.False(t, res.Delivered)
	assert.NoError(t, res.Err)
	collab.AssertNotCalled(t, "UpdateBookingPaymentStatus", mock.Anything, mock.Anything, mock.Anything)
	sink.AssertNotCalled(t, "RecordFailure", mock.Anything, mock.Anything)
}

func TestNotifier_SourceErrorDoesNotBlockDelivery(t *testing.T) {
	collab := &MockCollaborator{}
	collab.On("UpdateBookingPaymentStatus", mock.Anything, "B1", "PAID").Return(&BookingAck{ID: "B1"}, nil).Once()

	n := NewNotifier(collab, fastPolicy, time.Second, WithPaymentSource(stubPayments{err: errors.New("db down")}))
	res := n.Notify(context.Background(), completedPayment())

	assert.True(t, res.Delivered)
	collab.AssertExpectations(t)
}

type slowCollaborator struct {
	mu        sync.Mutex
	deadlines []bool
}

func (s *slowCollaborator) UpdateBookingPaymentStatus(ctx context.Context, _, _ string) (*BookingAck, error) {
	_, ok := ctx.Deadline()
	s.mu.Lock()
	s.deadlines = append(s.deadlines, ok)
	s.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestNotifier_EachAttemptHasItsOwnTimeout(t *testing.T) {
	collab := &slowCollaborator{}
	start := time.Now()
	res := NewNotifier(collab, fastPolicy, 20*time.Millisecond).Notify(context.Background(), completedPayment())

	assert.False(t, res.Delivered)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []bool{true, true, true}, collab.deadlines)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type panickingCollaborator struct{}

func (panickingCollaborator) UpdateBookingPaymentStatus(context.Context, string, string) (*BookingAck, error) {
	panic("nil map")
}

func TestNotifier_RecoversFromPanic(t *testing.T) {
	var res Result
	assert.NotPanics(t, func() {
		res = NewNotifier(panickingCollaborator{}, fastPolicy, time.Second).Notify(context.Background(), completedPayment())
	})
	assert.False(t, res.Delivered)
	assert.Error(t, res.Err)
}

func TestNotifier_SinkErrorIsSwallowed(t *testing.T) {
	collab := &MockCollaborator{}
	sink := &MockFailureSink{}
	collab.On("UpdateBookingPaymentStatus", mock.Anything, "B1", "PAID").Return(nil, errors.New("down"))
	sink.On("RecordFailure", mock.Anything, mock.Anything).Return(errors.New("kafka down"))

	res := NewNotifier(collab, fastPolicy, time.Second, WithFailureSink(sink)).Notify(context.Background(), completedPayment())
	assert.False(t, res.Delivered)
	sink.AssertExpectations(t)
}

func TestRepositorySink(t *testing.T) {
	store := memory.NewSettlementFailureStore()
	sink := NewRepositorySink(store)
	require.NoError(t, sink.RecordFailure(context.Background(), domain.SettlementFailure{ID: "f1", PaymentID: "p1"}))

	list, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].PaymentID)
}
