package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/Domenick1991/tourledger/internal/repository"
)

type PaymentStore struct {
	mu        sync.RWMutex
	payments  map[string]*domain.Payment
	byInvoice map[string]string
	now       func() time.Time
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		payments:  make(map[string]*domain.Payment),
		byInvoice: make(map[string]string),
		now:       time.Now,
	}
}

func clonePayment(p *domain.Payment) *domain.Payment {
	out := *p
	if p.BookingID != nil {
		v := *p.BookingID
		out.BookingID = &v
	}
	if p.TravelScheduleID != nil {
		v := *p.TravelScheduleID
		out.TravelScheduleID = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		out.CompletedAt = &v
	}
	if p.Refund != nil {
		v := *p.Refund
		out.Refund = &v
	}
	return &out
}

func (s *PaymentStore) Create(_ context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byInvoice[p.Invoice.Number]; exists {
		return repository.ErrDuplicateInvoice
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.payments[p.ID] = clonePayment(p)
	s.byInvoice[p.Invoice.Number] = p.ID
	return nil
}

func (s *PaymentStore) GetByID(_ context.Context, id string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *PaymentStore) GetByInvoiceNumber(ctx context.Context, number string) (*domain.Payment, error) {
	s.mu.RLock()
	id, ok := s.byInvoice[number]
	s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *PaymentStore) CompareAndSetStatus(_ context.Context, id string, change repository.StatusChange) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Status != change.From {
		return nil, repository.ErrStatusChanged
	}
	p.Status = change.To
	if change.CompletedAt != nil {
		v := *change.CompletedAt
		p.CompletedAt = &v
	}
	if change.Refund != nil {
		v := *change.Refund
		p.Refund = &v
	}
	p.UpdatedAt = s.now()
	return clonePayment(p), nil
}

func (s *PaymentStore) latest(match func(*domain.Payment) bool) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]*domain.Payment, 0)
	for _, p := range s.payments {
		if match(p) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, repository.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		ci := candidates[i].Status == domain.PaymentStatusCompleted
		cj := candidates[j].Status == domain.PaymentStatusCompleted
		if ci != cj {
			return ci
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return clonePayment(candidates[0]), nil
}

func (s *PaymentStore) LatestByBooking(_ context.Context, bookingID string) (*domain.Payment, error) {
	return s.latest(func(p *domain.Payment) bool {
		return p.BookingID != nil && *p.BookingID == bookingID
	})
}

func (s *PaymentStore) LatestByTravelSchedule(_ context.Context, travelScheduleID string) (*domain.Payment, error) {
	return s.latest(func(p *domain.Payment) bool {
		return p.TravelScheduleID != nil && *p.TravelScheduleID == travelScheduleID
	})
}

var _ repository.PaymentRepository = (*PaymentStore)(nil)

type SettlementFailureStore struct {
	mu       sync.Mutex
	failures []domain.SettlementFailure
	seen     map[string]struct{}
}

func NewSettlementFailureStore() *SettlementFailureStore {
	return &SettlementFailureStore{seen: make(map[string]struct{})}
}

func (s *SettlementFailureStore) Record(_ context.Context, f domain.SettlementFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[f.ID]; dup {
		return nil
	}
	s.seen[f.ID] = struct{}{}
	s.failures = append(s.failures, f)
	return nil
}

func (s *SettlementFailureStore) List(_ context.Context, limit int) ([]domain.SettlementFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.SettlementFailure, len(s.failures))
	copy(out, s.failures)
	sort.SliceStable(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ repository.SettlementFailureRepository = (*SettlementFailureStore)(nil)
