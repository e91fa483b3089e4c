// Package memory holds process-local stores with the same contracts as the
// Postgres repositories. Used by tests and by the "memory" storage driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/tourledger/internal/daterange"
	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/Domenick1991/tourledger/internal/repository"
)

type inventoryKey struct {
	subjectID string
	date      daterange.Date
}

type InventoryStore struct {
	mu      sync.RWMutex
	records map[inventoryKey]*domain.InventoryRecord
	now     func() time.Time
}

func NewInventoryStore() *InventoryStore {
	return &InventoryStore{
		records: make(map[inventoryKey]*domain.InventoryRecord),
		now:     time.Now,
	}
}

func (s *InventoryStore) Get(_ context.Context, subjectID string, date daterange.Date) (*domain.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[inventoryKey{subjectID, date}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *rec
	return &out, nil
}

// put must be called with the write lock held.
func (s *InventoryStore) put(key inventoryKey, apply func(existing *domain.InventoryRecord) domain.InventoryRecord) *domain.InventoryRecord {
	now := s.now()
	existing := s.records[key]
	next := apply(existing)
	next.SubjectID, next.Date = key.subjectID, key.date
	next.UpdatedAt = now
	if existing != nil {
		next.CreatedAt = existing.CreatedAt
	} else {
		next.CreatedAt = now
	}
	s.records[key] = &next
	out := next
	return &out
}

func (s *InventoryStore) Upsert(_ context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(inventoryKey{rec.SubjectID, rec.Date}, func(*domain.InventoryRecord) domain.InventoryRecord {
		rec.Capacity = rec.Slots
		return rec
	}), nil
}

func (s *InventoryStore) Reconcile(_ context.Context, rec domain.InventoryRecord) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(inventoryKey{rec.SubjectID, rec.Date}, func(existing *domain.InventoryRecord) domain.InventoryRecord {
		capacity := rec.Slots
		rec.Capacity = capacity
		if existing != nil {
			rec.Slots = max(capacity-existing.Consumed(), 0)
		}
		return rec
	}), nil
}

func (s *InventoryStore) Patch(_ context.Context, patch domain.InventoryPatch) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(inventoryKey{patch.SubjectID, patch.Date}, func(existing *domain.InventoryRecord) domain.InventoryRecord {
		var rec domain.InventoryRecord
		if existing != nil {
			rec = *existing
		}
		if patch.Slots != nil {
			rec.Slots, rec.Capacity = *patch.Slots, *patch.Slots
		}
		if patch.HotelAvailable != nil {
			rec.HotelAvailable = *patch.HotelAvailable
		}
		if patch.TransportAvailable != nil {
			rec.TransportAvailable = *patch.TransportAvailable
		}
		return rec
	}), nil
}

func (s *InventoryStore) DecrementSlots(_ context.Context, subjectID string, date daterange.Date, n int) (*domain.InventoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[inventoryKey{subjectID, date}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if rec.Slots < n {
		out := *rec
		return &out, repository.ErrInsufficientSlots
	}
	rec.Slots -= n
	rec.UpdatedAt = s.now()
	out := *rec
	return &out, nil
}

func (s *InventoryStore) list(match func(*domain.InventoryRecord) bool, less func(a, b domain.InventoryRecord) bool) []domain.InventoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryRecord, 0)
	for _, rec := range s.records {
		if match(rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byDate(a, b domain.InventoryRecord) bool { return a.Date.Before(b.Date) }

func (s *InventoryStore) ListBySubject(_ context.Context, subjectID string) ([]domain.InventoryRecord, error) {
	return s.list(func(r *domain.InventoryRecord) bool { return r.SubjectID == subjectID }, byDate), nil
}

func (s *InventoryStore) ListRange(_ context.Context, subjectID string, start, end daterange.Date) ([]domain.InventoryRecord, error) {
	return s.list(func(r *domain.InventoryRecord) bool {
		return r.SubjectID == subjectID && !r.Date.Before(start) && !r.Date.After(end)
	}, byDate), nil
}

func (s *InventoryStore) ListAvailableOn(_ context.Context, date daterange.Date, minSlots int) ([]domain.InventoryRecord, error) {
	return s.list(func(r *domain.InventoryRecord) bool {
		return r.Date.Equal(date) && r.Slots >= minSlots
	}, func(a, b domain.InventoryRecord) bool { return a.SubjectID < b.SubjectID }), nil
}

func (s *InventoryStore) DeleteBySubject(_ context.Context, subjectID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key := range s.records {
		if key.subjectID == subjectID {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

var _ repository.InventoryRepository = (*InventoryStore)(nil)
