package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Domenick1991/tourledger/internal/domain"
)

type memoryEntry struct {
	statuses []domain.SlotStatus
	expires  time.Time
}

// MemoryCache is the in-process counterpart of RedisCache for single-node runs.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	versions  map[string]int64
	statusTTL time.Duration
	now       func() time.Time
}

func NewMemoryCache(statusTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		entries:   make(map[string]memoryEntry),
		versions:  make(map[string]int64),
		statusTTL: statusTTL,
		now:       time.Now,
	}
}

func (c *MemoryCache) GetStatus(_ context.Context, subjectID string) ([]domain.SlotStatus, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	version := c.versions[subjectID]
	entry, ok := c.entries[subjectID]
	if !ok {
		return nil, version, nil
	}
	if c.statusTTL > 0 && !c.now().Before(entry.expires) {
		delete(c.entries, subjectID)
		return nil, version, nil
	}
	return append([]domain.SlotStatus{}, entry.statuses...), version, nil
}

func (c *MemoryCache) SetStatus(_ context.Context, subjectID string, version int64, statuses []domain.SlotStatus) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versions[subjectID] != version {
		return false, nil
	}
	c.entries[subjectID] = memoryEntry{
		statuses: append([]domain.SlotStatus{}, statuses...),
		expires:  c.now().Add(c.statusTTL),
	}
	return true, nil
}

func (c *MemoryCache) InvalidateSubject(_ context.Context, subjectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.versions[subjectID]++
	delete(c.entries, subjectID)
	return nil
}
