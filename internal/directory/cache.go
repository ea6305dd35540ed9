package directory

import (
	"context"
	"sync"
	"time"
)

// CachedRepository serves directory reads from memory, refreshing from
// the backing repository at a fixed interval. Every turn hits List, so
// the cache keeps the hot path off Postgres.
type CachedRepository struct {
	backend Repository
	refresh time.Duration
	now     func() time.Time

	mu        sync.RWMutex
	residents []Resident
	fetchedAt time.Time
}

// NewCachedRepository wraps a repository with a read cache.
func NewCachedRepository(backend Repository, refresh time.Duration) *CachedRepository {
	if refresh <= 0 {
		refresh = 5 * time.Minute
	}
	return &CachedRepository{backend: backend, refresh: refresh, now: time.Now}
}

// WithClock overrides the time source for tests.
func (c *CachedRepository) WithClock(now func() time.Time) *CachedRepository {
	c.now = now
	return c
}

// List returns the cached residents, refreshing when stale. A failed
// refresh falls back to the previous snapshot rather than erroring an
// in-flight conversation.
func (c *CachedRepository) List(ctx context.Context) ([]Resident, error) {
	c.mu.RLock()
	fresh := !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.refresh
	snapshot := c.residents
	c.mu.RUnlock()
	if fresh {
		return snapshot, nil
	}

	residents, err := c.backend.List(ctx)
	if err != nil {
		if snapshot != nil {
			return snapshot, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.residents = residents
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return residents, nil
}

// GetByApartment filters the cached snapshot.
func (c *CachedRepository) GetByApartment(ctx context.Context, apartment string) ([]Resident, error) {
	residents, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Resident
	for _, res := range residents {
		if res.Apartment == apartment {
			out = append(out, res)
		}
	}
	return out, nil
}

var _ Repository = (*CachedRepository)(nil)
