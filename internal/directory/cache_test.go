package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	mu    sync.Mutex
	calls int
	inner *MemoryRepository
	fail  bool
}

func (c *countingRepo) List(ctx context.Context) ([]Resident, error) {
	c.mu.Lock()
	c.calls++
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return nil, errors.New("db down")
	}
	return c.inner.List(ctx)
}

func (c *countingRepo) GetByApartment(ctx context.Context, apt string) ([]Resident, error) {
	return c.inner.GetByApartment(ctx, apt)
}

func TestCachedRepository_ServesSnapshotUntilStale(t *testing.T) {
	inner := NewMemoryRepository()
	inner.Add(Resident{FullName: "Deisy Colorado", Apartment: "15", Phone: "3001112233"})
	backend := &countingRepo{inner: inner}

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cache := NewCachedRepository(backend, 5*time.Minute).WithClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		got, err := cache.List(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	assert.Equal(t, 1, backend.calls)

	now = now.Add(6 * time.Minute)
	_, err := cache.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls)
}

func TestCachedRepository_FallsBackOnRefreshFailure(t *testing.T) {
	inner := NewMemoryRepository()
	inner.Add(Resident{FullName: "Deisy Colorado", Apartment: "15", Phone: "3001112233"})
	backend := &countingRepo{inner: inner}

	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	cache := NewCachedRepository(backend, time.Minute).WithClock(func() time.Time { return now })

	_, err := cache.List(context.Background())
	require.NoError(t, err)

	backend.fail = true
	now = now.Add(2 * time.Minute)
	got, err := cache.List(context.Background())
	require.NoError(t, err, "stale snapshot beats an error mid-conversation")
	assert.Len(t, got, 1)
}

func TestCachedRepository_GetByApartmentUsesCache(t *testing.T) {
	inner := NewMemoryRepository()
	inner.Add(Resident{FullName: "Deisy Colorado", Apartment: "15", Phone: "3001112233"})
	inner.Add(Resident{FullName: "Juan Pérez", Apartment: "101", Phone: "3004445566"})
	backend := &countingRepo{inner: inner}
	cache := NewCachedRepository(backend, time.Minute)

	got, err := cache.GetByApartment(context.Background(), "15")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Deisy Colorado", got[0].FullName)
}
