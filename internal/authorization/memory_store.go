package authorization

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the single-process implementation of Store, used in
// tests and single-binary deployments. One mutex per key keeps Create
// and UpdateStatus mutually exclusive without serializing unrelated
// visits.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	records map[string]*PendingAuth
}

// NewMemoryStore creates an in-memory pending-authorization store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
		records: make(map[string]*PendingAuth),
	}
}

// WithClock overrides the time source for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func (s *MemoryStore) load(key string) (*PendingAuth, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

func (s *MemoryStore) store(key string, rec *PendingAuth) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
}

// Create registers a pending authorization, superseding only stale records.
func (s *MemoryStore) Create(ctx context.Context, req CreateRequest) (*PendingAuth, error) {
	lock := s.keyLock(req.Key)
	lock.Lock()
	defer lock.Unlock()

	now := s.now().UTC()
	if existing, ok := s.load(req.Key); ok {
		if existing.Status == StatusPending && now.Before(existing.ExpiresAt) {
			return nil, ErrAlreadyPending
		}
	}

	rec := &PendingAuth{
		Key:         req.Key,
		Apartment:   req.Apartment,
		VisitorName: req.VisitorName,
		Cedula:      req.Cedula,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	s.store(req.Key, rec)
	out := *rec
	return &out, nil
}

// Get returns a snapshot, lazily expiring a timed-out pending record.
func (s *MemoryStore) Get(ctx context.Context, key string) (*PendingAuth, error) {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	rec, ok := s.load(key)
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status == StatusPending && !s.now().UTC().Before(rec.ExpiresAt) {
		rec.Status = StatusExpired
	}
	out := *rec
	return &out, nil
}

// UpdateStatus moves a pending record to a terminal status; losers of the
// race observe ErrAlreadyResolved.
func (s *MemoryStore) UpdateStatus(ctx context.Context, key string, status Status, customMessage string) error {
	if !status.Terminal() {
		return fmt.Errorf("authorization: cannot update to %q", status)
	}
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	rec, ok := s.load(key)
	if !ok {
		return ErrNotFound
	}
	if rec.Status != StatusPending {
		return ErrAlreadyResolved
	}
	now := s.now().UTC()
	if !now.Before(rec.ExpiresAt) {
		rec.Status = StatusExpired
		return ErrAlreadyResolved
	}
	rec.Status = status
	rec.CustomMessage = customMessage
	rec.RespondedAt = &now
	return nil
}

// CheckStatus is the orchestrator's polling view.
func (s *MemoryStore) CheckStatus(ctx context.Context, key string) (*StatusCheck, error) {
	rec, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &StatusCheck{
		Status:        rec.Status,
		CustomMessage: rec.CustomMessage,
		Elapsed:       s.now().UTC().Sub(rec.CreatedAt),
	}, nil
}

// Expire force-expires a still-pending record.
func (s *MemoryStore) Expire(ctx context.Context, key string) error {
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	rec, ok := s.load(key)
	if !ok {
		return ErrNotFound
	}
	if rec.Status != StatusPending {
		return ErrAlreadyResolved
	}
	rec.Status = StatusExpired
	return nil
}

// Sweep removes records that are expired or resolved longer ago than the
// retention window. Optional; lazy expiry keeps correctness without it.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	removed := 0
	for key, rec := range s.records {
		if now.After(rec.ExpiresAt.Add(keyRetention)) {
			// Locks are kept so an in-flight Create for the key cannot
			// end up holding a different mutex than a rival caller.
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

var _ Store = (*MemoryStore)(nil)
