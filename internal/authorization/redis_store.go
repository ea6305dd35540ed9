package authorization

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingKeyPrefix = "auth:pending:"

// keyRetention keeps resolved records readable after expiry so late
// webhooks observe ErrAlreadyResolved instead of recreating state.
const keyRetention = 10 * time.Minute

// RedisStore backs the pending-authorization store with Redis hashes.
// All mutations run as Lua scripts so the check-then-write is atomic per
// key even when webhook ingress and orchestrator polling live in
// different processes.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore creates a Redis-backed store. ttl is the pending-auth
// lifetime (the 30-minute store timer, distinct from the in-call
// escalation threshold).
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// WithClock overrides the time source. Tests use this to drive expiry.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func pendingKey(key string) string {
	return pendingKeyPrefix + key
}

// createScript refuses to overwrite a live pending record and replaces
// anything stale in the same atomic step.
var createScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 1 then
	local status = redis.call('HGET', key, 'status')
	local expires = tonumber(redis.call('HGET', key, 'expires_at'))
	if status == 'pending' and expires and now < expires then
		return 0
	end
	redis.call('DEL', key)
end
redis.call('HSET', key,
	'apartment', ARGV[2],
	'visitor_name', ARGV[3],
	'cedula', ARGV[4],
	'status', 'pending',
	'custom_message', '',
	'created_at', ARGV[1],
	'responded_at', '',
	'expires_at', ARGV[5])
redis.call('PEXPIRE', key, tonumber(ARGV[6]))
return 1
`)

// updateScript is the single winner gate: exactly one concurrent update
// moves the record out of pending.
var updateScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 0 then
	return -1
end
local status = redis.call('HGET', key, 'status')
if status ~= 'pending' then
	return -2
end
local expires = tonumber(redis.call('HGET', key, 'expires_at'))
if expires and now >= expires then
	redis.call('HSET', key, 'status', 'expired')
	return -3
end
redis.call('HSET', key,
	'status', ARGV[2],
	'custom_message', ARGV[3],
	'responded_at', ARGV[1])
return 1
`)

// getScript snapshots the record, lazily marking a timed-out pending
// record as expired in the same atomic step.
var getScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
if redis.call('EXISTS', key) == 0 then
	return false
end
local status = redis.call('HGET', key, 'status')
local expires = tonumber(redis.call('HGET', key, 'expires_at'))
if status == 'pending' and expires and now >= expires then
	redis.call('HSET', key, 'status', 'expired')
end
return redis.call('HGETALL', key)
`)

// expireScript force-expires a still-pending record.
var expireScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return -1
end
if redis.call('HGET', key, 'status') ~= 'pending' then
	return -2
end
redis.call('HSET', key, 'status', 'expired')
return 1
`)

// Create registers a pending authorization for the key.
func (s *RedisStore) Create(ctx context.Context, req CreateRequest) (*PendingAuth, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	retention := s.ttl + keyRetention

	res, err := createScript.Run(ctx, s.rdb, []string{pendingKey(req.Key)},
		now.UnixMilli(),
		req.Apartment,
		req.VisitorName,
		req.Cedula,
		expiresAt.UnixMilli(),
		retention.Milliseconds(),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("authorization: create: %w", err)
	}
	if res == 0 {
		return nil, ErrAlreadyPending
	}
	return &PendingAuth{
		Key:         req.Key,
		Apartment:   req.Apartment,
		VisitorName: req.VisitorName,
		Cedula:      req.Cedula,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}, nil
}

// Get returns the current record, reporting StatusExpired for a pending
// record whose deadline has passed.
func (s *RedisStore) Get(ctx context.Context, key string) (*PendingAuth, error) {
	res, err := getScript.Run(ctx, s.rdb, []string{pendingKey(key)}, s.now().UTC().UnixMilli()).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("authorization: get: %w", err)
	}
	fields, ok := res.([]interface{})
	if !ok || len(fields) == 0 {
		return nil, ErrNotFound
	}
	return decodeHash(key, fields)
}

// UpdateStatus moves the record out of pending. Exactly one concurrent
// caller succeeds; the rest observe ErrAlreadyResolved.
func (s *RedisStore) UpdateStatus(ctx context.Context, key string, status Status, customMessage string) error {
	if !status.Terminal() {
		return fmt.Errorf("authorization: cannot update to %q", status)
	}
	res, err := updateScript.Run(ctx, s.rdb, []string{pendingKey(key)},
		s.now().UTC().UnixMilli(),
		string(status),
		customMessage,
	).Int()
	if err != nil {
		return fmt.Errorf("authorization: update status: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return ErrNotFound
	default:
		// Resolved earlier, or expired out from under the reply.
		return ErrAlreadyResolved
	}
}

// CheckStatus is the orchestrator's polling view.
func (s *RedisStore) CheckStatus(ctx context.Context, key string) (*StatusCheck, error) {
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

// Expire force-expires a still-pending record. Used by the periodic
// sweep; the normal path relies on lazy expiry in Get.
func (s *RedisStore) Expire(ctx context.Context, key string) error {
	res, err := expireScript.Run(ctx, s.rdb, []string{pendingKey(key)}).Int()
	if err != nil {
		return fmt.Errorf("authorization: expire: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return ErrNotFound
	default:
		return ErrAlreadyResolved
	}
}

func decodeHash(key string, fields []interface{}) (*PendingAuth, error) {
	m := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		k, _ := fields[i].(string)
		v, _ := fields[i+1].(string)
		m[k] = v
	}

	rec := &PendingAuth{
		Key:           key,
		Apartment:     m["apartment"],
		VisitorName:   m["visitor_name"],
		Cedula:        m["cedula"],
		Status:        Status(m["status"]),
		CustomMessage: m["custom_message"],
	}
	var err error
	if rec.CreatedAt, err = parseMilli(m["created_at"]); err != nil {
		return nil, fmt.Errorf("authorization: decode created_at: %w", err)
	}
	if rec.ExpiresAt, err = parseMilli(m["expires_at"]); err != nil {
		return nil, fmt.Errorf("authorization: decode expires_at: %w", err)
	}
	if m["responded_at"] != "" {
		at, err := parseMilli(m["responded_at"])
		if err != nil {
			return nil, fmt.Errorf("authorization: decode responded_at: %w", err)
		}
		rec.RespondedAt = &at
	}
	return rec, nil
}

func parseMilli(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

var _ Store = (*RedisStore)(nil)
