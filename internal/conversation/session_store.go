package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TranscriptEntry is a single turn in a session transcript.
type TranscriptEntry struct {
	Role      string    `json:"role"` // "visitor" or "doorman"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	sessionKeyPrefix    = "session:call:"
	transcriptKeyPrefix = "session:transcript:"
)

// SessionStore persists conversation sessions between turns.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	AppendTranscript(ctx context.Context, id string, entry TranscriptEntry) error
	Transcript(ctx context.Context, id string) ([]TranscriptEntry, error)
}

// RedisSessionStore keeps session state in Redis so any instance can
// serve the next turn.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionStore creates a session store backed by Redis.
func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func transcriptKey(id string) string {
	return transcriptKeyPrefix + id
}

// Save persists or updates a session.
func (s *RedisSessionStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session store: session id required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session store: marshal: %w", err)
	}
	return s.rdb.Set(ctx, sessionKey(sess.ID), data, s.ttl).Err()
}

// Get retrieves a session, returning nil when none exists.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("session store: get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session store: unmarshal: %w", err)
	}
	return &sess, nil
}

// AppendTranscript adds a transcript entry for the session.
func (s *RedisSessionStore) AppendTranscript(ctx context.Context, id string, entry TranscriptEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("session transcript: marshal: %w", err)
	}
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, transcriptKey(id), data)
	pipe.Expire(ctx, transcriptKey(id), s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Transcript retrieves the full session transcript.
func (s *RedisSessionStore) Transcript(ctx context.Context, id string) ([]TranscriptEntry, error) {
	data, err := s.rdb.LRange(ctx, transcriptKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session transcript: get: %w", err)
	}
	entries := make([]TranscriptEntry, 0, len(data))
	for _, d := range data {
		var entry TranscriptEntry
		if err := json.Unmarshal([]byte(d), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// MemorySessionStore is an in-process store for tests and local runs.
type MemorySessionStore struct {
	mu          sync.Mutex
	sessions    map[string][]byte
	transcripts map[string][]TranscriptEntry
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions:    make(map[string][]byte),
		transcripts: make(map[string][]TranscriptEntry),
	}
}

func (s *MemorySessionStore) Save(_ context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session store: session id required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session store: marshal: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = data
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	data, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session store: unmarshal: %w", err)
	}
	return &sess, nil
}

func (s *MemorySessionStore) AppendTranscript(_ context.Context, id string, entry TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[id] = append(s.transcripts[id], entry)
	return nil
}

func (s *MemorySessionStore) Transcript(_ context.Context, id string) ([]TranscriptEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TranscriptEntry, len(s.transcripts[id]))
	copy(out, s.transcripts[id])
	return out, nil
}
