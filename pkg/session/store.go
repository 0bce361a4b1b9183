package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Store persists sessions by id
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in an expiring LRU. Entries expire after the
// absolute session lifetime; the oldest entries are evicted beyond size.
type MemoryStore struct {
	cache *lru.LRU[string, *Session]
}

// NewMemoryStore creates an in-process store
func NewMemoryStore(size int, lifetime time.Duration) *MemoryStore {
	if size < 10 {
		size = 10
	}
	return &MemoryStore{cache: lru.NewLRU[string, *Session](size, nil, lifetime)}
}

// Get implements Store
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	s, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

// Save implements Store
func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	m.cache.Add(s.ID, s.clone())
	return nil
}

// Delete implements Store
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.cache.Remove(id)
	return nil
}

// Len returns the number of stored sessions
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

// RedisStore keeps sessions as JSON documents with a TTL
type RedisStore struct {
	redis    *redis.Client
	prefix   string
	lifetime time.Duration
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(client *redis.Client, prefix string, lifetime time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "andobill:session"
	}
	return &RedisStore{redis: client, prefix: prefix, lifetime: lifetime}
}

func (r *RedisStore) key(id string) string {
	return fmt.Sprintf("%s:%s", r.prefix, id)
}

// Get implements Store
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.redis.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// Save implements Store. The TTL counts from creation, not from the last save.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	ttl := r.lifetime
	if !s.CreatedAt.IsZero() {
		ttl = time.Until(s.CreatedAt.Add(r.lifetime))
	}
	if ttl <= 0 {
		return r.Delete(ctx, s.ID)
	}
	if err := r.redis.Set(ctx, r.key(s.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete implements Store
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.redis.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
