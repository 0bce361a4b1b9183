package throttle

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter implements Limiter in process. State is lost on restart and
// not shared between instances.
type MemoryLimiter struct {
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	hits        int
	expiresAt   time.Time
	lockedUntil time.Time
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// get returns the live bucket for key, dropping it if fully expired. Callers
// hold mu.
func (l *MemoryLimiter) get(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		return nil
	}
	if !now.Before(b.expiresAt) {
		b.hits = 0
	}
	if b.hits == 0 && !now.Before(b.lockedUntil) {
		delete(l.buckets, key)
		return nil
	}
	return b
}

// Attempts implements Limiter
func (l *MemoryLimiter) Attempts(ctx context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b := l.get(key, l.now()); b != nil {
		return b.hits, nil
	}
	return 0, nil
}

// Hit implements Limiter
func (l *MemoryLimiter) Hit(ctx context.Context, key string, decay time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.get(key, now)
	if b == nil {
		b = &bucket{}
		l.buckets[key] = b
	}
	if b.hits == 0 {
		b.expiresAt = now.Add(decay)
	}
	b.hits++
	return b.hits, nil
}

// TooManyAttempts implements Limiter
func (l *MemoryLimiter) TooManyAttempts(ctx context.Context, key string, max int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.get(key, now)
	if b == nil {
		return false, nil
	}
	return now.Before(b.lockedUntil) || b.hits >= max, nil
}

// AvailableIn implements Limiter
func (l *MemoryLimiter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.get(key, now)
	if b == nil {
		return 0, nil
	}
	var wait time.Duration
	if b.hits > 0 {
		wait = b.expiresAt.Sub(now)
	}
	if locked := b.lockedUntil.Sub(now); locked > wait {
		wait = locked
	}
	return wait, nil
}

// Extend implements Limiter. Keys without hits are left alone.
func (l *MemoryLimiter) Extend(ctx context.Context, key string, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b := l.get(key, l.now()); b != nil && b.hits > 0 {
		b.expiresAt = b.expiresAt.Add(d)
	}
	return nil
}

// Lock implements Limiter
func (l *MemoryLimiter) Lock(ctx context.Context, key string, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.get(key, now)
	if b == nil {
		b = &bucket{}
		l.buckets[key] = b
	}
	if until := now.Add(d); until.After(b.lockedUntil) {
		b.lockedUntil = until
	}
	return nil
}

// Clear implements Limiter
func (l *MemoryLimiter) Clear(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	return nil
}

// Sweep removes expired buckets and returns how many were dropped
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	before := len(l.buckets)
	for key := range l.buckets {
		l.get(key, now)
	}
	return before - len(l.buckets)
}

// Len returns the number of tracked keys
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
