package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// hitScript increments a counter and starts its window on the first hit
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// extendScript adds ARGV[1] milliseconds to a live counter's window
var extendScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	return 0
end
redis.call('PEXPIRE', KEYS[1], ttl + tonumber(ARGV[1]))
return ttl + tonumber(ARGV[1])
`)

// lockScript sets a lock unless a longer one is already in place
var lockScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[1], '1', 'PX', ARGV[1])
end
return 1
`)

// RedisLimiter implements Limiter on Redis so limits are shared across
// instances. Every mutation is a single atomic command or script.
type RedisLimiter struct {
	redis  *redis.Client
	prefix string
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "andobill:throttle"
	}
	return &RedisLimiter{redis: client, prefix: prefix}
}

func (l *RedisLimiter) counterKey(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

func (l *RedisLimiter) lockKey(key string) string {
	return fmt.Sprintf("%s:%s:lock", l.prefix, key)
}

// Attempts implements Limiter
func (l *RedisLimiter) Attempts(ctx context.Context, key string) (int, error) {
	n, err := l.redis.Get(ctx, l.counterKey(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return n, nil
}

// Hit implements Limiter
func (l *RedisLimiter) Hit(ctx context.Context, key string, decay time.Duration) (int, error) {
	n, err := hitScript.Run(ctx, l.redis, []string{l.counterKey(key)}, decay.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return int(n), nil
}

// TooManyAttempts implements Limiter
func (l *RedisLimiter) TooManyAttempts(ctx context.Context, key string, max int) (bool, error) {
	locked, err := l.redis.Exists(ctx, l.lockKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	if locked > 0 {
		return true, nil
	}
	n, err := l.Attempts(ctx, key)
	if err != nil {
		return false, err
	}
	return n >= max, nil
}

// AvailableIn implements Limiter
func (l *RedisLimiter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	pipe := l.redis.Pipeline()
	counter := pipe.PTTL(ctx, l.counterKey(key))
	lock := pipe.PTTL(ctx, l.lockKey(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	wait := counter.Val()
	if lw := lock.Val(); lw > wait {
		wait = lw
	}
	if wait < 0 {
		return 0, nil
	}
	return wait, nil
}

// Extend implements Limiter
func (l *RedisLimiter) Extend(ctx context.Context, key string, d time.Duration) error {
	if err := extendScript.Run(ctx, l.redis, []string{l.counterKey(key)}, d.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Lock implements Limiter
func (l *RedisLimiter) Lock(ctx context.Context, key string, d time.Duration) error {
	if err := lockScript.Run(ctx, l.redis, []string{l.lockKey(key)}, d.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Clear implements Limiter
func (l *RedisLimiter) Clear(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.counterKey(key), l.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity
func (l *RedisLimiter) HealthCheck(ctx context.Context) error {
	return l.redis.Ping(ctx).Err()
}
