package aggregates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/andobill/pkg/observability"
)

// ErrInvalidKey is returned for keys without a name
var ErrInvalidKey = errors.New("invalid aggregate key")

// Key identifies one cached aggregate
type Key struct {
	PrincipalID int64
	TenantID    *int64
	Name        string
}

func tenantPrefix(tenantID *int64) string {
	if tenantID == nil {
		return "t:-|"
	}
	return fmt.Sprintf("t:%d|", *tenantID)
}

// String formats the key as t:<tenant>|p:<principal>|<name>
func (k Key) String() string {
	return fmt.Sprintf("%sp:%d|%s", tenantPrefix(k.TenantID), k.PrincipalID, k.Name)
}

// Stats holds cache statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	ItemCount int64   `json:"item_count"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is an in-memory LRU with a TTL
type Cache struct {
	cache   *lru.LRU[string, interface{}]
	group   singleflight.Group
	metrics *observability.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewCache creates a cache holding up to size entries for ttl; metrics may
// be nil
func NewCache(size int, ttl time.Duration, metrics *observability.Metrics) *Cache {
	if size < 10 {
		size = 10 // Minimum 10 entries
	}
	return &Cache{
		cache:   lru.NewLRU[string, interface{}](size, nil, ttl),
		metrics: metrics,
	}
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Errors are not cached.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if key.Name == "" {
		return nil, ErrInvalidKey
	}
	keyStr := key.String()

	if v, ok := c.cache.Get(keyStr); ok {
		c.hits.Add(1)
		c.metrics.RecordCache(key.Name, true)
		return v, nil
	}
	c.misses.Add(1)
	c.metrics.RecordCache(key.Name, false)

	v, err, _ := c.group.Do(keyStr, func() (interface{}, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Add(keyStr, v)
		return v, nil
	})
	return v, err
}

// InvalidateTenant drops every entry computed for tenantID
func (c *Cache) InvalidateTenant(tenantID *int64) int {
	prefix := tenantPrefix(tenantID)
	removed := 0
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, prefix) && c.cache.Remove(k) {
			removed++
		}
	}
	return removed
}

// InvalidateAll drops every entry
func (c *Cache) InvalidateAll() {
	c.cache.Purge()
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	stats := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		ItemCount: int64(c.cache.Len()),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
