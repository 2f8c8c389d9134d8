package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultMaxSize = 1000
	DefaultTTL     = 5 * time.Minute
)

// Config sizes one cache instance. Instances are constructed once and
// injected into consumers; there are no package-level singletons.
type Config struct {
	MaxSize int
	TTL     time.Duration
}

func (c Config) normalize() Config {
	out := c
	if out.MaxSize <= 0 {
		out.MaxSize = DefaultMaxSize
	}
	if out.TTL <= 0 {
		out.TTL = DefaultTTL
	}
	return out
}

type entry[T any] struct {
	value       T
	createdAt   time.Time
	accessedAt  time.Time
	accessCount int
}

// Cache is an LRU cache with lazy TTL expiry. An entry older than the TTL
// is treated as absent on read; capacity pressure evicts the
// least-recently-accessed entry. Operations never fail: a broken entry
// just reads as a miss and the caller recomputes.
type Cache[T any] struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, *entry[T]]
	ttl time.Duration
	now func() time.Time

	hits   uint64
	misses uint64
	// evictions is atomic, not guarded by mu: the expirable LRU runs a
	// background expiry goroutine that fires the eviction callback
	// outside any lock we hold. The counter includes TTL expiries
	// (background and lazy) alongside capacity evictions.
	evictions atomic.Uint64
}

func New[T any](cfg Config) *Cache[T] {
	cfg = cfg.normalize()
	c := &Cache[T]{
		ttl: cfg.TTL,
		now: time.Now,
	}
	c.lru = expirable.NewLRU[string, *entry[T]](cfg.MaxSize, func(string, *entry[T]) {
		c.evictions.Add(1)
	}, cfg.TTL)
	return c
}

// Get returns the cached value and updates recency bookkeeping. Expired
// entries report a miss.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok || e == nil {
		c.misses++
		return zero, false
	}
	if c.now().Sub(e.createdAt) > c.ttl {
		c.lru.Remove(key)
		c.misses++
		return zero, false
	}

	e.accessedAt = c.now()
	e.accessCount++
	c.hits++
	return e.value, true
}

// Set inserts a value, evicting the least-recently-accessed entry when at
// capacity.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.lru.Add(key, &entry[T]{
		value:      value,
		createdAt:  now,
		accessedAt: now,
	})
}

func (c *Cache[T]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats reports counters accumulated since construction. HitRate is 0
// before any lookup and always within [0,1].
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions.Load(),
		Size:      c.lru.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Stats mirrors ports.CacheStats without importing the ports package.
type Stats struct {
	Hits   uint64
	Misses uint64
	// Evictions counts capacity evictions and TTL expiries together.
	Evictions uint64
	Size      int
	HitRate   float64
}

// Key builds a stable cache key from its parts, hashing long payloads so
// keys stay bounded.
func Key(parts ...string) string {
	joined := strings.Join(parts, "\x1f")
	if len(joined) <= 80 {
		return joined
	}
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// VersionedKey prefixes a key with an epoch so incrementing the epoch makes
// every prior entry unreachable without deleting it.
func VersionedKey(epoch uint64, parts ...string) string {
	return fmt.Sprintf("v%d:%s", epoch, Key(parts...))
}
