package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheRoundTripBeforeTTL(t *testing.T) {
	c := New[string](Config{MaxSize: 4, TTL: time.Minute})

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("Get() = %q, %v; want v, true", got, ok)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	c := New[string](Config{MaxSize: 4, TTL: time.Minute})
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("k", "v")
	c.now = func() time.Time { return base.Add(2 * time.Minute) }

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired entry to read as a miss")
	}
	stats := c.Stats()
	if stats.Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestCacheEvictsLeastRecentlyAccessed(t *testing.T) {
	c := New[int](Config{MaxSize: 3, TTL: time.Minute})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch a and c so b is the least-recently-accessed entry.
	c.Get("a")
	c.Get("c")

	c.Set("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Fatalf("expected %s to survive eviction", key)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Fatalf("expected exactly 1 eviction, got %d", got)
	}
}

func TestStatsConcurrentWithBackgroundExpiry(t *testing.T) {
	c := New[int](Config{MaxSize: 8, TTL: 10 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			c.Set(fmt.Sprintf("k%d", i%16), i)
			c.Get(fmt.Sprintf("k%d", i%16))
		}
	}()

	// The expirable LRU fires eviction callbacks from its own expiry
	// goroutine; Stats must stay safe to poll concurrently.
	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case <-done:
			s := c.Stats()
			if s.Hits+s.Misses == 0 {
				t.Fatalf("expected lookups to be counted, got %+v", s)
			}
			return
		case <-deadline:
			t.Fatalf("writer did not finish")
		default:
			_ = c.Stats()
		}
	}
}

func TestCacheHitRateStaysInRange(t *testing.T) {
	c := New[int](Config{MaxSize: 2, TTL: time.Minute})

	if rate := c.Stats().HitRate; rate != 0 {
		t.Fatalf("expected zero hit rate before lookups, got %f", rate)
	}

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k%d", i%3)
		if _, ok := c.Get(key); !ok {
			c.Set(key, i)
		}
		rate := c.Stats().HitRate
		if rate < 0 || rate > 1 {
			t.Fatalf("hit rate out of range: %f", rate)
		}
	}
}

func TestVersionedKeyChangesWithEpoch(t *testing.T) {
	k0 := VersionedKey(0, "search", "resistor")
	k1 := VersionedKey(1, "search", "resistor")
	if k0 == k1 {
		t.Fatalf("expected distinct keys across epochs")
	}
}

func TestKeyBoundsLongInputs(t *testing.T) {
	long := make([]byte, 4096)
	for i := range long {
		long[i] = 'x'
	}
	key := Key("search", string(long))
	if len(key) > 80 {
		t.Fatalf("expected hashed key, got %d bytes", len(key))
	}
}
