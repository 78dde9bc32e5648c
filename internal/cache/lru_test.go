package cache

import (
	"testing"
	"time"

	"ledger/internal/log"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestCache[T any](size int, ttl time.Duration) (*LRUCache[T], *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[T](size, ttl)
	c.now = clock.now
	return c, clock
}

func TestLRUCacheEviction(t *testing.T) {
	c, _ := newTestCache[string](3, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")
	c.Set("key4", "value4")

	if _, found := c.Get("key1"); found {
		t.Error("key1 should have been evicted")
	}
	for _, k := range []string{"key2", "key3", "key4"} {
		if _, found := c.Get(k); !found {
			t.Errorf("%s should still exist", k)
		}
	}
}

func TestLRUCacheRecentlyUsedSurvives(t *testing.T) {
	c, _ := newTestCache[int](2, time.Hour)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, found := c.Get("a"); !found {
		t.Error("a was used last and should survive")
	}
	if _, found := c.Get("b"); found {
		t.Error("b should have been evicted")
	}
}

func TestLRUCacheTTLExpiration(t *testing.T) {
	c, clock := newTestCache[string](100, 50*time.Millisecond)

	c.Set("key1", "value1")
	if _, found := c.Get("key1"); !found {
		t.Error("key1 should exist immediately")
	}

	clock.t = clock.t.Add(60 * time.Millisecond)
	if _, found := c.Get("key1"); found {
		t.Error("key1 should have expired")
	}
}

func TestLRUCacheCleanExpired(t *testing.T) {
	c, clock := newTestCache[string](100, 50*time.Millisecond)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	clock.t = clock.t.Add(30 * time.Millisecond)
	c.Set("key3", "value3")
	clock.t = clock.t.Add(30 * time.Millisecond)

	if removed := c.CleanExpired(); removed != 2 {
		t.Errorf("expected 2 items cleaned, got %d", removed)
	}
	if c.Size() != 1 {
		t.Errorf("expected 1 item left, got %d", c.Size())
	}
}

func TestManagerCleanAll(t *testing.T) {
	c, clock := newTestCache[string](10, time.Millisecond)
	c.Set("k", "v")
	clock.t = clock.t.Add(time.Second)

	m := NewManager(log.Discard())
	m.Register(c)
	m.StartCleanup(time.Hour)
	defer m.Stop()

	if n := m.CleanAll(); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
}

func BenchmarkLRUCache(b *testing.B) {
	c := NewLRUCache[string](1000, time.Hour)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%10 == 0 {
			c.Set("bench-key", "value")
		} else {
			c.Get("bench-key")
		}
	}
}
