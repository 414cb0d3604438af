package lru

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(capacity int, ttl time.Duration, clk *fakeClock) *Cache[string, string] {
	return New(Opts[string, string]{Capacity: capacity, DefaultTTL: ttl, Now: clk.Now})
}

func Test_Cache_PutGet(t *testing.T) {
	c := newTestCache(8, time.Minute, newFakeClock())
	c.Put("a", "1")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = c.Get("b")
	assert.False(t, ok)

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, 0.5, s.HitRatio())
}

func Test_Cache_EvictionOrder(t *testing.T) {
	c := newTestCache(3, time.Minute, newFakeClock())
	c.Put("k1", "v1")
	c.Put("k2", "v2")
	c.Put("k3", "v3")
	c.Put("k4", "v4")

	assert.Equal(t, uint64(1), c.Stats().Evictions)
	_, ok := c.Get("k1")
	assert.False(t, ok, "k1 should be evicted")
	for _, k := range []string{"k2", "k3", "k4"} {
		v, ok := c.Get(k)
		require.True(t, ok, k)
		assert.Equal(t, "v"+k[1:], v)
	}

	// Promote k2, so k3 becomes the least recently used.
	_, ok = c.Get("k2")
	require.True(t, ok)
	c.Put("k5", "v5")

	assert.False(t, c.Contains("k3"))
	assert.True(t, c.Contains("k2"))
	assert.True(t, c.Contains("k4"))
	assert.True(t, c.Contains("k5"))
	assert.Equal(t, uint64(2), c.Stats().Evictions)
	assert.Equal(t, 3, c.Len())
}

func Test_Cache_OverflowByOne(t *testing.T) {
	const capacity = 16
	var evicted []string
	c := New(Opts[string, string]{
		Capacity:   capacity,
		DefaultTTL: time.Minute,
		OnEvict:    func(key string, _ string) { evicted = append(evicted, key) },
	})
	for i := 0; i <= capacity; i++ {
		c.Put(strconv.Itoa(i), "v")
	}
	assert.Equal(t, []string{"0"}, evicted)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
	assert.Equal(t, capacity, c.Len())
}

func Test_Cache_Update(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(2, time.Second, clk)
	c.Put("a", "1")
	c.Put("b", "2")

	clk.Advance(time.Millisecond * 900)
	c.Put("a", "3") // refreshes value, expiry and recency

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(0), c.Stats().Evictions)
	assert.Equal(t, []string{"a", "b"}, c.Keys())

	clk.Advance(time.Millisecond * 500)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "3", v)
	_, ok = c.Get("b")
	assert.False(t, ok, "b should have expired")

	// b was the lru entry, a new key must now evict nothing.
	c.Put("c", "4")
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func Test_Cache_Expiry(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(4, time.Second, clk)
	c.Put("a", "1")

	clk.Advance(time.Second) // expiry is inclusive
	assert.False(t, c.Contains("a"))
	assert.Equal(t, 1, c.Len(), "Contains must not drop expired entries")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "Get drops expired entries")

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Expired)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(0), s.Evictions)
}

func Test_Cache_PutTTL(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(4, time.Second, clk)
	c.PutTTL("long", "1", time.Hour)
	c.Put("short", "2")

	clk.Advance(time.Minute)
	assert.True(t, c.Contains("long"))
	assert.False(t, c.Contains("short"))
}

func Test_Cache_ZeroTTL(t *testing.T) {
	c := newTestCache(4, 0, newFakeClock())
	c.Put("a", "1")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func Test_Cache_CleanupExpired(t *testing.T) {
	clk := newFakeClock()
	c := newTestCache(8, time.Minute, clk)
	c.PutTTL("e1", "", time.Second)
	c.Put("a", "")
	c.PutTTL("e2", "", time.Second)
	c.Put("b", "")
	c.Put("c", "")
	_, _ = c.Get("a") // order, mru first: a c b e2 e1

	clk.Advance(time.Second * 2)
	assert.Equal(t, 2, c.CleanupExpired())
	assert.Equal(t, []string{"a", "c", "b"}, c.Keys())
	assert.Equal(t, uint64(2), c.Stats().Expired)
	assert.Equal(t, uint64(0), c.Stats().Evictions)
	assert.Equal(t, 0, c.CleanupExpired())
}

func Test_Cache_ExpiredVictimIsNotEviction(t *testing.T) {
	clk := newFakeClock()
	var evicted int
	c := New(Opts[string, string]{
		Capacity:   2,
		DefaultTTL: time.Minute,
		Now:        clk.Now,
		OnEvict:    func(string, string) { evicted++ },
	})
	c.PutTTL("old", "", time.Second)
	c.Put("a", "")
	clk.Advance(time.Second)
	c.Put("b", "")

	s := c.Stats()
	assert.Equal(t, uint64(0), s.Evictions)
	assert.Equal(t, uint64(1), s.Expired)
	assert.Equal(t, 0, evicted)
	assert.Equal(t, []string{"b", "a"}, c.Keys())
}

func Test_Cache_Remove(t *testing.T) {
	c := newTestCache(2, time.Minute, newFakeClock())
	c.Put("a", "1")
	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(0), c.Stats().Evictions)

	// Freed capacity is usable without eviction.
	c.Put("b", "")
	c.Put("c", "")
	assert.Equal(t, uint64(0), c.Stats().Evictions)
}

func Test_Cache_ZeroCapacity(t *testing.T) {
	c := newTestCache(0, time.Minute, newFakeClock())
	assert.NotPanics(t, func() {
		c.Put("a", "1")
		c.Put("b", "2")
	})
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Cap())
	assert.Equal(t, uint64(2), c.Stats().Evictions)
}

func Test_Cache_Clear(t *testing.T) {
	c := newTestCache(4, time.Minute, newFakeClock())
	c.Put("a", "1")
	c.Put("b", "2")
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Contains("a"))
	assert.Empty(t, c.Keys())

	c.Put("c", "3")
	v, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, "3", v)
}

func Test_Cache_StatsNoLookup(t *testing.T) {
	c := newTestCache(4, time.Minute, newFakeClock())
	s := c.Stats()
	assert.Equal(t, float64(0), s.HitRatio())
	assert.Equal(t, 4, s.Capacity)
}

func Test_Cache_InvalidOpts(t *testing.T) {
	assert.Panics(t, func() { New(Opts[string, int]{Capacity: -1}) })
	assert.Panics(t, func() { New(Opts[string, int]{Capacity: 1, DefaultTTL: -time.Second}) })
}

func Benchmark_Cache_Put(b *testing.B) {
	c := New(Opts[string, string]{Capacity: 1024, DefaultTTL: time.Minute})
	keys := make([]string, 4096)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Put(keys[i%len(keys)], "v")
	}
}
