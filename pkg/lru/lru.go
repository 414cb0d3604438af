package lru

import (
	"fmt"
	"time"

	"github.com/pmkol/quickdns/pkg/list"
)

const maxPrealloc = 4096

// Cache is a capacity bounded LRU cache with per-entry expiry.
// The least recently used entry sits at the front of the list,
// the most recently used one at the back.
//
// Expired entries are not removed proactively. Get drops them when it
// meets them and CleanupExpired sweeps them all. Contains treats them as
// absent but leaves them in place.
//
// Cache is not concurrent safe.
type Cache[K comparable, V any] struct {
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time
	onEvict    func(key K, v V)

	l *list.List[entry[K, V]]
	m map[K]int

	hits      uint64
	misses    uint64
	evictions uint64
	expired   uint64
}

type entry[K comparable, V any] struct {
	key    K
	v      V
	expire int64 // unix nano
}

type Opts[K comparable, V any] struct {
	// Capacity is the maximum number of entries. Zero is allowed and
	// means nothing is ever retained.
	Capacity int

	// DefaultTTL is used by Put. It can be overridden per entry by PutTTL.
	DefaultTTL time.Duration

	// OnEvict is called when a live entry is evicted because of capacity
	// pressure. It is not called for removals and expiry.
	OnEvict func(key K, v V)

	// Now overrides the clock. Default is time.Now.
	Now func() time.Time
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64 // capacity evictions only
	Expired   uint64 // expired entries dropped by Get, CleanupExpired or Put
	Size      int
	Capacity  int
}

// HitRatio returns Hits/(Hits+Misses), or 0 if there was no lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func New[K comparable, V any](opts Opts[K, V]) *Cache[K, V] {
	if opts.Capacity < 0 {
		panic(fmt.Sprintf("lru: invalid capacity: %d", opts.Capacity))
	}
	if opts.DefaultTTL < 0 {
		panic(fmt.Sprintf("lru: invalid default ttl: %s", opts.DefaultTTL))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sizeHint := min(opts.Capacity, maxPrealloc)
	return &Cache[K, V]{
		capacity:   opts.Capacity,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
		onEvict:    opts.OnEvict,
		l:          list.New[entry[K, V]](sizeHint),
		m:          make(map[K]int, sizeHint),
	}
}

func (c *Cache[K, V]) Put(key K, v V) {
	c.PutTTL(key, v, c.defaultTTL)
}

// PutTTL adds or refreshes key. A refreshed entry gets the new value and
// expiry and becomes the most recently used one.
func (c *Cache[K, V]) PutTTL(key K, v V, ttl time.Duration) {
	expire := c.now().Add(ttl).UnixNano()

	// Update existing
	if h, ok := c.m[key]; ok {
		e := c.l.Value(h)
		e.v = v
		e.expire = expire
		c.l.MoveToBack(h)
		return
	}

	if c.capacity == 0 {
		c.evictions++
		return
	}

	// Reuse oldest slot if full.
	// A victim that already expired is accounted as expired, not evicted.
	if c.l.Len() >= c.capacity {
		h := c.l.Front()
		e := c.l.Value(h)
		old := *e
		delete(c.m, old.key)

		*e = entry[K, V]{key: key, v: v, expire: expire}
		c.m[key] = h
		c.l.MoveToBack(h)

		if old.expire <= c.now().UnixNano() {
			c.expired++
			return
		}
		c.evictions++
		if c.onEvict != nil {
			c.onEvict(old.key, old.v)
		}
		return
	}

	c.m[key] = c.l.PushBack(entry[K, V]{key: key, v: v, expire: expire})
}

func (c *Cache[K, V]) Get(key K) (v V, ok bool) {
	h, ok := c.m[key]
	if !ok {
		c.misses++
		return
	}

	e := c.l.Value(h)
	if e.expire <= c.now().UnixNano() {
		c.delElem(h)
		c.expired++
		c.misses++
		return v, false
	}

	c.l.MoveToBack(h)
	c.hits++
	return e.v, true
}

// Contains reports whether key holds a live entry. It changes neither the
// recency order nor the counters and does not drop an expired entry.
func (c *Cache[K, V]) Contains(key K) bool {
	h, ok := c.m[key]
	if !ok {
		return false
	}
	return c.l.Value(h).expire > c.now().UnixNano()
}

func (c *Cache[K, V]) Remove(key K) bool {
	h, ok := c.m[key]
	if !ok {
		return false
	}
	c.delElem(h)
	return true
}

// CleanupExpired removes all expired entries and returns how many were
// removed. The order of the remaining entries is kept.
func (c *Cache[K, V]) CleanupExpired() (removed int) {
	now := c.now().UnixNano()
	h := c.l.Front()
	for h != list.Nil {
		next := c.l.Next(h)
		if c.l.Value(h).expire <= now {
			c.delElem(h)
			removed++
		}
		h = next
	}
	c.expired += uint64(removed)
	return
}

func (c *Cache[K, V]) Clear() {
	c.l.Init()
	clear(c.m)
}

// Keys returns all keys, expired or not, most recently used first.
func (c *Cache[K, V]) Keys() []K {
	keys := make([]K, 0, c.l.Len())
	for h := c.l.Back(); h != list.Nil; h = c.l.Prev(h) {
		keys = append(keys, c.l.Value(h).key)
	}
	return keys
}

func (c *Cache[K, V]) Len() int {
	return c.l.Len()
}

func (c *Cache[K, V]) Cap() int {
	return c.capacity
}

func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Size:      c.l.Len(),
		Capacity:  c.capacity,
	}
}

func (c *Cache[K, V]) delElem(h int) {
	e := c.l.Remove(h)
	delete(c.m, e.key)
}
