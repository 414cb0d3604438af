// Package resolver implements a two-tier name to address lookup. The
// authoritative records live in a prefix tree, a bounded LRU cache with
// per-entry TTL sits in front of it.
//
// Lookups consult the cache first. On a cache miss the tree is searched and a
// hit there repopulates the cache. Writes go to the tree first, then to the
// cache. All operations, including the background sweep of expired cache
// entries, are serialized by one mutex.
package resolver

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pmkol/quickdns/pkg/lru"
	"github.com/pmkol/quickdns/pkg/safe_close"
	"github.com/pmkol/quickdns/pkg/trie"
)

const (
	defaultShutdownTimeout = time.Second * 5
)

var nopLogger = zap.NewNop()

type Opts struct {
	// CacheSize is the cache capacity. Zero disables caching,
	// every lookup then goes to the store.
	CacheSize int

	// DefaultTTL is the lifetime of a cache entry.
	DefaultTTL time.Duration

	// CleanupInterval is the period of the background sweep of expired
	// cache entries. Zero disables the sweep.
	CleanupInterval time.Duration

	// ShutdownTimeout bounds how long Shutdown waits for the sweep to stop.
	// Default is 5s.
	ShutdownTimeout time.Duration

	// Logger is the *zap.Logger for this Resolver.
	// A nil Logger will disable logging.
	Logger *zap.Logger

	// Now overrides the clock of the cache. Default is time.Now.
	Now func() time.Time
}

func (opts *Opts) Init() error {
	if opts.CacheSize < 0 {
		return fmt.Errorf("%w: negative cache size %d", ErrInvalidInput, opts.CacheSize)
	}
	if opts.DefaultTTL < 0 {
		return fmt.Errorf("%w: negative ttl %s", ErrInvalidInput, opts.DefaultTTL)
	}
	if opts.CleanupInterval < 0 {
		return fmt.Errorf("%w: negative cleanup interval %s", ErrInvalidInput, opts.CleanupInterval)
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return nil
}

type Resolver struct {
	opts   Opts
	logger *zap.Logger

	mu    sync.Mutex
	store *trie.Trie
	cache *lru.Cache[string, string]

	totalQueries uint64
	cacheHits    uint64
	storeHits    uint64
	misses       uint64

	sc *safe_close.SafeClose
}

func New(opts Opts) (*Resolver, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}

	r := &Resolver{
		opts:   opts,
		logger: opts.Logger,
		store:  trie.New(),
		sc:     safe_close.NewSafeClose(),
	}
	r.cache = lru.New(lru.Opts[string, string]{
		Capacity:   opts.CacheSize,
		DefaultTTL: opts.DefaultTTL,
		Now:        opts.Now,
		OnEvict: func(name, _ string) {
			r.logger.Debug("cache entry evicted", zap.String("name", name))
		},
	})

	if opts.CleanupInterval > 0 {
		r.startSweeper(opts.CleanupInterval)
	}
	return r, nil
}

// NewWithTTLSeconds returns a Resolver without background sweep.
func NewWithTTLSeconds(cacheSize int, ttlSeconds int) (*Resolver, error) {
	if ttlSeconds < 0 {
		return nil, fmt.Errorf("%w: negative ttl %d", ErrInvalidInput, ttlSeconds)
	}
	return New(Opts{CacheSize: cacheSize, DefaultTTL: time.Duration(ttlSeconds) * time.Second})
}

// AddDomain stores the record and caches it. Nothing is written if the
// name or the address is invalid.
func (r *Resolver) AddDomain(name, addr string) error {
	name, addr, err := normalizeRecord(name, addr)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Insert(name, addr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	r.cache.Put(name, addr)
	return nil
}

// Resolve returns the address of name. A blank or invalid utf-8 name is not
// counted as a query.
func (r *Resolver) Resolve(name string) (string, bool) {
	name, ok := lookupName(name)
	if !ok {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalQueries++

	if addr, ok := r.cache.Get(name); ok {
		r.cacheHits++
		return addr, true
	}

	if addr, ok := r.store.Search(name); ok {
		r.storeHits++
		r.cache.Put(name, addr)
		return addr, true
	}

	r.misses++
	return "", false
}

// RemoveDomain removes name from both tiers. It reports whether either
// tier had it.
func (r *Resolver) RemoveDomain(name string) bool {
	name, ok := lookupName(name)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	inStore := r.store.Remove(name)
	inCache := r.cache.Remove(name)
	return inStore || inCache
}

// UpdateDomain replaces the address of a stored name. It returns false
// without any change if name is not stored.
func (r *Resolver) UpdateDomain(name, addr string) (bool, error) {
	name, addr, err := normalizeRecord(name, addr)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.store.Contains(name) {
		return false, nil
	}
	if err := r.store.Insert(name, addr); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	r.cache.Put(name, addr)
	return true, nil
}

// ContainsDomain reports whether name is known to either tier.
// It never alters the cache, an expired cache entry stays in place.
func (r *Resolver) ContainsDomain(name string) bool {
	name, ok := lookupName(name)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Contains(name) || r.store.Contains(name)
}

// CleanupExpiredEntries drops expired cache entries and returns their number.
func (r *Resolver) CleanupExpiredEntries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.CleanupExpired()
}

// Domains returns all stored records ordered by name.
func (r *Resolver) Domains() []trie.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Records()
}

func (r *Resolver) DomainCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Len()
}

func (r *Resolver) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

// ClearCache drops all cache entries. Stored records are kept.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Clear()
}

// ClearAll drops all records and cache entries. Counters are kept.
func (r *Resolver) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = trie.New()
	r.cache.Clear()
}
