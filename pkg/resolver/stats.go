package resolver

import "github.com/pmkol/quickdns/pkg/lru"

// Stats is a snapshot of the resolver counters.
type Stats struct {
	TotalQueries uint64
	CacheHits    uint64
	StoreHits    uint64
	Misses       uint64
	DomainCount  int
	Cache        lru.Stats

	// OverallHitRatio is the percentage of queries answered by either tier.
	OverallHitRatio float64
}

func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		TotalQueries: r.totalQueries,
		CacheHits:    r.cacheHits,
		StoreHits:    r.storeHits,
		Misses:       r.misses,
		DomainCount:  r.store.Len(),
		Cache:        r.cache.Stats(),
	}
	if s.TotalQueries > 0 {
		s.OverallHitRatio = float64(s.CacheHits+s.StoreHits) / float64(s.TotalQueries) * 100
	}
	return s
}
