package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesDesc   = prometheus.NewDesc("resolver_queries_total", "Total number of resolve calls.", nil, nil)
	cacheHitDesc  = prometheus.NewDesc("resolver_cache_hits_total", "Number of queries answered by the cache.", nil, nil)
	storeHitDesc  = prometheus.NewDesc("resolver_store_hits_total", "Number of queries answered by the record store.", nil, nil)
	missesDesc    = prometheus.NewDesc("resolver_misses_total", "Number of queries with no answer.", nil, nil)
	domainsDesc   = prometheus.NewDesc("resolver_domains", "Number of stored records.", nil, nil)
	cacheSizeDesc = prometheus.NewDesc("resolver_cache_entries", "Number of cache entries, expired ones included.", nil, nil)
	cacheCapDesc  = prometheus.NewDesc("resolver_cache_capacity", "Maximum number of cache entries.", nil, nil)
	evictionsDesc = prometheus.NewDesc("resolver_cache_evictions_total", "Number of live cache entries evicted by capacity pressure.", nil, nil)
	expiredDesc   = prometheus.NewDesc("resolver_cache_expired_total", "Number of expired cache entries removed.", nil, nil)
)

type collector struct {
	r *Resolver
}

// Collector returns a prometheus.Collector that reports r.Stats().
func (r *Resolver) Collector() prometheus.Collector {
	return collector{r: r}
}

func (c collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		queriesDesc, cacheHitDesc, storeHitDesc, missesDesc, domainsDesc,
		cacheSizeDesc, cacheCapDesc, evictionsDesc, expiredDesc,
	} {
		ch <- d
	}
}

func (c collector) Collect(ch chan<- prometheus.Metric) {
	s := c.r.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}

	counter(queriesDesc, s.TotalQueries)
	counter(cacheHitDesc, s.CacheHits)
	counter(storeHitDesc, s.StoreHits)
	counter(missesDesc, s.Misses)
	gauge(domainsDesc, s.DomainCount)
	gauge(cacheSizeDesc, s.Cache.Size)
	gauge(cacheCapDesc, s.Cache.Capacity)
	counter(evictionsDesc, s.Cache.Evictions)
	counter(expiredDesc, s.Cache.Expired)
}
