// Package observability exposes cache and pool counters as Prometheus
// metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"resumeforge-backend/internal/infrastructure/cache"
	"resumeforge-backend/internal/infrastructure/persistence"
)

// StatsCollector implements prometheus.Collector by snapshotting the
// cache registry and connection pool on every scrape. The caches and
// pool stay the single source of truth; nothing is double-counted.
type StatsCollector struct {
	caches *cache.Registry
	pool   *persistence.ClientPool

	cacheHits      *prometheus.Desc
	cacheMisses    *prometheus.Desc
	cacheEvictions *prometheus.Desc
	cacheEntries   *prometheus.Desc
	cacheSize      *prometheus.Desc
	cacheHitRate   *prometheus.Desc

	poolSize      *prometheus.Desc
	poolInUse     *prometheus.Desc
	poolRequests  *prometheus.Desc
	poolRefreshes *prometheus.Desc
	poolDegraded  *prometheus.Desc
}

// NewStatsCollector creates a collector over the given registry and pool.
func NewStatsCollector(caches *cache.Registry, pool *persistence.ClientPool) *StatsCollector {
	cacheLabels := []string{"cache"}
	return &StatsCollector{
		caches: caches,
		pool:   pool,

		cacheHits: prometheus.NewDesc(
			"resumeforge_cache_hits_total", "Cache hits per instance.", cacheLabels, nil),
		cacheMisses: prometheus.NewDesc(
			"resumeforge_cache_misses_total", "Cache misses per instance.", cacheLabels, nil),
		cacheEvictions: prometheus.NewDesc(
			"resumeforge_cache_evictions_total", "Cache evictions per instance.", cacheLabels, nil),
		cacheEntries: prometheus.NewDesc(
			"resumeforge_cache_entries", "Live entries per cache instance.", cacheLabels, nil),
		cacheSize: prometheus.NewDesc(
			"resumeforge_cache_size_bytes", "Approximate bytes held per cache instance.", cacheLabels, nil),
		cacheHitRate: prometheus.NewDesc(
			"resumeforge_cache_hit_rate", "Hit rate per cache instance.", cacheLabels, nil),

		poolSize: prometheus.NewDesc(
			"resumeforge_pool_handles", "Number of pooled backend client handles.", nil, nil),
		poolInUse: prometheus.NewDesc(
			"resumeforge_pool_handles_in_use", "Pooled handles currently marked in use.", nil, nil),
		poolRequests: prometheus.NewDesc(
			"resumeforge_pool_requests_total", "Backend requests served by the pool.", nil, nil),
		poolRefreshes: prometheus.NewDesc(
			"resumeforge_pool_client_refreshes_total", "Pooled clients rebuilt by maintenance.", nil, nil),
		poolDegraded: prometheus.NewDesc(
			"resumeforge_pool_degraded", "1 when the pool has no usable clients.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.cacheEvictions
	ch <- c.cacheEntries
	ch <- c.cacheSize
	ch <- c.cacheHitRate
	ch <- c.poolSize
	ch <- c.poolInUse
	ch <- c.poolRequests
	ch <- c.poolRefreshes
	ch <- c.poolDegraded
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	for name, stats := range c.caches.Stats() {
		ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(stats.Hits), name)
		ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(stats.Misses), name)
		ch <- prometheus.MustNewConstMetric(c.cacheEvictions, prometheus.CounterValue, float64(stats.Evictions), name)
		ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(stats.Entries), name)
		ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(stats.Size), name)
		ch <- prometheus.MustNewConstMetric(c.cacheHitRate, prometheus.GaugeValue, stats.HitRate, name)
	}

	poolStats := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(poolStats.Size))
	ch <- prometheus.MustNewConstMetric(c.poolInUse, prometheus.GaugeValue, float64(poolStats.InUse))
	ch <- prometheus.MustNewConstMetric(c.poolRequests, prometheus.CounterValue, float64(poolStats.TotalRequests))
	ch <- prometheus.MustNewConstMetric(c.poolRefreshes, prometheus.CounterValue, float64(poolStats.Refreshes))
	degraded := float64(0)
	if poolStats.Degraded {
		degraded = 1
	}
	ch <- prometheus.MustNewConstMetric(c.poolDegraded, prometheus.GaugeValue, degraded)
}
