// Package metrics exports cache lifecycle counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"adloader/internal/freshcache"
)

const (
	ResultHit           = "hit"
	ResultStale         = "stale"
	ResultMiss          = "miss"
	ResultRefreshFailed = "refresh_failed"
	ResultEviction      = "eviction"
)

// CacheCollector counts cache events by cache name and result. One collector
// serves every cache of the process; For hands out the per-cache hook.
type CacheCollector struct {
	events *prometheus.CounterVec
}

func NewCacheCollector(reg prometheus.Registerer) (*CacheCollector, error) {
	c := &CacheCollector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adloader",
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Cache reads by result, background refresh failures and evictions.",
		}, []string{"cache", "result"}),
	}
	if reg != nil {
		if err := reg.Register(c.events); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// For returns the freshcache.Metrics hook labelled with cache.
func (c *CacheCollector) For(cache string) freshcache.Metrics {
	return cacheMetrics{
		hit:           c.events.WithLabelValues(cache, ResultHit),
		stale:         c.events.WithLabelValues(cache, ResultStale),
		miss:          c.events.WithLabelValues(cache, ResultMiss),
		refreshFailed: c.events.WithLabelValues(cache, ResultRefreshFailed),
		eviction:      c.events.WithLabelValues(cache, ResultEviction),
	}
}

// Events exposes the underlying vector, mostly for tests.
func (c *CacheCollector) Events() *prometheus.CounterVec {
	return c.events
}

type cacheMetrics struct {
	hit, stale, miss, refreshFailed, eviction prometheus.Counter
}

func (m cacheMetrics) Hit()           { m.hit.Inc() }
func (m cacheMetrics) Stale()         { m.stale.Inc() }
func (m cacheMetrics) Miss()          { m.miss.Inc() }
func (m cacheMetrics) RefreshFailed() { m.refreshFailed.Inc() }
func (m cacheMetrics) Eviction()      { m.eviction.Inc() }
