package avlreg

import "github.com/prometheus/client_golang/prometheus"

// storeMetrics exposes page-cache behavior as Prometheus counters, grounded
// on the xDarkicex-libravdb use of github.com/prometheus/client_golang for
// component-level counters. Registration is optional: a Registry opened
// without a prometheus.Registerer simply counts into an unregistered
// collector.
type storeMetrics struct {
	cacheMisses     prometheus.Counter
	pagesAllocated  prometheus.Counter
	dirtyWritebacks prometheus.Counter
	commits         prometheus.Counter
	rollbacks       prometheus.Counter
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avlreg_cache_misses_total",
			Help: "Page cache lookups that required a read from disk.",
		}),
		pagesAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avlreg_pages_allocated_total",
			Help: "New file pages mapped into the cache.",
		}),
		dirtyWritebacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avlreg_dirty_writebacks_total",
			Help: "Dirty pages written back, via eviction or commit.",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avlreg_commits_total",
			Help: "Successful commit calls.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avlreg_rollbacks_total",
			Help: "Rollbacks triggered by a failed write-path operation.",
		}),
	}
}

// Register adds the store's counters to reg, so an embedding application
// can expose them on its own /metrics endpoint.
func (r *Registry) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		r.metrics.cacheMisses,
		r.metrics.pagesAllocated,
		r.metrics.dirtyWritebacks,
		r.metrics.commits,
		r.metrics.rollbacks,
	} {
		if err := reg.Register(c); err != nil {
			return wrapErr(KindInternal, "register metrics", err)
		}
	}
	return nil
}
