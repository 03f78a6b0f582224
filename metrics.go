package docstore

import "github.com/prometheus/client_golang/prometheus"

// Label values of docstore metrics.
const (
	cachePk    = "pk"
	cacheField = "field"
	cacheDoc   = "doc"
	cacheAdmin = "admin"

	lookupIndexed = "indexed"
	lookupNoIndex = "no_index"
)

var (
	cacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_cache_hits_total",
		Help: "Cumulative number of cache lookups served from memory.",
	}, []string{"kind"})
	cacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_cache_misses_total",
		Help: "Cumulative number of cache lookups that loaded from disk.",
	}, []string{"kind"})
	shiftedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docstore_shifted_bytes_total",
		Help: "Cumulative number of record bytes moved by size-changing updates and deletes.",
	})
	staleReloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docstore_stale_reloads_total",
		Help: "Cumulative number of whole-collection reloads caused by a short document cache.",
	})
	lockWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "docstore_lock_wait_seconds",
		Help:    "Time spent waiting for resource locks.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})
	indexLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_index_lookups_total",
		Help: "Cumulative number of field predicate lookups, by operator and outcome.",
	}, []string{"op", "result"})
	fullScansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docstore_full_scans_total",
		Help: "Cumulative number of queries answered by scanning a whole collection.",
	})
)

// Collectors returns the docstore metrics for registration, e.g.
// prometheus.MustRegister(docstore.Collectors()...).
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		cacheHitsTotal,
		cacheMissesTotal,
		shiftedBytes,
		staleReloadsTotal,
		lockWaitSeconds,
		indexLookupsTotal,
		fullScansTotal,
	}
}
