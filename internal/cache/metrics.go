package cache

import "github.com/prometheus/client_golang/prometheus"

// Lookup outcomes used as the "result" label.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

var (
	// lookups counts cache reads by key class and outcome.
	lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_lookups_total",
			Help: "Catalog cache lookups by key class and result.",
		},
		[]string{"class", "result"},
	)

	// invalidations counts keys (or prefixes) dropped from the cache.
	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_invalidations_total",
			Help: "Catalog cache invalidations by kind (key or prefix).",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(lookups, invalidations)
}

// ObserveLookup records the outcome of a Get for the given key class.
func ObserveLookup(class, result string) {
	lookups.WithLabelValues(class, result).Inc()
}

// ObserveInvalidation records n dropped keys, or one dropped prefix when
// prefix is true.
func ObserveInvalidation(n int, prefix bool) {
	if prefix {
		invalidations.WithLabelValues("prefix").Inc()
		return
	}
	invalidations.WithLabelValues("key").Add(float64(n))
}
