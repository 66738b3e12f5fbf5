package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the query-state store.
var (
	storeFetchCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_store_fetch_cycles_total",
		Help: "Total product fetch cycles started",
	})

	storeStaleResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_store_stale_results_total",
		Help: "Fetch results discarded because a newer cycle had started, by outcome",
	}, []string{"outcome"}) // success, failure

	storeURLWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_store_url_writes_total",
		Help: "Address bar replacements made by the store",
	})
)
