// Package metrics exposes Prometheus counters for the scrape pipeline. The
// registry is the default global one; the scrape command can serve it on an
// optional listener during a run.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kulturkartan_events_upserted_total",
		Help: "Events written to the catalog, including overwrites.",
	})

	URLFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kulturkartan_url_failures_total",
		Help: "Source URLs whose pipeline ended in the failed state.",
	})

	AICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kulturkartan_ai_calls_total",
		Help: "AI extractor calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	DiscoveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kulturkartan_discovery_outcomes_total",
		Help: "Selector discovery results by confidence band.",
	}, []string{"band"})

	DetailFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kulturkartan_detail_fetches_total",
		Help: "Event detail pages fetched for description enrichment.",
	})

	PaginationSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kulturkartan_pagination_steps_total",
		Help: "Pagination actions performed, by strategy.",
	}, []string{"strategy"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ListenAndServe runs a metrics endpoint at addr until the server fails.
// Meant to be started in a goroutine for the duration of a run.
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
