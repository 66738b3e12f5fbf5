// Package metrics exposes the Prometheus metrics of the catalog browser.
// All metrics are defined in their respective packages (gateway, ratelimit,
// store) with promauto and registered on the default registry.
//
// This package provides the HTTP handler and documents every metric.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the catalog browser.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/gateway):
//   - catalog_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - catalog_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - catalog_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - catalog_rate_limit_remaining (Gauge): Requests left in the current window
//   - catalog_rate_limit_blocks_total (Counter): Requests blocked because the budget was exhausted
//   - catalog_rate_limit_throttles_total (Counter): Requests delayed because the budget was low
//
// Store Metrics (pkg/store):
//   - catalog_store_fetch_cycles_total (Counter): Fetch cycles started
//   - catalog_store_stale_results_total{outcome} (Counter): Late results discarded (success, failure)
//   - catalog_store_url_writes_total (Counter): Address bar replacements
//
// Example Prometheus Queries:
//
//   # Share of fetch cycles superseded before they resolved
//   sum(rate(catalog_store_stale_results_total[5m])) / rate(catalog_store_fetch_cycles_total[5m])
//
//   # Request Error Rate
//   rate(catalog_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
//
//   # Rate limit headroom
//   catalog_rate_limit_remaining < 5
