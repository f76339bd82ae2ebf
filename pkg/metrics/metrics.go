// Package metrics exposes the Prometheus metrics of the plexdate packages.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, batch) via promauto and land in the default registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the registerer every package registers into.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source served by Handler.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// NewMux returns a mux serving /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
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
// Request Metrics (pkg/client):
//   - plex_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - plex_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - plex_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - plex_retries_total{error_class} (Counter): Retry attempts by error class
//   - plex_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - plex_retry_exhausted_total{error_class} (Counter): Requests that exhausted their retries
//
// Cache Metrics (pkg/cache):
//   - plexdate_cache_hits_total{layer} (Counter): Page cache hits (memory, redis)
//   - plexdate_cache_misses_total{layer} (Counter): Page cache misses
//   - plexdate_cache_errors_total{operation} (Counter): Cache operation errors
//
// Throttle Metrics (pkg/ratelimit):
//   - plexdate_throttle_wait_seconds (Histogram): Time spent between mutation calls
//   - plexdate_throttle_interrupted_total (Counter): Waits cut short by cancellation
//
// Batch Metrics (pkg/batch):
//   - plexdate_mutations_total{outcome} (Counter): Items by outcome
//   - plexdate_batch_runs_total{state} (Counter): Runs by final state
//
// Example Prometheus Queries:
//
//   # Item failure ratio
//   sum(rate(plexdate_mutations_total{outcome="failed"}[5m])) /
//   sum(rate(plexdate_mutations_total[5m]))
//
//   # Rate limited requests
//   rate(plex_errors_total{class="rate_limit"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(plex_request_duration_seconds_bucket[5m]))
