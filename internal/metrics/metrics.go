// Package metrics exposes Prometheus collectors for the redirector service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	redirectOutcomesTotal         *prometheus.CounterVec
	redirectResolveSeconds        prometheus.Histogram
	geoResolutionsTotal           *prometheus.CounterVec
	broadcastObservers            prometheus.Gauge
	broadcastDeliveriesTotal      prometheus.Counter
	broadcastDroppedTotal         prometheus.Counter
	rateLimitedRequestsTotal      *prometheus.CounterVec
	interstitialDecodeErrorsTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)

		redirectOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redirector_outcomes_total",
				Help: "Short-link resolutions, labeled by terminal outcome.",
			},
			[]string{"outcome"},
		)

		redirectResolveSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "redirector_resolve_duration_seconds",
				Help:    "Time spent resolving a short link before responding.",
				Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		)

		geoResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redirector_geo_resolutions_total",
				Help: "Geo lookups, labeled by result (known, unknown, substituted).",
			},
			[]string{"result"},
		)

		broadcastObservers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "redirector_live_observers",
				Help: "Currently connected live traffic observers.",
			},
		)

		broadcastDeliveriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "redirector_live_deliveries_total",
				Help: "Click events queued to live observers.",
			},
		)

		broadcastDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "redirector_live_dropped_total",
				Help: "Click events skipped because an observer's buffer was full.",
			},
		)

		rateLimitedRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redirector_rate_limited_total",
				Help: "Requests rejected by the per-client rate limiter, labeled by route.",
			},
			[]string{"route"},
		)

		interstitialDecodeErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redirector_interstitial_decode_errors_total",
				Help: "Malformed destination parameters on intermediate pages, labeled by page.",
			},
			[]string{"page"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRedirect records one resolution outcome and its latency.
func ObserveRedirect(outcome string, duration time.Duration) {
	if redirectOutcomesTotal == nil {
		return
	}
	redirectOutcomesTotal.WithLabelValues(outcome).Inc()
	redirectResolveSeconds.Observe(duration.Seconds())
}

// ObserveGeoResolution records one geo lookup result.
func ObserveGeoResolution(result string) {
	if geoResolutionsTotal == nil {
		return
	}
	geoResolutionsTotal.WithLabelValues(result).Inc()
}

// SetLiveObservers sets the connected observer gauge.
func SetLiveObservers(n int) {
	if broadcastObservers == nil {
		return
	}
	broadcastObservers.Set(float64(n))
}

// ObserveBroadcast records one fan-out pass.
func ObserveBroadcast(delivered, dropped int) {
	if broadcastDeliveriesTotal == nil {
		return
	}
	broadcastDeliveriesTotal.Add(float64(delivered))
	broadcastDroppedTotal.Add(float64(dropped))
}

// ObserveRateLimited increments the rate limit rejection counter.
func ObserveRateLimited(route string) {
	if rateLimitedRequestsTotal == nil {
		return
	}
	rateLimitedRequestsTotal.WithLabelValues(route).Inc()
}

// ObserveDecodeError increments the interstitial decode failure counter.
func ObserveDecodeError(page string) {
	if interstitialDecodeErrorsTotal == nil {
		return
	}
	interstitialDecodeErrorsTotal.WithLabelValues(page).Inc()
}
