// Package metrics exposes Prometheus collectors for the places crawler.
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
	candidatesTotal            *prometheus.CounterVec
	scrollsTotal               prometheus.Counter
	fieldMissesTotal           *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	runsTotal                  *prometheus.CounterVec
	throttleDelaySeconds       prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "places_candidates_total",
				Help: "Listing candidates handled by the crawl engine, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrollsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "places_scrolls_total",
				Help: "Scroll actions issued to reveal more candidates.",
			},
		)

		fieldMissesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "places_field_misses_total",
				Help: "Field lookups that fell back to the unknown sentinel, labeled by field.",
			},
			[]string{"field"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "places_records_total",
				Help: "Records offered to the store, labeled by write outcome.",
			},
			[]string{"outcome"},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "places_runs_total",
				Help: "Finished crawl runs, labeled by terminal outcome.",
			},
			[]string{"outcome"},
		)

		throttleDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "places_throttle_delay_seconds",
				Help:    "Histogram of inter-record throttle delays.",
				Buckets: []float64{0.25, 0.5, 1, 1.5, 2, 3, 5, 8},
			},
		)

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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCandidate counts one candidate outcome.
func ObserveCandidate(outcome string) {
	candidatesTotal.WithLabelValues(outcome).Inc()
}

// ObserveScroll counts one scroll action.
func ObserveScroll() {
	scrollsTotal.Inc()
}

// ObserveFieldMiss counts a lookup that fell back to the sentinel.
func ObserveFieldMiss(field string) {
	fieldMissesTotal.WithLabelValues(field).Inc()
}

// ObserveRecord counts one store write outcome.
func ObserveRecord(outcome string) {
	recordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRun counts a finished run.
func ObserveRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}

// ObserveThrottle records an inter-record delay.
func ObserveThrottle(d time.Duration) {
	throttleDelaySeconds.Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
