// Package metrics owns the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the portal's collectors. A private registry keeps tests
	// free of duplicate-registration panics from the default one.
	Registry = prometheus.NewRegistry()

	perscomRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "perscom",
			Name:      "requests_total",
			Help:      "Outbound PERSCOM requests by method and status code.",
		},
		[]string{"method", "status"},
	)

	perscomRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "perscom",
			Name:      "retries_total",
			Help:      "Retried PERSCOM requests by reason (server, network).",
		},
		[]string{"reason"},
	)

	perscomCoalesced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "perscom",
			Name:      "coalesced_total",
			Help:      "GET calls whose result was shared with another caller.",
		},
	)

	perscomCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "perscom",
			Name:      "cache_total",
			Help:      "Read-through cache lookups by resource family and result.",
		},
		[]string{"family", "result"},
	)

	perscomPageFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "perscom",
			Name:      "page_failures_total",
			Help:      "Listing pages dropped from a paginated fetch.",
		},
	)

	perscomSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "perscom",
			Name:      "skipped_records_total",
			Help:      "Listing records dropped because they did not decode, by family.",
		},
		[]string{"family"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	sessionRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Session token refresh attempts by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		perscomRequests,
		perscomRetries,
		perscomCoalesced,
		perscomCache,
		perscomPageFailures,
		perscomSkipped,
		httpRequests,
		httpDuration,
		sessionRefresh,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordPerscomRequest(method string, status int) {
	perscomRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func RecordPerscomRetry(reason string) {
	perscomRetries.WithLabelValues(reason).Inc()
}

func RecordCoalesced() {
	perscomCoalesced.Inc()
}

// RecordCacheLookup counts a read-through lookup; result is "hit" or "miss".
func RecordCacheLookup(family, result string) {
	perscomCache.WithLabelValues(family, result).Inc()
}

func RecordPageFailure() {
	perscomPageFailures.Inc()
}

func RecordSkippedRecord(family string) {
	perscomSkipped.WithLabelValues(family).Inc()
}

// RecordHTTPRequest observes one inbound request. route is the echo route
// pattern, not the raw path, to keep label cardinality bounded.
func RecordHTTPRequest(method, route string, status int, seconds float64) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(seconds)
}

func RecordSessionRefresh(result string) {
	sessionRefresh.WithLabelValues(result).Inc()
}
