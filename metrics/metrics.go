package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	cartMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "mutations_total",
			Help:      "Cart mutations by operation.",
		},
		[]string{"op"},
	)

	cartPersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "persist_failures_total",
			Help:      "Cart snapshots that could not be written to the durable store.",
		},
	)

	apiCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "commerce_api",
			Name:      "calls_total",
			Help:      "Calls to the remote commerce API by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)
)

func init() {
	Registry.MustRegister(httpRequests, httpDuration, cartMutations, cartPersistFailures, apiCalls)
}

// Handler exposes the registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordCartMutation(op string) {
	cartMutations.WithLabelValues(op).Inc()
}

func RecordCartPersistFailure() {
	cartPersistFailures.Inc()
}

// RecordAPICall records the outcome ("ok", "unauthorized", "error") of a commerce API call.
func RecordAPICall(endpoint, outcome string) {
	apiCalls.WithLabelValues(endpoint, outcome).Inc()
}
