package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestsTotal, httpRequestDuration) }

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveHTTPRequest records one finished request. route is the router
// pattern, never the raw path, to keep label cardinality bounded.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
