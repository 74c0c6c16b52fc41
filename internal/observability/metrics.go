package observability

import "github.com/prometheus/client_golang/prometheus"

// Analytical queries routinely run for whole seconds, so the latency
// histogram carries a longer tail than the default bucket layout.
var requestDurationBuckets = []float64{0.005, 0.02, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_http_requests_total",
			Help: "HTTP requests served, by method, route, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querydesk_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by method, route, and status code.",
			Buckets: requestDurationBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds)
}
