package session

import "github.com/prometheus/client_golang/prometheus"

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_queries_total",
			Help: "Queries executed through the workbench session by outcome.",
		},
		[]string{"status"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querydesk_query_duration_seconds",
			Help:    "Wall-clock duration of executed queries.",
			Buckets: prometheus.DefBuckets,
		},
	)
	rowsMaterializedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_rows_materialized_total",
			Help: "Rows converted into display projections.",
		},
	)
	truncatedResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_truncated_results_total",
			Help: "Query results truncated at the display limit.",
		},
	)
)

func init() {
	prometheus.MustRegister(queriesTotal, queryDurationSeconds, rowsMaterializedTotal, truncatedResultsTotal)
}
