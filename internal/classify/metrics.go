package classify

import "github.com/prometheus/client_golang/prometheus"

var (
	classificationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_classification_runs_total",
			Help: "Column classification runs by outcome.",
		},
		[]string{"status"},
	)
	classificationColumnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_classification_columns_total",
			Help: "Columns profiled by completed aggregate queries.",
		},
	)
	classificationStaleDiscardsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_classification_stale_discards_total",
			Help: "Classification runs discarded because a newer result superseded them.",
		},
	)
)

func init() {
	prometheus.MustRegister(classificationRunsTotal, classificationColumnsTotal, classificationStaleDiscardsTotal)
}
