package persist

import "github.com/prometheus/client_golang/prometheus"

var (
	tableSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_table_saves_total",
			Help: "Total number of table save attempts by status.",
		},
		[]string{"status"},
	)
	tableRestoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_table_restores_total",
			Help: "Total number of table restore attempts by status.",
		},
		[]string{"status"},
	)
	persistedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_persisted_bytes_total",
			Help: "Total parquet bytes written to the durable store.",
		},
	)
	autosaveRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_autosave_runs_total",
			Help: "Total number of autosave cycles by status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		tableSavesTotal,
		tableRestoresTotal,
		persistedBytesTotal,
		autosaveRunsTotal,
	)
}
