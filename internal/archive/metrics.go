package archive

import "github.com/prometheus/client_golang/prometheus"

var (
	archiveExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_archive_exports_total",
			Help: "Total number of archive export runs by status.",
		},
		[]string{"status"},
	)
	archiveImportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_archive_imports_total",
			Help: "Total number of archive import runs by status.",
		},
		[]string{"status"},
	)
	archiveTableFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_archive_table_failures_total",
			Help: "Total number of per-table failures during archive runs.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		archiveExportsTotal,
		archiveImportsTotal,
		archiveTableFailuresTotal,
	)
}
