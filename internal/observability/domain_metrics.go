package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ingestRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_ingest_requests_total",
			Help: "Total number of table ingest requests.",
		},
	)
	ingestRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_ingest_rows_total",
			Help: "Total number of rows loaded through table ingest.",
		},
	)
	ingestLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querydesk_ingest_latency_ms",
			Help:    "Table ingest latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 500, 1000, 2000, 5000},
		},
	)
	liveTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querydesk_live_tables",
			Help: "Current count of live tables in the engine.",
		},
	)
	savedTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querydesk_saved_tables",
			Help: "Current count of tables recorded in the persistence manifest.",
		},
	)
	engineUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querydesk_engine_up",
			Help: "Whether the embedded query engine answers pings (1) or not (0).",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ingestRequestsTotal,
		ingestRowsTotal,
		ingestLatencyMs,
		liveTables,
		savedTables,
		engineUp,
	)
}

func ObserveTableIngest(rows int64, elapsed time.Duration) {
	ingestRequestsTotal.Inc()
	if rows > 0 {
		ingestRowsTotal.Add(float64(rows))
	}
	ingestLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func SetTableCounts(live, saved int) {
	if live >= 0 {
		liveTables.Set(float64(live))
	}
	if saved >= 0 {
		savedTables.Set(float64(saved))
	}
}

func SetEngineUp(up bool) {
	if up {
		engineUp.Set(1)
		return
	}
	engineUp.Set(0)
}
