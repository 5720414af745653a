package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL run.
type Metrics struct {
	RecordsRead *prometheus.CounterVec
	RowsWritten *prometheus.CounterVec
	JoinMisses  prometheus.Counter
	RunDuration prometheus.Histogram
	RunsTotal   *prometheus.CounterVec
	RunActive   prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "etl",
			Name:      "records_read_total",
			Help:      "Total source records decoded, by source.",
		}, []string{"source"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "etl",
			Name:      "rows_written_total",
			Help:      "Total output rows staged, by table.",
		}, []string{"table"}),
		JoinMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "etl",
			Name:      "join_misses_total",
			Help:      "Plays with no matching (song, artist) pair in the dimensions.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "etl",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full extract-transform-load run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "etl",
			Name:      "runs_total",
			Help:      "Completed runs, by status.",
		}, []string{"status"}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "etl",
			Name:      "run_active",
			Help:      "1 while a run is in progress.",
		}),
	}

	prometheus.MustRegister(
		m.RecordsRead,
		m.RowsWritten,
		m.JoinMisses,
		m.RunDuration,
		m.RunsTotal,
		m.RunActive,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RecordsRead: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "etl", Name: "records_read_total"}, []string{"source"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "etl", Name: "rows_written_total"}, []string{"table"}),
		JoinMisses:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "etl", Name: "join_misses_total"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "etl", Name: "run_duration_seconds"}),
		RunsTotal:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "etl", Name: "runs_total"}, []string{"status"}),
		RunActive:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "etl", Name: "run_active"}),
	}
}
