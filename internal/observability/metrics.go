package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// gauge-monitoring service.
type Metrics struct {
	FetchAttempts  prometheus.Counter
	FetchFailures  *prometheus.CounterVec // labels: reason={status,timeout,connection,other}
	FetchDuration  prometheus.Histogram
	FallbackActive prometheus.Gauge

	RefreshCycles  *prometheus.CounterVec // labels: outcome={success,degraded,error}
	RefreshSkipped prometheus.Counter
	MonitorRunning prometheus.Gauge

	CurrentWaterLevel prometheus.Gauge
	CurrentTier       *prometheus.GaugeVec // labels: tier={normal,warning,danger}; active tier is 1

	ReadingsSaved prometheus.Counter
	StorageErrors prometheus.Counter
	HistorySize   prometheus.Gauge

	AlertsPublished *prometheus.CounterVec // labels: sink={kafka,telegram}, outcome={success,error}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FetchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pegel",
			Name:      "fetch_attempts_total",
			Help:      "Total HTTP fetch attempts against the gauge feed.",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pegel",
			Name:      "fetch_failures_total",
			Help:      "Failed fetch attempts by failure reason.",
		}, []string{"reason"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pegel",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single fetch attempt.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		FallbackActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pegel",
			Name:      "fallback_transport_active",
			Help:      "1 when the fallback transport is latched, 0 otherwise.",
		}),
		RefreshCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pegel",
			Name:      "refresh_cycles_total",
			Help:      "Completed refresh cycles by outcome.",
		}, []string{"outcome"}),
		RefreshSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pegel",
			Name:      "refresh_skipped_total",
			Help:      "Refresh triggers skipped because a cycle was in flight.",
		}),
		MonitorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pegel",
			Name:      "monitor_running",
			Help:      "1 when the refresh loop is active, 0 when shut down.",
		}),
		CurrentWaterLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pegel",
			Name:      "water_level_cm",
			Help:      "Most recently displayed water level in centimeters.",
		}),
		CurrentTier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pegel",
			Name:      "alert_tier",
			Help:      "Active alert tier (the current tier's series is 1).",
		}, []string{"tier"}),
		ReadingsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pegel",
			Name:      "readings_saved_total",
			Help:      "Readings successfully persisted to the history store.",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pegel",
			Name:      "storage_errors_total",
			Help:      "History store failures swallowed at the storage boundary.",
		}),
		HistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pegel",
			Name:      "history_entries",
			Help:      "Number of readings currently held in the history slot.",
		}),
		AlertsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pegel",
			Name:      "alerts_published_total",
			Help:      "Tier-change alerts by sink and outcome.",
		}, []string{"sink", "outcome"}),
	}

	prometheus.MustRegister(
		m.FetchAttempts,
		m.FetchFailures,
		m.FetchDuration,
		m.FallbackActive,
		m.RefreshCycles,
		m.RefreshSkipped,
		m.MonitorRunning,
		m.CurrentWaterLevel,
		m.CurrentTier,
		m.ReadingsSaved,
		m.StorageErrors,
		m.HistorySize,
		m.AlertsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FetchAttempts:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "pegel", Name: "fetch_attempts_total"}),
		FetchFailures:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "pegel", Name: "fetch_failures_total"}, []string{"reason"}),
		FetchDuration:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "pegel", Name: "fetch_duration_seconds"}),
		FallbackActive:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "pegel", Name: "fallback_transport_active"}),
		RefreshCycles:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "pegel", Name: "refresh_cycles_total"}, []string{"outcome"}),
		RefreshSkipped:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "pegel", Name: "refresh_skipped_total"}),
		MonitorRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "pegel", Name: "monitor_running"}),
		CurrentWaterLevel: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "pegel", Name: "water_level_cm"}),
		CurrentTier:       prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "pegel", Name: "alert_tier"}, []string{"tier"}),
		ReadingsSaved:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "pegel", Name: "readings_saved_total"}),
		StorageErrors:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "pegel", Name: "storage_errors_total"}),
		HistorySize:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "pegel", Name: "history_entries"}),
		AlertsPublished:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "pegel", Name: "alerts_published_total"}, []string{"sink", "outcome"}),
	}
}
