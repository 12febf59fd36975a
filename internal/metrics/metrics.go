package metrics

import (
	"github.com/osvaldoandrade/irisenroll/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "irisenroll"

var (
	ItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Total number of source images processed, labeled by final status.",
		},
		[]string{"status"},
	)

	ExtractionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_seconds",
			Help:      "Time spent extracting one template (seconds).",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	WriteSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_seconds",
			Help:      "Time spent persisting one artifact (seconds).",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
		},
	)

	ItemsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_in_flight",
			Help:      "Number of images currently being processed by workers.",
		},
	)

	RunDurationSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the last enrollment run (seconds).",
		},
	)

	RunItems = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_items",
			Help:      "Items of the last enrollment run, labeled by final status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		ItemsTotal,
		ExtractionSeconds,
		WriteSeconds,
		ItemsInFlight,
		RunDurationSeconds,
		RunItems,
	)
}

// ObserveCompletion counts one finished item.
func ObserveCompletion(c domain.Completion) {
	ItemsTotal.WithLabelValues(string(c.Status)).Inc()
}

// ObserveRun records the totals of a finished run.
func ObserveRun(s domain.RunSummary) {
	RunDurationSeconds.Set(s.Elapsed.Seconds())
	RunItems.WithLabelValues(string(domain.StatusEnrolled)).Set(float64(s.Enrolled))
	RunItems.WithLabelValues(string(domain.StatusFailed)).Set(float64(s.Failed))
	RunItems.WithLabelValues(string(domain.StatusSkipped)).Set(float64(s.Skipped))
}
