package files

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_drop_sweeps_total",
		Help: "Number of completed expiry sweeps",
	})

	sweepsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_drop_sweeps_skipped_total",
		Help: "Number of sweeps skipped because another sweep was running",
	})

	// filesReclaimedTotal is labelled by trigger: sweep or manual.
	filesReclaimedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_drop_files_reclaimed_total",
		Help: "Number of files removed from storage and marked deleted",
	}, []string{"trigger"})

	reclaimErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "media_drop_reclaim_errors_total",
		Help: "Number of failed removals left for the next sweep",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_drop_sweep_duration_seconds",
		Help:    "Duration of expiry sweeps in seconds",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	recordsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "media_drop_records",
		Help: "Number of known records by status after the last sweep",
	}, []string{"status"})
)
