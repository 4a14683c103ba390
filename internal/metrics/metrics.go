package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-stream pipeline counters, gauges and histograms.

var (
	// Frame flow
	FramesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preprocess",
		Subsystem: "pipeline",
		Name:      "frames_processed_total",
		Help:      "Total frames fully processed and emitted",
	}, []string{"stream"})

	FramesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preprocess",
		Subsystem: "pipeline",
		Name:      "frames_skipped_total",
		Help:      "Total frames skipped without output",
	}, []string{"stream", "reason"})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preprocess",
		Subsystem: "pipeline",
		Name:      "frames_dropped_total",
		Help:      "Total frames dropped by the depth-1 input buffer under backpressure",
	}, []string{"stream"})

	StageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "preprocess",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Per-frame stage processing duration",
		Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"stream", "stage"})

	// Auto-tune controller
	TuneTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preprocess",
		Subsystem: "autotune",
		Name:      "ticks_total",
		Help:      "Total controller ticks by decision",
	}, []string{"stream", "decision"})

	TuneCommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preprocess",
		Subsystem: "autotune",
		Name:      "commits_total",
		Help:      "Total committed parameter changes",
	}, []string{"stream"})

	GammaCurrent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "preprocess",
		Subsystem: "autotune",
		Name:      "gamma",
		Help:      "Current committed gamma",
	}, []string{"stream"})

	CLAHEClipCurrent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "preprocess",
		Subsystem: "autotune",
		Name:      "clahe_clip",
		Help:      "Current committed CLAHE clip limit",
	}, []string{"stream"})

	// Smoothed brightness statistics
	SmoothedMean = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "preprocess",
		Subsystem: "stats",
		Name:      "smoothed_mean",
		Help:      "EMA-smoothed luma mean",
	}, []string{"stream"})

	SmoothedStd = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "preprocess",
		Subsystem: "stats",
		Name:      "smoothed_std",
		Help:      "EMA-smoothed luma standard deviation",
	}, []string{"stream"})

	SmoothedSatRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "preprocess",
		Subsystem: "stats",
		Name:      "smoothed_sat_ratio",
		Help:      "EMA-smoothed saturated pixel ratio",
	}, []string{"stream"})

	SmoothedDarkRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "preprocess",
		Subsystem: "stats",
		Name:      "smoothed_dark_ratio",
		Help:      "EMA-smoothed dark pixel ratio",
	}, []string{"stream"})

	// Checkpoint persistence
	CheckpointSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "preprocess",
		Subsystem: "checkpoint",
		Name:      "saves_total",
		Help:      "Total checkpoint save attempts by status",
	}, []string{"stream", "status"})
)
