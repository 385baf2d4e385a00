// Package metrics exposes the Pipeline Orchestrator's Prometheus
// instrumentation: frame throughput, detector latency, TCP reconnects, and
// the current risk level (SPEC_FULL.md ambient-stack Metrics expansion).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "birdstrike",
		Name:      "frames_ingested_total",
		Help:      "Total number of frame bundles emitted by the frame source",
	})

	FramesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "birdstrike",
		Name:      "frames_skipped_total",
		Help:      "Total number of frame bundles dropped by the frame-skip policy",
	})

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "birdstrike",
		Name:      "frames_dropped_total",
		Help:      "Total number of frame bundles dropped due to a full processing queue",
	})

	FramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "birdstrike",
		Name:      "frames_processed_total",
		Help:      "Total number of frame bundles fully processed by the pipeline",
	})

	DetectorLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "birdstrike",
		Name:      "detector_latency_seconds",
		Help:      "Duration of a batched detector call",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	ProcessingQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "birdstrike",
		Name:      "processing_queue_depth",
		Help:      "Number of frame bundles currently queued for processing",
	})

	TCPReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "birdstrike",
		Name:      "tcp_reconnects_total",
		Help:      "Total number of TCP reconnect attempts to the command server",
	})

	CurrentRiskLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "birdstrike",
		Name:      "current_risk_level",
		Help:      "Current stabilized risk level as a per-label indicator: 1 on the active level label (LOW, MEDIUM or HIGH), 0 on the others",
	}, []string{"level"})
)

// SetRiskLevel sets the active level's gauge to 1 and clears the others, so
// a Prometheus query can select the currently active level by label.
func SetRiskLevel(level string) {
	for _, l := range []string{"LOW", "MEDIUM", "HIGH"} {
		if l == level {
			CurrentRiskLevel.WithLabelValues(l).Set(1)
		} else {
			CurrentRiskLevel.WithLabelValues(l).Set(0)
		}
	}
}
