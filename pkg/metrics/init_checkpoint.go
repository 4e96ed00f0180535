package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCheckpointMetrics() {
	r.CheckpointOperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusocd_checkpoint_operations_total",
			Help: "Checkpoint store operations",
		},
		[]string{"store", "operation", "status"},
	)

	r.CheckpointOperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clusocd_checkpoint_operation_duration_seconds",
			Help:    "Checkpoint operation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"store", "operation"},
	)

	r.CheckpointBytesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusocd_checkpoint_bytes_total",
			Help: "Encoded bytes moved by checkpoint stores",
		},
		[]string{"store", "direction"},
	)
}
