package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for a run
type Registry struct {
	// Network Metrics
	NetworkClusters          *prometheus.GaugeVec
	NetworkDOF               prometheus.Gauge
	NetworkReactions         *prometheus.GaugeVec
	NetworkTemperature       prometheus.Gauge
	NetworkRateRecomputes    prometheus.Counter
	NetworkReinitializations prometheus.Counter
	NetworkLargestRate       prometheus.Gauge

	// Solver Metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	GridPointsTotal    *prometheus.CounterVec
	ReductionsTotal    *prometheus.CounterVec
	SurfaceHelium      prometheus.Gauge
	MatrixWritesTotal  *prometheus.CounterVec
	ProcessEntries     *prometheus.GaugeVec

	// Checkpoint Metrics
	CheckpointOperationsTotal   *prometheus.CounterVec
	CheckpointOperationDuration *prometheus.HistogramVec
	CheckpointBytesTotal        *prometheus.CounterVec

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initNetworkMetrics()
	r.initSolverMetrics()
	r.initCheckpointMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
