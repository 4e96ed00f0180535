package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSolverMetrics() {
	r.EvaluationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusocd_solver_evaluations_total",
			Help: "Number of RHS and Jacobian evaluations",
		},
		[]string{"kind", "status"},
	)

	r.EvaluationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clusocd_solver_evaluation_duration_seconds",
			Help:    "Evaluation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"kind"},
	)

	r.GridPointsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusocd_solver_grid_points_total",
			Help: "Grid points visited by evaluations, by state",
		},
		[]string{"state"},
	)

	r.ReductionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusocd_solver_reductions_total",
			Help: "Collective reductions issued",
		},
		[]string{"status"},
	)

	r.SurfaceHelium = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "clusocd_solver_surface_helium",
			Help: "Helium retained near the surface after the last reduction",
		},
	)

	r.MatrixWritesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusocd_solver_matrix_writes_total",
			Help: "Calls into the matrix write API by Jacobian part",
		},
		[]string{"part"},
	)

	r.ProcessEntries = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clusocd_process_entries",
			Help: "Index entries built by each process handler",
		},
		[]string{"process"},
	)
}
