package metrics

import (
	"time"
)

// NetworkShape is a snapshot of the network size published after a rebuild
type NetworkShape struct {
	ClustersByType  map[string]int
	ReactionsByKind map[string]int
	DOF             int
}

// RecordNetworkShape publishes the network gauges and counts a rebuild
func (r *Registry) RecordNetworkShape(shape NetworkShape) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.NetworkClusters.Reset()
	for typ, n := range shape.ClustersByType {
		r.NetworkClusters.WithLabelValues(typ).Set(float64(n))
	}
	r.NetworkReactions.Reset()
	for kind, n := range shape.ReactionsByKind {
		r.NetworkReactions.WithLabelValues(kind).Set(float64(n))
	}
	r.NetworkDOF.Set(float64(shape.DOF))
	r.NetworkReinitializations.Inc()
}

// RecordRateRecompute records a temperature change and the new largest rate
func (r *Registry) RecordRateRecompute(temperature, largestRate float64) {
	r.NetworkTemperature.Set(temperature)
	r.NetworkLargestRate.Set(largestRate)
	r.NetworkRateRecomputes.Inc()
}

// RecordEvaluation records one RHS or Jacobian evaluation
func (r *Registry) RecordEvaluation(kind string, err error, duration time.Duration) {
	r.EvaluationsTotal.WithLabelValues(kind, status(err)).Inc()
	r.EvaluationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordGridPoints counts visited points by state ("boundary" or "active")
func (r *Registry) RecordGridPoints(state string, n int) {
	if n > 0 {
		r.GridPointsTotal.WithLabelValues(state).Add(float64(n))
	}
}

// RecordReduction records one collective reduction and its result
func (r *Registry) RecordReduction(total float64, err error) {
	r.ReductionsTotal.WithLabelValues(status(err)).Inc()
	if err == nil {
		r.SurfaceHelium.Set(total)
	}
}

// RecordMatrixWrites counts calls into the matrix write API
func (r *Registry) RecordMatrixWrites(part string, n int) {
	if n > 0 {
		r.MatrixWritesTotal.WithLabelValues(part).Add(float64(n))
	}
}

// SetProcessEntries publishes the index size of a process handler
func (r *Registry) SetProcessEntries(process string, n int) {
	r.ProcessEntries.WithLabelValues(process).Set(float64(n))
}

// RecordCheckpointOperation records a checkpoint store operation
func (r *Registry) RecordCheckpointOperation(store, operation string, err error, duration time.Duration) {
	r.CheckpointOperationsTotal.WithLabelValues(store, operation, status(err)).Inc()
	r.CheckpointOperationDuration.WithLabelValues(store, operation).Observe(duration.Seconds())
}

// RecordCheckpointBytes counts encoded bytes read ("in") or written ("out")
func (r *Registry) RecordCheckpointBytes(store, direction string, n int) {
	if n > 0 {
		r.CheckpointBytesTotal.WithLabelValues(store, direction).Add(float64(n))
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
