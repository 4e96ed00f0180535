package main

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/dd0wney/cluso-cd/pkg/comm"
	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/logging"
	"github.com/dd0wney/cluso-cd/pkg/solver"
)

// evaluation is one rank's view of an evaluation. The norms and counts are
// global, MaxAbs is over the rank's own points.
type evaluation struct {
	Rank     int
	Size     int
	Nx       int
	DOF      int
	Surface  int
	Restored bool

	RHSNorm float64
	MaxAbs  float64

	JacobianNonZero int
	JacobianNorm    float64
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	env, err := newRunEnv(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	timer := logging.StartTimer(env.logger, "evaluation finished", logging.Float64("time", evalTime))
	var results []*evaluation
	if nngAddress != "" {
		ev, err := evaluateOverNNG(ctx, env)
		if err != nil {
			timer.EndError(err)
			return err
		}
		results = []*evaluation{ev}
	} else {
		n := cfg.Partitions
		if partitions > 0 {
			n = partitions
		}
		results, err = evaluatePartitions(ctx, env, n, evalTime, withJacobian)
		if err != nil {
			timer.EndError(err)
			return err
		}
	}
	timer.End()
	printEvaluation(cmd.OutOrStdout(), results)

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, env.metrics.GetPrometheusRegistry()); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		env.logger.Info("metrics written", logging.Path(metricsFile))
	}
	return nil
}

func evaluateOverNNG(ctx context.Context, env *runEnv) (*evaluation, error) {
	r, err := comm.NewNNG(comm.NNGConfig{
		Address: nngAddress,
		Rank:    nngRank,
		Size:    nngSize,
		Logger:  env.logger,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return evaluatePartition(ctx, env, r, evalTime, withJacobian)
}

// evaluatePartitions runs n in-process partitions and returns their results
// in rank order.
func evaluatePartitions(ctx context.Context, env *runEnv, n int, t float64, jacobian bool) ([]*evaluation, error) {
	if n <= 1 {
		ev, err := evaluatePartition(ctx, env, comm.Single{}, t, jacobian)
		if err != nil {
			return nil, err
		}
		return []*evaluation{ev}, nil
	}
	results := make([]*evaluation, n)
	err := comm.RunPartitions(ctx, n, func(ctx context.Context, r comm.Reducer) error {
		ev, err := evaluatePartition(ctx, env, r, t, jacobian)
		if err != nil {
			return err
		}
		results[r.Rank()] = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// evaluatePartition initializes the whole grid, keeps the points of its own
// range and evaluates them. Every rank performs the same reductions in the
// same order.
func evaluatePartition(ctx context.Context, env *runEnv, r comm.Reducer, t float64, jacobian bool) (*evaluation, error) {
	h, err := env.newHandler(r)
	if err != nil {
		return nil, err
	}
	sc, err := h.CreateSolverContext(ctx)
	if err != nil {
		return nil, err
	}
	full := grid.NewField(0, sc.Nx, sc.DOF)
	if err := h.InitializeConcentration(ctx, full); err != nil {
		return nil, err
	}
	global := make([]float64, sc.Nx*sc.DOF)
	full.Scatter(global)

	parts, err := grid.Split(sc.Nx, r.Size())
	if err != nil {
		return nil, err
	}
	own := parts[r.Rank()]
	c := grid.NewFieldFor(own, sc.DOF)
	c.Gather(global)
	F := grid.NewFieldFor(own, sc.DOF)
	if err := h.UpdateConcentration(ctx, t, c, F); err != nil {
		return nil, err
	}

	values := F.Owned()
	sq, err := r.AllReduceSum(ctx, floats.Dot(values, values))
	if err != nil {
		return nil, err
	}
	ev := &evaluation{
		Rank:     r.Rank(),
		Size:     r.Size(),
		Nx:       sc.Nx,
		DOF:      sc.DOF,
		Surface:  h.Surface(),
		Restored: h.Restored() != nil,
		RHSNorm:  math.Sqrt(sq),
		MaxAbs:   floats.Norm(values, math.Inf(1)),
	}
	if !jacobian {
		return ev, nil
	}

	J := solver.NewDenseMatrix(sc.Nx, sc.DOF)
	if err := h.ComputeJacobian(ctx, t, c, J); err != nil {
		return nil, err
	}
	nnz, err := r.AllReduceSum(ctx, float64(J.NonZero()))
	if err != nil {
		return nil, err
	}
	fro := mat.Norm(J.Dense(), 2)
	fro2, err := r.AllReduceSum(ctx, fro*fro)
	if err != nil {
		return nil, err
	}
	ev.JacobianNonZero = int(nnz)
	ev.JacobianNorm = math.Sqrt(fro2)
	return ev, nil
}

func printEvaluation(w io.Writer, results []*evaluation) {
	first := results[0]
	maxAbs := make([]float64, len(results))
	for i, ev := range results {
		maxAbs[i] = ev.MaxAbs
	}
	fmt.Fprintf(w, "points        %d (surface %d)\n", first.Nx, first.Surface)
	fmt.Fprintf(w, "dof           %d\n", first.DOF)
	if first.Size > 1 && len(results) == 1 {
		fmt.Fprintf(w, "rank          %d of %d\n", first.Rank, first.Size)
	} else {
		fmt.Fprintf(w, "partitions    %d\n", first.Size)
	}
	fmt.Fprintf(w, "restored      %t\n", first.Restored)
	fmt.Fprintf(w, "rhs l2        %.6e\n", first.RHSNorm)
	fmt.Fprintf(w, "rhs max       %.6e\n", floats.Max(maxAbs))
	if first.JacobianNonZero > 0 {
		fmt.Fprintf(w, "jacobian      %d nonzeros, frobenius %.6e\n", first.JacobianNonZero, first.JacobianNorm)
	}
}
