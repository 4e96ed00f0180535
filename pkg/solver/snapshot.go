package solver

import (
	"context"
	"errors"
	"time"

	"github.com/dd0wney/cluso-cd/pkg/checkpoint"
	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/logging"
)

// Header describes this run for a new checkpoint.
func (h *Handler1D) Header(runID string) checkpoint.Header {
	hdr := checkpoint.Header{
		RunID:   runID,
		Created: time.Now().UTC(),
		Nx:      h.nx,
		Hx:      h.opts.Hx,
		DOF:     h.dof,
		Network: h.net.Properties(),
	}
	if h.grid != nil {
		hdr.Grid = h.grid.Points()
	}
	return hdr
}

// NewStep returns an empty snapshot of the whole grid at the current surface.
func (h *Handler1D) NewStep(index int, t, dt float64) *checkpoint.Step {
	return &checkpoint.Step{
		Index:     index,
		Time:      t,
		DeltaTime: dt,
		Surface:   h.surface,
		Points:    make([][]checkpoint.Entry, h.nx),
	}
}

// FillStep stores the owned points of c in st. Partitions fill disjoint
// points, so they may share one step.
func (h *Handler1D) FillStep(st *checkpoint.Step, c *grid.Field) {
	for xi := c.Start(); xi < c.End() && xi < len(st.Points); xi++ {
		st.Points[xi] = checkpoint.Compact(c.At(xi))
	}
}

// WriteStep persists st in the configured store.
func (h *Handler1D) WriteStep(ctx context.Context, st *checkpoint.Step) error {
	if h.opts.Store == nil {
		return solverError("checkpoint", -1, errors.New("no checkpoint store configured"))
	}
	if err := h.opts.Store.WriteStep(ctx, st); err != nil {
		return solverError("checkpoint", -1, err)
	}
	h.logger.Info("checkpoint written",
		logging.Step(st.Index),
		logging.Float64("time", st.Time),
		logging.Int("surface", st.Surface),
	)
	return nil
}
