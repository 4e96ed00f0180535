// Package solver assembles the right-hand side and the Jacobian of the 1D
// reaction-diffusion system for an external implicit time integrator.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-cd/pkg/checkpoint"
	"github.com/dd0wney/cluso-cd/pkg/comm"
	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/logging"
	"github.com/dd0wney/cluso-cd/pkg/metrics"
	"github.com/dd0wney/cluso-cd/pkg/network"
	"github.com/dd0wney/cluso-cd/pkg/process"
	"github.com/dd0wney/cluso-cd/pkg/temperature"
)

// SurfaceHeliumDepth is how far below the surface (nm) bubble helium counts
// towards trap-mutation attenuation.
const SurfaceHeliumDepth = 2.0

// Options configures a Handler1D. Nx and Hx are only used when the
// checkpoint store has no header. Reactions adds the network fluxes and their
// derivatives.
type Options struct {
	Network     *network.Network
	Temperature temperature.Handler

	Nx           int
	Hx           float64
	Regular      bool
	VoidPortion  float64
	InitialVConc float64

	Flux         *process.IncidentFlux
	Diffusion    *process.Diffusion
	Advection    []*process.Advection
	TrapMutation *process.TrapMutation
	Bursting     *process.Bursting
	Reactions    bool

	Store   checkpoint.Store
	Reducer comm.Reducer
	Logger  logging.Logger
	Metrics *metrics.Registry
}

// SolverContext is what the time integrator needs to lay out its vectors and
// its matrix. OFill couples a DOF to DOFs of the neighbouring points, DFill to
// DOFs of the same point.
type SolverContext struct {
	DOF     int
	Nx      int
	Grid    *grid.Grid
	Surface int
	OFill   *grid.Fill
	DFill   *grid.Fill
}

// Handler1D drives one partition: it walks the owned grid points, feeds each
// to the network and the process handlers and scatters the results. It owns
// the network and is not safe for concurrent use.
type Handler1D struct {
	opts    Options
	net     *network.Network
	temp    temperature.Handler
	reducer comm.Reducer
	logger  logging.Logger
	metrics *metrics.Registry

	handlers []process.Handler
	spatial  []process.Handler
	local    []process.Handler

	grid    *grid.Grid
	nx      int
	dof     int
	surface int

	lastTemperature float64
	hasTemperature  bool
	restored        *checkpoint.Step

	point           process.Point
	partials        []process.Partial
	clusterPartials []float64
	cols            []Stencil
	vals            []float64
}

func NewHandler1D(opts Options) (*Handler1D, error) {
	if opts.Network == nil {
		return nil, errors.New("solver: network required")
	}
	if opts.Temperature == nil {
		return nil, errors.New("solver: temperature handler required")
	}
	h := &Handler1D{
		opts:    opts,
		net:     opts.Network,
		temp:    opts.Temperature,
		reducer: opts.Reducer,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if h.reducer == nil {
		h.reducer = comm.Single{}
	}
	if h.logger == nil {
		h.logger = logging.NewNopLogger()
	}
	h.logger = h.logger.With(logging.Component("solver"), logging.Rank(h.reducer.Rank()))

	// Contributions are added in this order.
	if opts.Flux != nil {
		h.handlers = append(h.handlers, opts.Flux)
	}
	if opts.Diffusion != nil {
		h.handlers = append(h.handlers, opts.Diffusion)
	}
	for _, a := range opts.Advection {
		h.handlers = append(h.handlers, a)
	}
	if opts.TrapMutation != nil {
		h.handlers = append(h.handlers, opts.TrapMutation)
	}
	if opts.Bursting != nil {
		h.handlers = append(h.handlers, opts.Bursting)
	}
	for _, p := range h.handlers {
		if p.Coupling() == process.Spatial {
			h.spatial = append(h.spatial, p)
		} else {
			h.local = append(h.local, p)
		}
	}
	return h, nil
}

func (h *Handler1D) Network() *network.Network { return h.net }
func (h *Handler1D) Grid() *grid.Grid          { return h.grid }
func (h *Handler1D) Surface() int              { return h.surface }
func (h *Handler1D) DOF() int                  { return h.dof }

// Handlers lists the process handlers in contribution order.
func (h *Handler1D) Handlers() []process.Handler { return h.handlers }

// Restored is the checkpoint step InitializeConcentration started from, or
// nil for a cold start.
func (h *Handler1D) Restored() *checkpoint.Step { return h.restored }

// CreateSolverContext prepares the network at the origin temperature, builds
// the grid and the handler indexes and returns the block fills.
func (h *Handler1D) CreateSolverContext(ctx context.Context) (*SolverContext, error) {
	start := time.Now()

	h.hasTemperature = false
	h.updateTemperature(h.temp.Temperature([3]float64{}, 0))
	if err := h.net.ReinitializeConnectivities(); err != nil {
		return nil, solverError("create", -1, err)
	}
	h.dof = h.net.DOF()

	g, err := h.loadGrid(ctx)
	if err != nil {
		return nil, err
	}
	h.grid = g
	h.nx = g.Len()
	if err := h.initializeHandlers(h.surfaceFor(h.nx)); err != nil {
		return nil, err
	}

	h.clusterPartials = make([]float64, h.dof)
	h.cols = make([]Stencil, 0, h.dof)
	h.vals = make([]float64, 0, h.dof)

	ofill := grid.NewFill(h.dof)
	dfill := grid.NewFill(h.dof)
	for _, p := range h.handlers {
		if f, ok := p.(process.OffDiagonalFiller); ok {
			f.FillOffDiagonal(ofill)
		}
		if f, ok := p.(process.DiagonalFiller); ok {
			f.FillDiagonal(dfill)
		}
	}
	if h.opts.Reactions {
		for row := range h.dof {
			dfill.SetRow(row, h.net.ColumnMap(row))
		}
	}

	h.logger.Info("solver context created",
		logging.DOF(h.dof),
		logging.Int("nx", h.nx),
		logging.Int("surface", h.surface),
		logging.Int("ofill", ofill.Count()),
		logging.Int("dfill", dfill.Count()),
		logging.Latency(time.Since(start)),
	)
	return &SolverContext{
		DOF:     h.dof,
		Nx:      h.nx,
		Grid:    h.grid,
		Surface: h.surface,
		OFill:   ofill,
		DFill:   dfill,
	}, nil
}

func (h *Handler1D) surfaceFor(nx int) int {
	return int(float64(nx) * h.opts.VoidPortion / 100)
}

// loadGrid prefers the grid recorded in the checkpoint header.
func (h *Handler1D) loadGrid(ctx context.Context) (*grid.Grid, error) {
	nx, hx := h.opts.Nx, h.opts.Hx
	if h.opts.Store != nil {
		hdr, err := h.opts.Store.Header(ctx)
		switch {
		case errors.Is(err, checkpoint.ErrNoHeader):
		case err != nil:
			return nil, solverError("create", -1, err)
		default:
			if hdr.DOF > 0 && hdr.DOF != h.dof {
				return nil, solverError("create", -1,
					fmt.Errorf("%w: header has %d DOF, network has %d", ErrCheckpointMismatch, hdr.DOF, h.dof))
			}
			if len(hdr.Grid) > 0 {
				g, err := grid.New(hdr.Grid)
				if err != nil {
					return nil, solverError("create", -1, err)
				}
				return g, nil
			}
			nx, hx = hdr.Nx, hdr.Hx
		}
	}
	g, err := grid.Generate(nx, hx, h.surfaceFor(nx), h.opts.Regular)
	if err != nil {
		return nil, solverError("create", -1, err)
	}
	return g, nil
}

// initializeHandlers rebuilds every handler index for a surface position.
func (h *Handler1D) initializeHandlers(surface int) error {
	if len(h.opts.Advection) > 0 {
		h.opts.Advection[0].SetLocation(h.grid.X(surface))
	}
	for _, p := range h.handlers {
		if err := p.Initialize(h.net, h.grid, surface); err != nil {
			return solverError("initialize "+p.Name(), -1, err)
		}
	}
	if h.opts.Diffusion != nil {
		h.opts.Diffusion.InitializeGrid(h.opts.Advection, h.grid)
	}
	for _, p := range h.handlers {
		if r, ok := p.(process.RateRefresher); ok {
			r.RefreshRates(h.net)
		}
		if c, ok := p.(process.Counter); ok && h.metrics != nil {
			h.metrics.SetProcessEntries(p.Name(), c.Entries())
		}
	}
	h.surface = surface
	return nil
}

// InitializeConcentration writes the initial state of the owned points of f:
// the last checkpoint step when there is one, otherwise V1 at initialVConc
// on interior points.
func (h *Handler1D) InitializeConcentration(ctx context.Context, f *grid.Field) error {
	if err := h.checkField("initialize", f); err != nil {
		return err
	}
	f.Zero()

	step, err := h.lastStep(ctx)
	if err != nil {
		return err
	}
	if step != nil && step.Surface != h.surface {
		if err := h.initializeHandlers(step.Surface); err != nil {
			return err
		}
	}

	if step != nil {
		if len(step.Points) != h.nx {
			return solverError("restore", -1,
				fmt.Errorf("%w: step %d has %d points, grid has %d", ErrCheckpointMismatch, step.Index, len(step.Points), h.nx))
		}
		for xi := f.Start(); xi < f.End(); xi++ {
			if err := step.Concentrations(xi, f.At(xi)); err != nil {
				return solverError("restore", xi, err)
			}
		}
		return nil
	}

	v := h.net.Get(network.V, 1)
	if v == nil {
		return nil
	}
	for xi := f.Start(); xi < f.End(); xi++ {
		if h.interior(xi) {
			f.At(xi)[v.ID()-1] = h.opts.InitialVConc
		}
	}
	return nil
}

func (h *Handler1D) lastStep(ctx context.Context) (*checkpoint.Step, error) {
	h.restored = nil
	if h.opts.Store == nil {
		return nil, nil
	}
	last, err := h.opts.Store.LastStep(ctx)
	if errors.Is(err, checkpoint.ErrStepNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, solverError("restore", -1, err)
	}
	step, err := h.opts.Store.Step(ctx, last)
	if err != nil {
		return nil, solverError("restore", -1, err)
	}
	h.logger.Info("restoring checkpoint",
		logging.Step(step.Index),
		logging.Float64("time", step.Time),
		logging.Int("surface", step.Surface),
	)
	h.restored = step
	return step, nil
}

// interior reports whether xi is neither above the surface nor the last point.
func (h *Handler1D) interior(xi int) bool {
	return xi > h.surface && xi < h.nx-1
}

func (h *Handler1D) checkField(op string, f *grid.Field) error {
	if h.grid == nil {
		return ErrNotInitialized
	}
	if f.DOF() != h.dof {
		return solverError(op, -1, fmt.Errorf("field has %d DOF, network has %d", f.DOF(), h.dof))
	}
	if f.Start() < 0 || f.End() > h.nx {
		return solverError(op, -1, fmt.Errorf("field [%d,%d) outside grid of %d points", f.Start(), f.End(), h.nx))
	}
	return nil
}

// updateTemperature applies T to the network and the rate-following handlers
// when it differs from the last applied value.
func (h *Handler1D) updateTemperature(T float64) {
	if h.hasTemperature && T == h.lastTemperature {
		return
	}
	h.net.SetTemperature(T)
	h.lastTemperature = T
	h.hasTemperature = true
	if !h.net.Ready() {
		return
	}
	for _, p := range h.handlers {
		if r, ok := p.(process.RateRefresher); ok {
			r.RefreshRates(h.net)
		}
	}
}

// surfaceHelium integrates the helium held in bubbles over the owned interior
// points within SurfaceHeliumDepth of the surface.
func (h *Handler1D) surfaceHelium(c *grid.Field) float64 {
	bubbles := h.net.GetAll(network.TypeHeV)
	supers := h.net.Supers()
	var sum float64
	for xi := c.Start(); xi < c.End(); xi++ {
		if !h.interior(xi) || h.grid.Depth(xi, h.surface) > SurfaceHeliumDepth {
			continue
		}
		values := c.At(xi)
		var he float64
		for _, b := range bubbles {
			he += h.net.Content(values, b.ID(), network.He)
		}
		for _, s := range supers {
			he += h.net.Content(values, s.ID(), network.He)
		}
		sum += he * h.grid.LeftStep(xi)
	}
	return sum
}

// updateDisappearingRate is the one collective call of an evaluation. Every
// partition issues it at the same place.
func (h *Handler1D) updateDisappearingRate(ctx context.Context, c *grid.Field) error {
	tm := h.opts.TrapMutation
	if tm == nil {
		return nil
	}
	total, err := h.reducer.AllReduceSum(ctx, h.surfaceHelium(c))
	if h.metrics != nil {
		h.metrics.RecordReduction(total, err)
	}
	if err != nil {
		return solverError("reduce", -1, fmt.Errorf("%w: %w", ErrReduceFailed, err))
	}
	tm.UpdateDisappearingRate(total)
	return nil
}

// bind points the scratch Point at xi and applies the local temperature.
func (h *Handler1D) bind(xi int, t float64, c *grid.Field) *process.Point {
	p := &h.point
	p.Grid = h.grid
	p.Index = xi
	p.Time = t
	p.Temperature = h.temp.Temperature([3]float64{h.grid.X(xi), 0, 0}, t)
	h.updateTemperature(p.Temperature)
	p.Middle = c.At(xi)
	p.Left = c.At(xi - 1)
	p.Right = c.At(xi + 1)
	p.Local = network.Local{}
	return p
}

func (h *Handler1D) record(kind string, start time.Time, err error) {
	if h.metrics != nil {
		h.metrics.RecordEvaluation(kind, err, time.Since(start))
	}
	if err != nil {
		h.logger.Error("evaluation failed", logging.String("kind", kind), logging.Error(err))
		return
	}
	if h.logger.Enabled(logging.DebugLevel) {
		h.logger.Debug("evaluation done", logging.String("kind", kind), logging.Latency(time.Since(start)))
	}
}

// UpdateConcentration computes the right-hand side F(t, c) on the owned points.
// Boundary points copy c; c must have its ghost points filled.
func (h *Handler1D) UpdateConcentration(ctx context.Context, t float64, c, F *grid.Field) (err error) {
	start := time.Now()
	defer func() { h.record("rhs", start, err) }()

	if err := h.checkField("rhs", c); err != nil {
		return err
	}
	if F.Start() != c.Start() || F.Len() != c.Len() || F.DOF() != c.DOF() {
		return solverError("rhs", -1, errors.New("concentration and update fields differ in shape"))
	}
	if err := h.updateDisappearingRate(ctx, c); err != nil {
		return err
	}
	if h.opts.Flux != nil {
		h.opts.Flux.IncidentFluxVec(t, h.surface)
	}

	supers := h.net.Supers()
	var boundary, active int
	for xi := c.Start(); xi < c.End(); xi++ {
		in, out := c.At(xi), F.At(xi)
		if !h.interior(xi) {
			for i := range out {
				out[i] = 1.0 * in[i]
			}
			boundary++
			continue
		}
		clear(out)

		p := h.bind(xi, t, c)
		p.Local = h.net.Ingest(in)
		for _, proc := range h.handlers {
			proc.ComputeContribution(p, out)
		}
		if h.opts.Reactions {
			for id := 1; id <= h.net.Size(); id++ {
				out[id-1] += p.Local.TotalFlux(id)
			}
			for _, s := range supers {
				for m := range s.MomentCount() {
					out[s.MomentID(m)-1] += p.Local.MomentFlux(s, m)
				}
			}
		}
		active++
	}
	if h.metrics != nil {
		h.metrics.RecordGridPoints("boundary", boundary)
		h.metrics.RecordGridPoints("active", active)
	}
	return nil
}

// ComputeOffDiagonalJacobian adds the spatially coupled entries (diffusion
// and advection) of the owned interior points to J.
func (h *Handler1D) ComputeOffDiagonalJacobian(ctx context.Context, t float64, c *grid.Field, J Matrix) (err error) {
	start := time.Now()
	defer func() { h.record("jacobian_offdiagonal", start, err) }()

	if err := h.checkField("jacobian", c); err != nil {
		return err
	}
	writes := 0
	defer func() {
		if h.metrics != nil {
			h.metrics.RecordMatrixWrites("offdiagonal", writes)
		}
	}()
	for xi := c.Start(); xi < c.End(); xi++ {
		if err := ctx.Err(); err != nil {
			return solverError("jacobian", xi, err)
		}
		if !h.interior(xi) {
			continue
		}
		p := h.bind(xi, t, c)
		h.partials = h.partials[:0]
		for _, proc := range h.spatial {
			h.partials = proc.ComputePartials(p, h.partials)
		}
		n, err := h.scatter(J, xi, h.partials)
		writes += n
		if err != nil {
			return err
		}
	}
	return nil
}

// ComputeDiagonalJacobian adds the entries that couple DOFs of one point:
// reaction rows through the column map, then trap mutation and bursting.
func (h *Handler1D) ComputeDiagonalJacobian(ctx context.Context, t float64, c *grid.Field, J Matrix) (err error) {
	start := time.Now()
	defer func() { h.record("jacobian_diagonal", start, err) }()

	if err := h.checkField("jacobian", c); err != nil {
		return err
	}
	if err := h.updateDisappearingRate(ctx, c); err != nil {
		return err
	}
	writes := 0
	defer func() {
		if h.metrics != nil {
			h.metrics.RecordMatrixWrites("diagonal", writes)
		}
	}()

	supers := h.net.Supers()
	for xi := c.Start(); xi < c.End(); xi++ {
		if !h.interior(xi) {
			continue
		}
		p := h.bind(xi, t, c)
		p.Local = h.net.Ingest(p.Middle)

		if h.opts.Reactions {
			for id := 1; id <= h.net.Size(); id++ {
				p.Local.PartialDerivatives(id, h.clusterPartials)
				n, err := h.writeRow(J, xi, id-1)
				writes += n
				if err != nil {
					return err
				}
			}
			for _, s := range supers {
				for m := range s.MomentCount() {
					p.Local.MomentPartialDerivatives(s, m, h.clusterPartials)
					n, err := h.writeRow(J, xi, s.MomentID(m)-1)
					writes += n
					if err != nil {
						return err
					}
				}
			}
		}

		h.partials = h.partials[:0]
		for _, proc := range h.local {
			h.partials = proc.ComputePartials(p, h.partials)
		}
		n, err := h.scatter(J, xi, h.partials)
		writes += n
		if err != nil {
			return err
		}
	}
	return nil
}

// ComputeJacobian adds both blocks.
func (h *Handler1D) ComputeJacobian(ctx context.Context, t float64, c *grid.Field, J Matrix) error {
	if err := h.ComputeOffDiagonalJacobian(ctx, t, c, J); err != nil {
		return err
	}
	return h.ComputeDiagonalJacobian(ctx, t, c, J)
}

// writeRow moves the column-map entries of row out of clusterPartials into J
// and zeroes them.
func (h *Handler1D) writeRow(J Matrix, xi, row int) (int, error) {
	cols := h.net.ColumnMap(row)
	if len(cols) == 0 {
		return 0, nil
	}
	h.cols = h.cols[:0]
	h.vals = h.vals[:0]
	for _, col := range cols {
		h.cols = append(h.cols, Stencil{I: xi, C: col})
		h.vals = append(h.vals, h.clusterPartials[col])
		h.clusterPartials[col] = 0
	}
	if err := J.AddValuesStencil(Stencil{I: xi, C: row}, h.cols, h.vals); err != nil {
		h.logger.Debug("matrix row rejected",
			logging.GridPoint(xi),
			logging.ClusterID(row+1),
			logging.Count(len(cols)),
		)
		return 0, solverError("jacobian", xi, err)
	}
	return 1, nil
}

// scatter writes partials, one call per run of entries sharing a row.
func (h *Handler1D) scatter(J Matrix, xi int, partials []process.Partial) (int, error) {
	writes := 0
	for len(partials) > 0 {
		row := partials[0].Row
		n := 1
		for n < len(partials) && partials[n].Row == row {
			n++
		}
		h.cols = h.cols[:0]
		h.vals = h.vals[:0]
		for _, p := range partials[:n] {
			h.cols = append(h.cols, Stencil{I: p.ColPoint, C: p.Col})
			h.vals = append(h.vals, p.Value)
		}
		if err := J.AddValuesStencil(Stencil{I: xi, C: row}, h.cols, h.vals); err != nil {
			return writes, solverError("jacobian", xi, err)
		}
		writes++
		partials = partials[n:]
	}
	return writes, nil
}
