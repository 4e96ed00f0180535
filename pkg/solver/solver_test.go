package solver

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/dd0wney/cluso-cd/pkg/checkpoint"
	"github.com/dd0wney/cluso-cd/pkg/comm"
	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/metrics"
	"github.com/dd0wney/cluso-cd/pkg/network"
	"github.com/dd0wney/cluso-cd/pkg/process"
	"github.com/dd0wney/cluso-cd/pkg/temperature"
)

// testRates keeps every rate of order one so finite differences stay well
// conditioned. Every cluster is mobile.
type testRates struct{}

func (testRates) Parameters(c network.Composition) network.Parameters {
	return network.Parameters{
		DiffusionFactor: 1 / float64(c.Size()),
		ReactionRadius:  0.1 * float64(c.Size()),
	}
}

func (testRates) DiffusionCoefficient(p network.Parameters, temperature float64) float64 {
	if temperature <= 0 {
		return 0
	}
	return p.DiffusionFactor * temperature / 1000
}

func (testRates) ProductionRate(a, b network.Parameters, da, db float64) float64 {
	return (a.ReactionRadius + b.ReactionRadius) * (da + db)
}

func (testRates) DissociationRate(parent network.Composition, _ network.Species, production, _ float64) float64 {
	return 0.1 * production / float64(parent.Size())
}

type setup struct {
	nx          int
	void        float64
	temp        temperature.Handler
	attenuation bool
	store       checkpoint.Store
	reducer     comm.Reducer
	metrics     *metrics.Registry
}

// buildHandler creates a driver over He1-4, V1-7, I1-3, concrete HeV up to
// three vacancies and 2x2 super-clusters above, on a 0.5 nm uniform grid.
func buildHandler(s setup) (*Handler1D, *SolverContext, error) {
	net, err := network.Build(network.Properties{
		network.PropMaxHe:        "4",
		network.PropMaxV:         "7",
		network.PropMaxI:         "3",
		network.PropMaxMixed:     "6",
		network.PropDissociation: "true",
		network.PropGroupingMin:  "4",
		network.PropGroupingHe:   "2",
		network.PropGroupingV:    "2",
	}, testRates{})
	if err != nil {
		return nil, nil, err
	}
	if s.nx == 0 {
		s.nx = 8
	}
	if s.temp == nil {
		s.temp = temperature.Constant(1000)
	}
	h, err := NewHandler1D(Options{
		Network:      net,
		Temperature:  s.temp,
		Nx:           s.nx,
		Hx:           0.5,
		Regular:      true,
		VoidPortion:  s.void,
		InitialVConc: 0.05,
		Flux:         process.NewIncidentFlux(2),
		Diffusion:    process.NewDiffusion(),
		Advection:    []*process.Advection{process.NewAdvection(0, nil)},
		TrapMutation: process.NewTrapMutation(nil, s.attenuation),
		Bursting:     process.NewBursting(),
		Reactions:    true,
		Store:        s.store,
		Reducer:      s.reducer,
		Metrics:      s.metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	sc, err := h.CreateSolverContext(context.Background())
	if err != nil {
		return nil, nil, err
	}
	return h, sc, nil
}

func newHandler(t *testing.T, s setup) (*Handler1D, *SolverContext) {
	t.Helper()
	h, sc, err := buildHandler(s)
	require.NoError(t, err)
	return h, sc
}

// randomState returns a point-major state of the whole grid. Moments are
// signed and smaller than the mean concentrations.
func randomState(h *Handler1D, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	dof := h.DOF()
	out := make([]float64, h.Grid().Len()*dof)
	for i := range out {
		out[i] = 0.1 + 0.9*rng.Float64()
	}
	for xi := range h.Grid().Len() {
		for _, s := range h.Network().Supers() {
			for m := range s.MomentCount() {
				out[xi*dof+s.MomentID(m)-1] = 0.05 * (rng.Float64() - 0.5)
			}
		}
	}
	return out
}

func wholeField(h *Handler1D, global []float64) *grid.Field {
	f := grid.NewField(0, h.Grid().Len(), h.DOF())
	f.Gather(global)
	return f
}

func rhs(t *testing.T, h *Handler1D, time float64, global []float64) []float64 {
	t.Helper()
	F := grid.NewField(0, h.Grid().Len(), h.DOF())
	require.NoError(t, h.UpdateConcentration(context.Background(), time, wholeField(h, global), F))
	out := make([]float64, len(global))
	F.Scatter(out)
	return out
}

func TestCreateSolverContext(t *testing.T) {
	h, sc := newHandler(t, setup{})
	net := h.Network()

	assert.Equal(t, net.DOF(), sc.DOF)
	assert.Equal(t, 8, sc.Nx)
	assert.Equal(t, 0, sc.Surface)
	assert.Equal(t, 1000.0, net.Temperature())

	he1 := net.Get(network.He, 1).ID() - 1
	assert.True(t, sc.OFill.Has(he1, he1), "diffusion couples He1 to its neighbours")
	for row := range sc.DOF {
		for _, col := range net.ColumnMap(row) {
			assert.True(t, sc.DFill.Has(row, col), "column map entry (%d,%d)", row, col)
		}
	}
	he2 := net.Get(network.He, 2).ID() - 1
	he2v1 := net.GetComposition(network.Mixed(2, 1)).ID() - 1
	assert.True(t, sc.DFill.Has(he2v1, he2), "trap mutation feeds He2V1 from He2")

	names := make([]string, 0, len(h.Handlers()))
	for _, p := range h.Handlers() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"incident-flux", "diffusion", "advection", "trap-mutation", "bursting"}, names)
}

func TestVoidPortionMovesSurface(t *testing.T) {
	h, sc := newHandler(t, setup{void: 25})
	assert.Equal(t, 2, sc.Surface)
	assert.Equal(t, 2, h.Surface())
	assert.Equal(t, 1.0, h.opts.Advection[0].Location(), "first sink follows the surface")
	assert.Equal(t, 2, h.opts.Flux.Surface())
}

func TestInitializeConcentrationColdStart(t *testing.T) {
	h, sc := newHandler(t, setup{void: 25})
	f := grid.NewField(0, sc.Nx, sc.DOF)
	f.At(0)[0] = 7
	require.NoError(t, h.InitializeConcentration(context.Background(), f))
	assert.Nil(t, h.Restored())

	v1 := h.Network().Get(network.V, 1).ID() - 1
	for xi := range sc.Nx {
		want := 0.0
		if xi > sc.Surface && xi < sc.Nx-1 {
			want = 0.05
		}
		assert.Equal(t, want, f.At(xi)[v1], "point %d", xi)
	}
	assert.Zero(t, f.At(0)[0], "field is zeroed first")
}

func TestBoundaryPointsCopyConcentration(t *testing.T) {
	h, sc := newHandler(t, setup{void: 25})
	global := randomState(h, 3)
	F := rhs(t, h, 1, global)

	for _, xi := range []int{0, 1, 2, sc.Nx - 1} {
		for k := range sc.DOF {
			assert.Equal(t, global[xi*sc.DOF+k], F[xi*sc.DOF+k], "point %d dof %d", xi, k)
		}
	}
	assert.NotEqual(t, global[3*sc.DOF], F[3*sc.DOF])
}

func TestRHSIsSumOfContributions(t *testing.T) {
	h, sc := newHandler(t, setup{})
	global := randomState(h, 4)
	F := rhs(t, h, 0.25, global)

	const xi = 3
	c := wholeField(h, global)
	want := make([]float64, sc.DOF)
	p := &process.Point{
		Grid: h.Grid(), Index: xi, Time: 0.25, Temperature: 1000,
		Left: c.At(xi - 1), Middle: c.At(xi), Right: c.At(xi + 1),
	}
	local := h.Network().Ingest(c.At(xi))
	p.Local = local
	for _, proc := range h.Handlers() {
		proc.ComputeContribution(p, want)
	}
	for id := 1; id <= h.Network().Size(); id++ {
		want[id-1] += local.TotalFlux(id)
	}
	for _, s := range h.Network().Supers() {
		for m := range s.MomentCount() {
			want[s.MomentID(m)-1] += local.MomentFlux(s, m)
		}
	}
	assert.InDeltaSlice(t, want, F[xi*sc.DOF:(xi+1)*sc.DOF], 1e-12)
}

func TestJacobianMatchesFiniteDifferences(t *testing.T) {
	h, sc := newHandler(t, setup{temp: temperature.Gradient{Surface: 900, Slope: 40}})
	global := randomState(h, 1)
	const time = 0.5

	J := NewDenseMatrix(sc.Nx, sc.DOF)
	require.NoError(t, h.ComputeJacobian(context.Background(), time, wholeField(h, global), J))
	assert.Greater(t, J.NonZero(), 0)

	n := len(global)
	want := mat.NewDense(n, n, nil)
	fd.Jacobian(want, func(y, x []float64) {
		copy(y, rhs(t, h, time, x))
	}, global, &fd.JacobianSettings{Formula: fd.Central, Step: 1e-5})

	for xi := sc.Surface + 1; xi < sc.Nx-1; xi++ {
		for r := range sc.DOF {
			row := xi*sc.DOF + r
			for col := range n {
				exp := want.At(row, col)
				got := J.Dense().At(row, col)
				if !assert.InDelta(t, exp, got, 1e-6*(1+math.Abs(exp)), "row (%d,%d) col %d", xi, r, col) {
					return
				}
			}
		}
	}
}

func TestOffDiagonalJacobianIsSpatialOnly(t *testing.T) {
	h, sc := newHandler(t, setup{})
	global := randomState(h, 5)

	var rows []Stencil
	J := MatrixFunc(func(row Stencil, cols []Stencil, vals []float64) error {
		require.Len(t, vals, len(cols))
		for _, c := range cols {
			assert.Equal(t, row.C, c.C, "diffusion and advection stay on one DOF")
			assert.LessOrEqual(t, math.Abs(float64(c.I-row.I)), 1.0)
			assert.True(t, sc.OFill.Has(row.C, c.C))
		}
		rows = append(rows, row)
		return nil
	})
	require.NoError(t, h.ComputeOffDiagonalJacobian(context.Background(), 0, wholeField(h, global), J))
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.True(t, r.I > sc.Surface && r.I < sc.Nx-1, "boundary point %d written", r.I)
	}
}

func TestMatrixErrorsAreWrapped(t *testing.T) {
	h, _ := newHandler(t, setup{})
	boom := errors.New("matrix full")
	J := MatrixFunc(func(Stencil, []Stencil, []float64) error { return boom })

	err := h.ComputeDiagonalJacobian(context.Background(), 0, wholeField(h, randomState(h, 1)), J)
	require.ErrorIs(t, err, boom)
	var se *SolverError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "jacobian", se.Op)
	assert.Equal(t, 1, se.Point)
}

type recordingReducer struct {
	values []float64
	err    error
}

func (r *recordingReducer) Rank() int { return 0 }
func (r *recordingReducer) Size() int { return 1 }

func (r *recordingReducer) AllReduceSum(_ context.Context, v float64) (float64, error) {
	r.values = append(r.values, v)
	if r.err != nil {
		return 0, r.err
	}
	return v, nil
}

func TestAttenuationUsesSurfaceHelium(t *testing.T) {
	red := &recordingReducer{}
	h, sc := newHandler(t, setup{attenuation: true, reducer: red})
	global := randomState(h, 2)
	rhs(t, h, 0, global)

	net := h.Network()
	var want float64
	for xi := 1; xi <= 4; xi++ { // depth 0.5 to 2.0
		values := global[xi*sc.DOF : (xi+1)*sc.DOF]
		for _, b := range net.GetAll(network.TypeHeV) {
			want += net.Content(values, b.ID(), network.He) * 0.5
		}
		for _, s := range net.Supers() {
			want += net.Content(values, s.ID(), network.He) * 0.5
		}
	}
	require.Len(t, red.values, 1)
	assert.InDelta(t, want, red.values[0], 1e-12)

	tm := h.opts.TrapMutation
	assert.InDelta(t, tm.Factor*net.LargestRate()*math.Exp(-4*want), tm.Rate(), 1e-12)
}

func TestReductionFailure(t *testing.T) {
	reg := metrics.NewRegistry()
	red := &recordingReducer{err: comm.ErrAborted}
	h, sc := newHandler(t, setup{reducer: red, metrics: reg})

	c := wholeField(h, randomState(h, 1))
	err := h.UpdateConcentration(context.Background(), 0, c, grid.NewField(0, sc.Nx, sc.DOF))
	assert.ErrorIs(t, err, ErrReduceFailed)
	assert.ErrorIs(t, err, comm.ErrAborted)

	var m dto.Metric
	require.NoError(t, reg.ReductionsTotal.WithLabelValues("error").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())
	require.NoError(t, reg.EvaluationsTotal.WithLabelValues("rhs", "error").Write(&m))
	assert.Equal(t, 1.0, m.GetCounter().GetValue())
}

func TestPartitionsMatchSingleRun(t *testing.T) {
	single, sc := newHandler(t, setup{nx: 12, attenuation: true})
	global := randomState(single, 9)
	want := rhs(t, single, 0.1, global)

	parts, err := grid.Split(sc.Nx, 3)
	require.NoError(t, err)
	got := make([]float64, len(global))
	err = comm.RunPartitions(context.Background(), len(parts), func(ctx context.Context, r comm.Reducer) error {
		h, _, err := buildHandler(setup{nx: 12, attenuation: true, reducer: r})
		if err != nil {
			return err
		}
		c := grid.NewFieldFor(parts[r.Rank()], sc.DOF)
		c.Gather(global)
		F := grid.NewFieldFor(parts[r.Rank()], sc.DOF)
		if err := h.UpdateConcentration(ctx, 0.1, c, F); err != nil {
			return err
		}
		F.Scatter(got)
		return nil
	})
	require.NoError(t, err)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-10*(1+math.Abs(want[i])), "entry %d", i)
	}
}

func TestCheckpointRestore(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemStore()
	first, sc := newHandler(t, setup{store: store})
	require.NoError(t, store.WriteHeader(ctx, first.Header("run-1")))

	global := randomState(first, 6)
	step := first.NewStep(4, 2.5, 1e-3)
	step.Surface = 1
	first.FillStep(step, wholeField(first, global))
	require.NoError(t, first.WriteStep(ctx, step))

	second, sc2 := newHandler(t, setup{store: store, nx: 30})
	assert.Equal(t, sc.Nx, sc2.Nx, "grid comes from the header")

	f := grid.NewField(0, sc2.Nx, sc2.DOF)
	require.NoError(t, second.InitializeConcentration(ctx, f))
	assert.Equal(t, 1, second.Surface())
	assert.Equal(t, 1, second.opts.Flux.Surface())
	require.NotNil(t, second.Restored())
	assert.Equal(t, 2.5, second.Restored().Time)

	out := make([]float64, len(global))
	f.Scatter(out)
	assert.Equal(t, global, out)
}

func TestCheckpointMismatch(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemStore()
	h, _ := newHandler(t, setup{store: store})
	hdr := h.Header("run-1")
	hdr.DOF++
	require.NoError(t, store.WriteHeader(ctx, hdr))

	_, _, err := buildHandler(setup{store: store})
	assert.ErrorIs(t, err, ErrCheckpointMismatch)
}

func TestWriteStepWithoutStore(t *testing.T) {
	h, _ := newHandler(t, setup{})
	assert.Error(t, h.WriteStep(context.Background(), h.NewStep(0, 0, 0)))
}

func TestNotInitialized(t *testing.T) {
	net, err := network.Build(network.Properties{network.PropMaxHe: "2"}, testRates{})
	require.NoError(t, err)
	h, err := NewHandler1D(Options{Network: net, Temperature: temperature.Constant(500)})
	require.NoError(t, err)
	err = h.UpdateConcentration(context.Background(), 0, grid.NewField(0, 1, 1), grid.NewField(0, 1, 1))
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = NewHandler1D(Options{Network: net})
	assert.Error(t, err)
}

func TestEvaluationMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	h, sc := newHandler(t, setup{metrics: reg})
	global := randomState(h, 8)
	rhs(t, h, 0, global)
	require.NoError(t, h.ComputeJacobian(context.Background(), 0, wholeField(h, global), NewDenseMatrix(sc.Nx, sc.DOF)))

	read := func(c interface{ Write(*dto.Metric) error }) float64 {
		var m dto.Metric
		require.NoError(t, c.Write(&m))
		if m.Counter != nil {
			return m.GetCounter().GetValue()
		}
		return m.GetGauge().GetValue()
	}
	assert.Equal(t, 1.0, read(reg.EvaluationsTotal.WithLabelValues("rhs", "success")))
	assert.Equal(t, 1.0, read(reg.EvaluationsTotal.WithLabelValues("jacobian_diagonal", "success")))
	assert.Equal(t, 2.0, read(reg.GridPointsTotal.WithLabelValues("boundary")))
	assert.Equal(t, 6.0, read(reg.GridPointsTotal.WithLabelValues("active")))
	assert.Equal(t, 2.0, read(reg.ReductionsTotal.WithLabelValues("success")), "rhs and diagonal Jacobian each reduce once")
	assert.Greater(t, read(reg.MatrixWritesTotal.WithLabelValues("diagonal")), 0.0)
	assert.Greater(t, read(reg.MatrixWritesTotal.WithLabelValues("offdiagonal")), 0.0)
	assert.Equal(t, float64(h.opts.Diffusion.Entries()), read(reg.ProcessEntries.WithLabelValues("diffusion")))
}

func TestDenseMatrix(t *testing.T) {
	m := NewDenseMatrix(3, 2)
	require.NoError(t, m.AddValuesStencil(Stencil{I: 1, C: 0}, []Stencil{{I: 0, C: 1}, {I: 1, C: 0}}, []float64{2, 3}))
	require.NoError(t, m.AddValuesStencil(Stencil{I: 1, C: 0}, []Stencil{{I: 1, C: 0}}, []float64{1}))

	assert.Equal(t, 2.0, m.At(Stencil{I: 1, C: 0}, Stencil{I: 0, C: 1}))
	assert.Equal(t, 4.0, m.At(Stencil{I: 1, C: 0}, Stencil{I: 1, C: 0}))
	assert.Equal(t, 2, m.NonZero())
	assert.Equal(t, 3, m.Index(Stencil{I: 1, C: 1}))

	assert.Error(t, m.AddValuesStencil(Stencil{I: 3, C: 0}, nil, nil))
	assert.Error(t, m.AddValuesStencil(Stencil{I: 0, C: 0}, []Stencil{{I: 0, C: 2}}, []float64{1}))
	assert.Error(t, m.AddValuesStencil(Stencil{I: 0, C: 0}, []Stencil{{I: 0, C: 0}}, nil))

	m.Zero()
	assert.Zero(t, m.NonZero())
}
