package process

import (
	"math"
	"slices"

	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/network"
)

// DefaultSinkStrengths are the He1..He7 sink strengths (eV nm^3) of a
// tungsten (100) surface.
func DefaultSinkStrengths() map[int]float64 {
	return map[int]float64{
		1: 0.54e-3,
		2: 1.01e-3,
		3: 3.03e-3,
		4: 3.93e-3,
		5: 7.24e-3,
		6: 10.82e-3,
		7: 19.26e-3,
	}
}

// DefaultAdvectionCutoff is the distance (nm) beyond which a sink no longer
// pulls clusters.
const DefaultAdvectionCutoff = 10.0

// Advection drifts small helium clusters towards a planar sink at Location.
// A point at distance a from the sink, whose outer neighbour sits at distance
// b and h away, gets
//
//	dC/dt += 3 S D / (kB T h) * (C_far/b^4 - C/a^4)
//
// A point on the sink receives from both sides.
type Advection struct {
	Cutoff float64

	location  float64
	strengths map[int]float64
	net       *network.Network
	ids       []int
	sink      []float64
}

func NewAdvection(location float64, strengths map[int]float64) *Advection {
	if strengths == nil {
		strengths = DefaultSinkStrengths()
	}
	return &Advection{Cutoff: DefaultAdvectionCutoff, location: location, strengths: strengths}
}

func (a *Advection) Name() string       { return "advection" }
func (a *Advection) Coupling() Coupling { return Spatial }

func (a *Advection) Location() float64 { return a.location }

// SetLocation moves the sink, typically to follow the surface.
func (a *Advection) SetLocation(x float64) { a.location = x }

func (a *Advection) Initialize(net *network.Network, _ *grid.Grid, _ int) error {
	a.net = net
	a.ids = a.ids[:0]
	a.sink = a.sink[:0]
	sizes := make([]int, 0, len(a.strengths))
	for size := range a.strengths {
		sizes = append(sizes, size)
	}
	slices.Sort(sizes)
	for _, size := range sizes {
		c := net.Get(network.He, size)
		if c == nil || !c.IsMobile() {
			continue
		}
		a.ids = append(a.ids, c.ID())
		a.sink = append(a.sink, a.strengths[size])
	}
	return nil
}

func (a *Advection) Entries() int { return len(a.ids) }

// IsPointOnSink reports whether x coincides with the sink plane.
func (a *Advection) IsPointOnSink(x float64) bool {
	return math.Abs(x-a.location) <= 1e-10*max(1, math.Abs(a.location))
}

// stencil points away from the sink: +1 past it, -1 before it, 0 on it.
func (a *Advection) stencil(x float64) int {
	switch {
	case a.IsPointOnSink(x):
		return 0
	case x > a.location:
		return 1
	default:
		return -1
	}
}

func (a *Advection) FillOffDiagonal(f *grid.Fill) {
	for _, id := range a.ids {
		f.Set(id-1, id-1)
	}
}

func (a *Advection) FillDiagonal(f *grid.Fill) {
	a.FillOffDiagonal(f)
}

func (a *Advection) ComputeContribution(p *Point, out []float64) {
	a.visit(p, func(k int, on bool, coefMid, coefL, coefR float64, far []float64) {
		if on {
			out[k] += coefL*p.Left[k] + coefR*p.Right[k]
			return
		}
		out[k] += coefR*far[k] - coefMid*p.Middle[k]
	})
}

func (a *Advection) ComputePartials(p *Point, dst []Partial) []Partial {
	xi := p.Index
	farPoint := xi + a.stencil(p.Grid.X(xi))
	a.visit(p, func(k int, on bool, coefMid, coefL, coefR float64, _ []float64) {
		if on {
			dst = append(dst,
				Partial{Row: k, ColPoint: xi - 1, Col: k, Value: coefL},
				Partial{Row: k, ColPoint: xi + 1, Col: k, Value: coefR},
			)
			return
		}
		dst = append(dst,
			Partial{Row: k, ColPoint: xi, Col: k, Value: -coefMid},
			Partial{Row: k, ColPoint: farPoint, Col: k, Value: coefR},
		)
	})
	return dst
}

// visit calls fn for every advected cluster at p. On the sink coefL and coefR
// weigh the left and right neighbours; off it coefMid weighs the point itself
// and coefR the outer neighbour, passed as far.
func (a *Advection) visit(p *Point, fn func(k int, on bool, coefMid, coefL, coefR float64, far []float64)) {
	if len(a.ids) == 0 || p.Temperature <= 0 {
		return
	}
	g, xi := p.Grid, p.Index
	x := g.X(xi)
	kT := network.BoltzmannConstant * p.Temperature

	s := a.stencil(x)
	if s == 0 {
		hL, hR := g.LeftStep(xi), g.RightStep(xi)
		for j, id := range a.ids {
			base := 3 * a.sink[j] * a.net.Cluster(id).DiffusionCoefficient() / kT
			fn(id-1, true, 0, base/math.Pow(hL, 5), base/math.Pow(hR, 5), nil)
		}
		return
	}

	dist := math.Abs(x - a.location)
	if dist > a.Cutoff {
		return
	}
	farX := g.X(xi + s)
	farDist := math.Abs(farX - a.location)
	h := math.Abs(farX - x)
	far := p.Right
	if s < 0 {
		far = p.Left
	}
	for j, id := range a.ids {
		coef := 3 * a.sink[j] * a.net.Cluster(id).DiffusionCoefficient() / (kT * h)
		fn(id-1, false, coef/math.Pow(dist, 4), 0, coef/math.Pow(farDist, 4), far)
	}
}
