package process

import (
	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/network"
)

// Diffusion is Fickian diffusion of every mobile cluster on the non-uniform
// grid:
//
//	dC/dt += 2D (C_L/(hL(hL+hR)) + C_R/(hR(hL+hR)) - C/(hL hR))
//
// Points lying on an advection sink neither diffuse nor feed their neighbours.
type Diffusion struct {
	net    *network.Network
	ids    []int
	active []bool
}

func NewDiffusion() *Diffusion { return &Diffusion{} }

func (d *Diffusion) Name() string       { return "diffusion" }
func (d *Diffusion) Coupling() Coupling { return Spatial }

func (d *Diffusion) Initialize(net *network.Network, _ *grid.Grid, _ int) error {
	d.net = net
	d.ids = d.ids[:0]
	for _, c := range net.All() {
		if c.IsMobile() {
			d.ids = append(d.ids, c.ID())
		}
	}
	return nil
}

// InitializeGrid switches off the points that sit on any advection sink.
func (d *Diffusion) InitializeGrid(advection []*Advection, g *grid.Grid) {
	d.active = make([]bool, g.Len())
	for xi := range d.active {
		d.active[xi] = true
		for _, a := range advection {
			if a.IsPointOnSink(g.X(xi)) {
				d.active[xi] = false
				break
			}
		}
	}
}

// IsActive reports whether point xi diffuses.
func (d *Diffusion) IsActive(xi int) bool {
	return d.active == nil || xi < 0 || xi >= len(d.active) || d.active[xi]
}

// IDs lists the diffusing clusters.
func (d *Diffusion) IDs() []int { return d.ids }

func (d *Diffusion) Entries() int { return len(d.ids) }

func (d *Diffusion) FillOffDiagonal(f *grid.Fill) {
	for _, id := range d.ids {
		f.Set(id-1, id-1)
	}
}

func (d *Diffusion) FillDiagonal(f *grid.Fill) {
	d.FillOffDiagonal(f)
}

func (d *Diffusion) factors(p *Point) (hL, hR, fL, fR float64) {
	hL = p.Grid.LeftStep(p.Index)
	hR = p.Grid.RightStep(p.Index)
	fL, fR = 1, 1
	if !d.IsActive(p.Index - 1) {
		fL = 0
	}
	if !d.IsActive(p.Index + 1) {
		fR = 0
	}
	return
}

func (d *Diffusion) ComputeContribution(p *Point, out []float64) {
	if !d.IsActive(p.Index) {
		return
	}
	hL, hR, fL, fR := d.factors(p)
	for _, id := range d.ids {
		k := id - 1
		D := d.net.Cluster(id).DiffusionCoefficient()
		out[k] += 2 * D * (fL*p.Left[k]/(hL*(hL+hR)) +
			fR*p.Right[k]/(hR*(hL+hR)) -
			p.Middle[k]/(hL*hR))
	}
}

// ComputePartials appends three entries per diffusing cluster: middle, left
// and right.
func (d *Diffusion) ComputePartials(p *Point, dst []Partial) []Partial {
	if !d.IsActive(p.Index) {
		return dst
	}
	hL, hR, fL, fR := d.factors(p)
	xi := p.Index
	for _, id := range d.ids {
		k := id - 1
		D := d.net.Cluster(id).DiffusionCoefficient()
		dst = append(dst,
			Partial{Row: k, ColPoint: xi, Col: k, Value: -2 * D / (hL * hR)},
			Partial{Row: k, ColPoint: xi - 1, Col: k, Value: fL * 2 * D / (hL * (hL + hR))},
			Partial{Row: k, ColPoint: xi + 1, Col: k, Value: fR * 2 * D / (hR * (hL + hR))},
		)
	}
	return dst
}
