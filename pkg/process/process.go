// Package process implements the physical processes that add to the
// per-point right-hand side alongside the reaction network.
package process

import (
	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/network"
)

// Point is what a handler sees of one grid point during an evaluation. Local
// is bound to Middle; it is only set for the diagonal pass and the right-hand
// side.
type Point struct {
	Grid        *grid.Grid
	Index       int
	Time        float64
	Temperature float64
	Local       network.Local

	Middle, Left, Right []float64
}

// Position of the point as the temperature handlers expect it.
func (p *Point) Position() [3]float64 {
	return [3]float64{p.Grid.X(p.Index), 0, 0}
}

// Partial is one Jacobian entry: d(row at the current point)/d(Col at ColPoint).
type Partial struct {
	Row      int
	ColPoint int
	Col      int
	Value    float64
}

// Coupling says which Jacobian block a handler writes.
type Coupling int

const (
	// Local handlers only couple DOFs of the same point.
	Local Coupling = iota
	// Spatial handlers couple a point to its neighbours.
	Spatial
)

// Handler is one physical process. Contributions are additive: a handler adds
// into out and never resets it.
type Handler interface {
	Name() string
	Coupling() Coupling
	// Initialize rebuilds the handler's index tables.
	Initialize(net *network.Network, g *grid.Grid, surface int) error
	ComputeContribution(p *Point, out []float64)
	// ComputePartials appends the handler's Jacobian entries at p to dst.
	ComputePartials(p *Point, dst []Partial) []Partial
}

// OffDiagonalFiller declares the DOF couplings between neighbouring points.
type OffDiagonalFiller interface {
	FillOffDiagonal(f *grid.Fill)
}

// DiagonalFiller declares the DOF couplings within one point.
type DiagonalFiller interface {
	FillDiagonal(f *grid.Fill)
}

// RateRefresher is implemented by handlers whose rates follow the network's
// largest rate; the driver calls it after every temperature change.
type RateRefresher interface {
	RefreshRates(net *network.Network)
}

// Counter reports how many index entries a handler built.
type Counter interface {
	Entries() int
}
