// Package grid holds the 1D spatial discretisation: point positions, the
// per-partition concentration field and block-fill sparsity sets.
package grid

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrTooFewPoints  = errors.New("grid needs at least three points")
	ErrNotIncreasing = errors.New("grid positions must be strictly increasing")
	ErrInvalidStep   = errors.New("grid step must be positive")
)

// Grid is an immutable list of point positions in nm.
type Grid struct {
	x []float64
}

// New validates and copies points.
func New(points []float64) (*Grid, error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(points))
	}
	for i := 1; i < len(points); i++ {
		if !(points[i] > points[i-1]) {
			return nil, fmt.Errorf("%w: x[%d]=%g after x[%d]=%g", ErrNotIncreasing, i, points[i], i-1, points[i-1])
		}
	}
	return &Grid{x: append([]float64(nil), points...)}, nil
}

// Uniform places nx points hx apart starting at 0.
func Uniform(nx int, hx float64) (*Grid, error) {
	if !(hx > 0) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidStep, hx)
	}
	x := make([]float64, nx)
	for i := range x {
		x[i] = float64(i) * hx
	}
	return New(x)
}

// Refined keeps the spacing hx up to the surface point, then restarts at a
// fine step just below the surface and grows it geometrically back to hx.
func Refined(nx int, hx float64, surface int) (*Grid, error) {
	if !(hx > 0) {
		return nil, fmt.Errorf("%w: %g", ErrInvalidStep, hx)
	}
	if surface < 0 || surface >= nx {
		return nil, fmt.Errorf("grid: surface point %d outside [0,%d)", surface, nx)
	}
	const growth = 1.25
	x := make([]float64, nx)
	step := math.Min(0.1, hx)
	for i := 1; i < nx; i++ {
		if i <= surface {
			x[i] = x[i-1] + hx
			continue
		}
		x[i] = x[i-1] + step
		step = math.Min(step*growth, hx)
	}
	return New(x)
}

// Generate picks Uniform or Refined.
func Generate(nx int, hx float64, surface int, regular bool) (*Grid, error) {
	if regular {
		return Uniform(nx, hx)
	}
	return Refined(nx, hx, surface)
}

func (g *Grid) Len() int { return len(g.x) }

func (g *Grid) X(i int) float64 { return g.x[i] }

// Points returns a copy of the positions.
func (g *Grid) Points() []float64 { return append([]float64(nil), g.x...) }

// LeftStep is x[i]-x[i-1].
func (g *Grid) LeftStep(i int) float64 { return g.x[i] - g.x[i-1] }

// RightStep is x[i+1]-x[i].
func (g *Grid) RightStep(i int) float64 { return g.x[i+1] - g.x[i] }

// Depth of point i below the surface point.
func (g *Grid) Depth(i, surface int) float64 { return g.x[i] - g.x[surface] }

// Range is a contiguous block of owned points.
type Range struct {
	Start, Len int
}

// Split divides nx points into parts nearly equal ranges, larger ones first.
func Split(nx, parts int) ([]Range, error) {
	if parts < 1 || parts > nx {
		return nil, fmt.Errorf("grid: cannot split %d points into %d partitions", nx, parts)
	}
	out := make([]Range, parts)
	start := 0
	for p := range out {
		n := nx / parts
		if p < nx%parts {
			n++
		}
		out[p] = Range{Start: start, Len: n}
		start += n
	}
	return out, nil
}
