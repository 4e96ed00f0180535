package grid

import (
	"fmt"
	"slices"
)

// Field is the concentration slice owned by one partition: points
// [Start, Start+Len) plus one ghost point on each side, DOF values per point.
type Field struct {
	start, n, dof int
	data          []float64
}

// NewField allocates a zeroed field.
func NewField(start, n, dof int) *Field {
	return &Field{start: start, n: n, dof: dof, data: make([]float64, (n+2)*dof)}
}

// NewFieldFor allocates a field for r.
func NewFieldFor(r Range, dof int) *Field {
	return NewField(r.Start, r.Len, dof)
}

func (f *Field) Start() int { return f.start }
func (f *Field) Len() int   { return f.n }
func (f *Field) End() int   { return f.start + f.n }
func (f *Field) DOF() int   { return f.dof }

// Owns reports whether xi is an owned (non-ghost) point.
func (f *Field) Owns(xi int) bool { return xi >= f.start && xi < f.start+f.n }

// At returns the DOF values of global point xi. Ghost points start-1 and
// start+Len are addressable.
func (f *Field) At(xi int) []float64 {
	k := xi - f.start + 1
	if k < 0 || k > f.n+1 {
		panic(fmt.Sprintf("grid: point %d outside field [%d,%d] with ghosts", xi, f.start-1, f.start+f.n))
	}
	return f.data[k*f.dof : (k+1)*f.dof : (k+1)*f.dof]
}

// Zero clears owned points and ghosts.
func (f *Field) Zero() {
	clear(f.data)
}

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	return &Field{start: f.start, n: f.n, dof: f.dof, data: slices.Clone(f.data)}
}

// CopyFrom copies every value, ghosts included, from a field of the same shape.
func (f *Field) CopyFrom(src *Field) error {
	if src.start != f.start || src.n != f.n || src.dof != f.dof {
		return fmt.Errorf("grid: field shape mismatch")
	}
	copy(f.data, src.data)
	return nil
}

// Raw exposes the backing array, ghosts included.
func (f *Field) Raw() []float64 { return f.data }

// Owned is the slice of Raw holding the owned points.
func (f *Field) Owned() []float64 { return f.data[f.dof : (f.n+1)*f.dof] }

// Gather copies the owned points and any ghost points that exist in global,
// a point-major array of every grid point.
func (f *Field) Gather(global []float64) {
	nx := len(global) / f.dof
	for xi := max(f.start-1, 0); xi <= f.start+f.n && xi < nx; xi++ {
		copy(f.At(xi), global[xi*f.dof:(xi+1)*f.dof])
	}
}

// Scatter copies the owned points into global.
func (f *Field) Scatter(global []float64) {
	for xi := f.start; xi < f.start+f.n; xi++ {
		copy(global[xi*f.dof:(xi+1)*f.dof], f.At(xi))
	}
}
