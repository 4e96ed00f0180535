package solver

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Stencil addresses one unknown: DOF C at grid point I. C is zero based.
type Stencil struct {
	I int
	C int
}

// Matrix is the only path by which the driver writes Jacobian entries.
// Values are added to whatever the matrix already holds.
type Matrix interface {
	AddValuesStencil(row Stencil, cols []Stencil, vals []float64) error
}

// MatrixFunc adapts a function to Matrix.
type MatrixFunc func(row Stencil, cols []Stencil, vals []float64) error

func (f MatrixFunc) AddValuesStencil(row Stencil, cols []Stencil, vals []float64) error {
	return f(row, cols, vals)
}

// DenseMatrix is a Matrix over a dense gonum matrix covering nx points of
// dof unknowns each. It is meant for small grids and tests.
type DenseMatrix struct {
	nx, dof int
	m       *mat.Dense
}

func NewDenseMatrix(nx, dof int) *DenseMatrix {
	n := nx * dof
	return &DenseMatrix{nx: nx, dof: dof, m: mat.NewDense(n, n, nil)}
}

// Index is the row or column of s in the dense matrix.
func (d *DenseMatrix) Index(s Stencil) int { return s.I*d.dof + s.C }

func (d *DenseMatrix) valid(s Stencil) bool {
	return s.I >= 0 && s.I < d.nx && s.C >= 0 && s.C < d.dof
}

func (d *DenseMatrix) AddValuesStencil(row Stencil, cols []Stencil, vals []float64) error {
	if len(cols) != len(vals) {
		return fmt.Errorf("matrix: %d columns but %d values", len(cols), len(vals))
	}
	if !d.valid(row) {
		return fmt.Errorf("matrix: row %+v out of range", row)
	}
	r := d.Index(row)
	for k, col := range cols {
		if !d.valid(col) {
			return fmt.Errorf("matrix: column %+v out of range", col)
		}
		c := d.Index(col)
		d.m.Set(r, c, d.m.At(r, c)+vals[k])
	}
	return nil
}

func (d *DenseMatrix) At(row, col Stencil) float64 {
	return d.m.At(d.Index(row), d.Index(col))
}

// Zero clears every entry.
func (d *DenseMatrix) Zero() { d.m.Zero() }

// Dense exposes the underlying matrix.
func (d *DenseMatrix) Dense() *mat.Dense { return d.m }

// NonZero counts entries that are not exactly zero.
func (d *DenseMatrix) NonZero() int {
	r, c := d.m.Dims()
	n := 0
	for i := range r {
		for j := range c {
			if d.m.At(i, j) != 0 {
				n++
			}
		}
	}
	return n
}
