package grid

import (
	"slices"
)

// Fill is a DOF x DOF sparsity set: which (row, col) entries of a point
// block may be nonzero.
type Fill struct {
	dof  int
	rows [][]int
}

func NewFill(dof int) *Fill {
	return &Fill{dof: dof, rows: make([][]int, dof)}
}

func (f *Fill) DOF() int { return f.dof }

// Set marks (row, col). Out-of-range entries are ignored.
func (f *Fill) Set(row, col int) {
	if row < 0 || row >= f.dof || col < 0 || col >= f.dof {
		return
	}
	r := f.rows[row]
	i, found := slices.BinarySearch(r, col)
	if !found {
		f.rows[row] = slices.Insert(r, i, col)
	}
}

// SetRow marks every col in cols.
func (f *Fill) SetRow(row int, cols []int) {
	for _, c := range cols {
		f.Set(row, c)
	}
}

func (f *Fill) Has(row, col int) bool {
	if row < 0 || row >= f.dof {
		return false
	}
	_, found := slices.BinarySearch(f.rows[row], col)
	return found
}

// Row returns the sorted columns of row.
func (f *Fill) Row(row int) []int { return f.rows[row] }

// Count is the number of marked entries.
func (f *Fill) Count() int {
	n := 0
	for _, r := range f.rows {
		n += len(r)
	}
	return n
}

// Dense renders the set as a row-major 0/1 array of DOF*DOF entries.
func (f *Fill) Dense() []int {
	out := make([]int, f.dof*f.dof)
	for row, cols := range f.rows {
		for _, c := range cols {
			out[row*f.dof+c] = 1
		}
	}
	return out
}
