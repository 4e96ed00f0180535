package network

import (
	"fmt"
	"math"
)

// SuperCluster stands for every HeV composition in the rectangle
// [heMin..heMax] x [vMin..vMax]. It is tracked through its mean concentration
// per composition (ℓ0, stored in its own id slot) and one first moment per
// varying axis, under the linear closure
//
//	C(he, v) = ℓ0 + w_He(he)·ℓHe + w_V(v)·ℓV,  w_axis(x) = (x - avg) / disp.
type SuperCluster struct {
	Cluster

	lo, hi [2]int // indexed by He and V
	count  int
	avg    [2]float64
	disp   [2]float64

	axes      []Species
	momentIDs []int
	moments   []float64
}

// NewSuperCluster returns an unregistered super-cluster over the given
// inclusive ranges. A range of a single value makes that axis fixed.
func NewSuperCluster(heMin, heMax, vMin, vMax int) (*SuperCluster, error) {
	if heMin < 1 || vMin < 1 || heMax < heMin || vMax < vMin {
		return nil, fmt.Errorf("%w: super-cluster He[%d..%d] V[%d..%d]",
			ErrInvalidComposition, heMin, heMax, vMin, vMax)
	}
	s := &SuperCluster{
		lo: [2]int{heMin, vMin},
		hi: [2]int{heMax, vMax},
	}
	s.typ = TypeSuper
	s.name = fmt.Sprintf("Super[He%d-%d,V%d-%d]", heMin, heMax, vMin, vMax)
	s.regroup()
	return s, nil
}

// regroup recomputes the statistics of the rectangle.
func (s *SuperCluster) regroup() {
	s.count = 1
	s.axes = s.axes[:0]
	for _, sp := range []Species{He, V} {
		n := s.hi[sp] - s.lo[sp] + 1
		s.count *= n
		s.avg[sp] = float64(s.lo[sp]+s.hi[sp]) / 2
		if n > 1 {
			// Population standard deviation of n consecutive integers.
			s.disp[sp] = math.Sqrt(float64(n*n-1) / 12)
			s.axes = append(s.axes, sp)
		} else {
			s.disp[sp] = 1
		}
	}
	s.comp = Mixed(int(math.Round(s.avg[He])), int(math.Round(s.avg[V])))
	s.momentIDs = make([]int, len(s.axes))
	s.moments = make([]float64, len(s.axes))
}

// Bounds returns the inclusive range covered along sp (He or V).
func (s *SuperCluster) Bounds(sp Species) (int, int) {
	if sp != He && sp != V {
		return 0, 0
	}
	return s.lo[sp], s.hi[sp]
}

// Contains reports whether c lies inside the rectangle.
func (s *SuperCluster) Contains(c Composition) bool {
	return c[I] == 0 &&
		c[He] >= s.lo[He] && c[He] <= s.hi[He] &&
		c[V] >= s.lo[V] && c[V] <= s.hi[V]
}

// Count is the number of compositions represented.
func (s *SuperCluster) Count() int { return s.count }

func (s *SuperCluster) Average(sp Species) float64 {
	if sp != He && sp != V {
		return 0
	}
	return s.avg[sp]
}

// Dispersion is the standard deviation along sp, or 1 if sp is fixed.
func (s *SuperCluster) Dispersion(sp Species) float64 {
	if sp != He && sp != V {
		return 1
	}
	return s.disp[sp]
}

// Axes lists the varying axes; moment m belongs to Axes()[m].
func (s *SuperCluster) Axes() []Species { return s.axes }

func (s *SuperCluster) MomentCount() int { return len(s.axes) }

// MomentID is the 1-based DOF slot of moment m.
func (s *SuperCluster) MomentID(m int) int { return s.momentIDs[m] }

// Moment is the last ingested value of moment m.
func (s *SuperCluster) Moment(m int) float64 { return s.moments[m] }

// Weight of composition c in moment m.
func (s *SuperCluster) Weight(c Composition, m int) float64 {
	sp := s.axes[m]
	return (float64(c[sp]) - s.avg[sp]) / s.disp[sp]
}

// Members calls fn for every represented composition, vacancies outermost.
func (s *SuperCluster) Members(fn func(Composition)) {
	for v := s.lo[V]; v <= s.hi[V]; v++ {
		for he := s.lo[He]; he <= s.hi[He]; he++ {
			fn(Mixed(he, v))
		}
	}
}

// TotalConcentration from the last ingested values.
func (s *SuperCluster) TotalConcentration() float64 {
	return float64(s.count) * s.concentration
}

// Content is the number of atoms of sp held by the whole group, from the
// last ingested values.
func (s *SuperCluster) Content(sp Species) float64 {
	return s.content(sp, s.concentration, func(m int) float64 { return s.moments[m] })
}

func (s *SuperCluster) content(sp Species, l0 float64, moment func(int) float64) float64 {
	if sp != He && sp != V {
		return 0
	}
	total := s.avg[sp] * l0
	for m, axis := range s.axes {
		if axis == sp {
			total += s.disp[sp] * moment(m)
		}
	}
	return float64(s.count) * total
}
