package network

import (
	"fmt"
	"strings"
)

// Species is one of the three point-defect species tracked by the network.
type Species int

const (
	He Species = iota
	V
	I
)

// NumSpecies is the length of a Composition.
const NumSpecies = 3

var speciesNames = [NumSpecies]string{"He", "V", "I"}

func (s Species) String() string {
	if s < 0 || int(s) >= NumSpecies {
		return fmt.Sprintf("Species(%d)", int(s))
	}
	return speciesNames[s]
}

// Composition counts the atoms of each species in a cluster, indexed by Species.
type Composition [NumSpecies]int

// Monomer returns the composition of a single atom of s.
func Monomer(s Species) Composition {
	var c Composition
	c[s] = 1
	return c
}

// Pure returns the composition of n atoms of s.
func Pure(s Species, n int) Composition {
	var c Composition
	c[s] = n
	return c
}

// Mixed returns the composition He_he V_v.
func Mixed(he, v int) Composition {
	return Composition{he, v, 0}
}

func (c Composition) Add(o Composition) Composition {
	return Composition{c[He] + o[He], c[V] + o[V], c[I] + o[I]}
}

func (c Composition) Sub(o Composition) Composition {
	return Composition{c[He] - o[He], c[V] - o[V], c[I] - o[I]}
}

// Size is the total number of atoms.
func (c Composition) Size() int {
	return c[He] + c[V] + c[I]
}

func (c Composition) IsZero() bool {
	return c == Composition{}
}

// IsPure reports whether exactly one species is present, and which.
func (c Composition) IsPure() (Species, bool) {
	found := Species(-1)
	for s := He; s < NumSpecies; s++ {
		if c[s] < 0 {
			return 0, false
		}
		if c[s] > 0 {
			if found >= 0 {
				return 0, false
			}
			found = s
		}
	}
	return found, found >= 0
}

// Type classifies a valid concrete composition. Interstitials never combine
// with another species and helium needs vacancies to form a mixed cluster.
func (c Composition) Type() (Type, error) {
	if s, ok := c.IsPure(); ok {
		return pureType(s), nil
	}
	if c[He] > 0 && c[V] > 0 && c[I] == 0 {
		return TypeHeV, nil
	}
	return 0, fmt.Errorf("%w: %v", ErrInvalidComposition, c)
}

// Name renders the composition the way clusters are named, e.g. "He2V5".
func (c Composition) Name() string {
	var b strings.Builder
	for s := He; s < NumSpecies; s++ {
		if c[s] != 0 {
			fmt.Fprintf(&b, "%s%d", s, c[s])
		}
	}
	if b.Len() == 0 {
		return "0"
	}
	return b.String()
}

func (c Composition) String() string {
	return c.Name()
}

// Type tags a cluster by what it is made of.
type Type int

const (
	TypeHe Type = iota
	TypeV
	TypeI
	TypeHeV
	TypeSuper
)

var typeNames = map[Type]string{
	TypeHe:    "He",
	TypeV:     "V",
	TypeI:     "I",
	TypeHeV:   "HeV",
	TypeSuper: "Super",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, bool) {
	for t, name := range typeNames {
		if strings.EqualFold(name, s) {
			return t, true
		}
	}
	return 0, false
}

// Types lists every tag in a stable order.
func Types() []Type {
	return []Type{TypeHe, TypeV, TypeI, TypeHeV, TypeSuper}
}

func pureType(s Species) Type {
	switch s {
	case He:
		return TypeHe
	case V:
		return TypeV
	default:
		return TypeI
	}
}
