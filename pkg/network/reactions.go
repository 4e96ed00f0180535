package network

import (
	"slices"
)

// ReactionKind classifies a discovered reaction.
type ReactionKind int

const (
	// Production covers clustering and absorption: A + B -> C.
	Production ReactionKind = iota
	// Annihilation of vacancies with interstitials: V_a + I_b -> remainder.
	Annihilation
	// Dissociation emits one monomer: C -> A + X_1.
	Dissociation
)

func (k ReactionKind) String() string {
	switch k {
	case Production:
		return "production"
	case Annihilation:
		return "annihilation"
	case Dissociation:
		return "dissociation"
	default:
		return "unknown"
	}
}

// term is one participant of a reaction. A concrete cluster is a single DOF
// slot; a composition inside a super-cluster reads ℓ0 plus its weighted
// moments and receives 1/N of the reaction flux.
type term struct {
	owner int32 // 0-based index of the cluster or super-cluster
	n     int8  // moment slots used
	mom   [2]int32
	w     [2]float64
	scale float64
	comp  Composition
}

func (t *term) value(c []float64) float64 {
	v := c[t.owner]
	for m := int8(0); m < t.n; m++ {
		v += t.w[m] * c[t.mom[m]]
	}
	return v
}

func (t *term) scatter(d float64, out []float64) {
	out[t.owner] += d
	for m := int8(0); m < t.n; m++ {
		out[t.mom[m]] += d * t.w[m]
	}
}

// reaction is a flat record in the network's arena.
type reaction struct {
	kind    ReactionKind
	in      [2]term
	nIn     int8
	out     [2]term
	nOut    int8
	emitted Species
	// pa and pb feed the production rate: the two reactants, or the emitted
	// monomer and the remainder for a dissociation.
	pa, pb Parameters
	rate   float64
}

func (r *reaction) flux(c []float64) float64 {
	f := r.rate
	for i := int8(0); i < r.nIn; i++ {
		f *= r.in[i].value(c)
	}
	return f
}

// partials adds coef * dR/dC into out for every reactant slot.
func (r *reaction) partials(c []float64, coef float64, out []float64) {
	if r.nIn == 1 {
		r.in[0].scatter(coef*r.rate, out)
		return
	}
	v0, v1 := r.in[0].value(c), r.in[1].value(c)
	r.in[0].scatter(coef*r.rate*v1, out)
	r.in[1].scatter(coef*r.rate*v0, out)
}

// rowRef ties a DOF row to a reaction with the coefficient the row receives
// per unit of reaction flux.
type rowRef struct {
	r    int32
	coef float64
}

// combine applies the composition rules to a reactant pair. The pair is
// unordered.
func combine(a, b Composition) (Composition, ReactionKind, bool) {
	sa, pureA := a.IsPure()
	sb, pureB := b.IsPure()

	switch {
	case pureA && pureB && sa == sb:
		return a.Add(b), Production, true

	case pureA && pureB:
		if sa > sb {
			a, b = b, a
			sa, sb = sb, sa
		}
		switch {
		case sa == He && sb == V:
			return Mixed(a[He], b[V]), Production, true
		case sa == V && sb == I:
			switch d := a[V] - b[I]; {
			case d > 0:
				return Pure(V, d), Annihilation, true
			case d < 0:
				return Pure(I, -d), Annihilation, true
			default:
				return Composition{}, Annihilation, true
			}
		}
		return Composition{}, 0, false

	case pureA != pureB:
		mixed, mono, s := b, a, sa
		if pureB {
			mixed, mono, s = a, b, sb
		}
		if mixed[I] != 0 {
			return Composition{}, 0, false
		}
		switch s {
		case He:
			return mixed.Add(mono), Production, true
		case V:
			if mono[V] == 1 {
				return mixed.Add(mono), Production, true
			}
		case I:
			if mixed[V] > mono[I] {
				return Mixed(mixed[He], mixed[V]-mono[I]), Production, true
			}
		}
	}
	return Composition{}, 0, false
}

// termFor resolves c to a concrete cluster or to the super-cluster holding it.
func (n *Network) termFor(c Composition) (term, bool) {
	if cl, ok := n.byComp[c]; ok {
		return term{owner: int32(cl.id - 1), scale: 1, comp: c}, true
	}
	s, ok := n.memberOf[c]
	if !ok {
		return term{}, false
	}
	t := term{owner: int32(s.id - 1), scale: 1 / float64(s.count), comp: c}
	for m := range s.axes {
		w := s.Weight(c, m)
		if w == 0 {
			continue
		}
		t.mom[t.n] = int32(s.momentIDs[m] - 1)
		t.w[t.n] = w
		t.n++
	}
	return t, true
}

func (n *Network) discoverReactions() {
	n.reactions = n.reactions[:0]

	for i, a := range n.clusters {
		for _, b := range n.clusters[i:] {
			n.addProduction(a.comp, b.comp)
		}
	}
	for _, s := range n.supers {
		s.Members(func(c Composition) {
			for _, b := range n.clusters {
				n.addProduction(c, b.comp)
			}
		})
	}

	if !n.limits.Dissociation {
		return
	}
	for _, c := range n.clusters {
		n.addDissociations(c.comp)
	}
	for _, s := range n.supers {
		s.Members(n.addDissociations)
	}
}

func (n *Network) addProduction(a, b Composition) {
	product, kind, ok := combine(a, b)
	if !ok {
		return
	}
	ta, okA := n.termFor(a)
	tb, okB := n.termFor(b)
	if !okA || !okB {
		return
	}
	r := reaction{
		kind: kind,
		in:   [2]term{ta, tb},
		nIn:  2,
		pa:   n.rates.Parameters(a),
		pb:   n.rates.Parameters(b),
	}
	if !product.IsZero() {
		tp, ok := n.termFor(product)
		if !ok {
			return
		}
		r.out[0] = tp
		r.nOut = 1
	}
	n.reactions = append(n.reactions, r)
}

// addDissociations adds the reverse of every production channel that forms
// parent from a single monomer.
func (n *Network) addDissociations(parent Composition) {
	for s := He; s < NumSpecies; s++ {
		if parent[s] == 0 {
			continue
		}
		mono := Monomer(s)
		rest := parent.Sub(mono)
		if rest.IsZero() {
			continue
		}
		if p, kind, ok := combine(rest, mono); !ok || kind != Production || p != parent {
			continue
		}
		tp, okP := n.termFor(parent)
		tr, okR := n.termFor(rest)
		tm, okM := n.termFor(mono)
		if !okP || !okR || !okM {
			continue
		}
		n.reactions = append(n.reactions, reaction{
			kind:    Dissociation,
			in:      [2]term{tp},
			nIn:     1,
			out:     [2]term{tr, tm},
			nOut:    2,
			emitted: s,
			pa:      n.rates.Parameters(mono),
			pb:      n.rates.Parameters(rest),
		})
	}
}

func (n *Network) buildRows() {
	n.rows = make([][]rowRef, n.dof)
	add := func(r int, t *term, sign float64) {
		base := sign * t.scale
		n.rows[t.owner] = append(n.rows[t.owner], rowRef{r: int32(r), coef: base})
		for m := int8(0); m < t.n; m++ {
			n.rows[t.mom[m]] = append(n.rows[t.mom[m]], rowRef{r: int32(r), coef: base * t.w[m]})
		}
	}
	for i := range n.reactions {
		r := &n.reactions[i]
		for k := int8(0); k < r.nIn; k++ {
			add(i, &r.in[k], -1)
		}
		for k := int8(0); k < r.nOut; k++ {
			add(i, &r.out[k], 1)
		}
	}

	// Column map: every reactant slot of every reaction touching the row.
	n.columns = make([][]int, n.dof)
	stamp := make([]int, n.dof)
	for i := range stamp {
		stamp[i] = -1
	}
	for row, refs := range n.rows {
		var cols []int
		mark := func(col int32) {
			if stamp[col] != row {
				stamp[col] = row
				cols = append(cols, int(col))
			}
		}
		for _, ref := range refs {
			r := &n.reactions[ref.r]
			for k := int8(0); k < r.nIn; k++ {
				t := &r.in[k]
				mark(t.owner)
				for m := int8(0); m < t.n; m++ {
					mark(t.mom[m])
				}
			}
		}
		slices.Sort(cols)
		n.columns[row] = cols
	}
}

// buildConnectivity records the cluster-level partner sets.
func (n *Network) buildConnectivity() {
	sets := make([][]int32, len(n.all))
	mark := func(row, col int32) {
		sets[row] = append(sets[row], col)
	}
	for i := range n.reactions {
		r := &n.reactions[i]
		switch r.kind {
		case Production:
			a, b := r.in[0].owner, r.in[1].owner
			mark(a, b)
			mark(b, a)
			if r.nOut > 0 {
				mark(r.out[0].owner, a)
				mark(r.out[0].owner, b)
			}
		case Annihilation:
			a, b := r.in[0].owner, r.in[1].owner
			mark(a, b)
			mark(b, a)
		case Dissociation:
			p := r.in[0].owner
			mark(p, p)
			for k := int8(0); k < r.nOut; k++ {
				mark(r.out[k].owner, p)
			}
		}
	}
	for i := range sets {
		slices.Sort(sets[i])
		sets[i] = slices.Compact(sets[i])
	}
	n.partners = sets
}

func (n *Network) rowFlux(row int, c []float64) float64 {
	var f float64
	for _, ref := range n.rows[row] {
		f += ref.coef * n.reactions[ref.r].flux(c)
	}
	return f
}

func (n *Network) rowPartials(row int, c []float64, out []float64) {
	for _, ref := range n.rows[row] {
		n.reactions[ref.r].partials(c, ref.coef, out)
	}
}
