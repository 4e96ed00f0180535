package network

// Build creates the standard network described by props: He, V and I clusters
// up to their maxima, concrete He_aV_b with a+b <= maxMixedClusterSize below
// groupingMin vacancies, and super-clusters tiling the grouped region
// [1..maxMixed] x [groupingMin..maxV]. Clusters are added in that order.
func Build(props Properties, rates RateModel, opts ...Option) (*Network, error) {
	n, err := New(props, rates, opts...)
	if err != nil {
		return nil, err
	}
	l := n.limits

	for _, sp := range []struct {
		s   Species
		max int
	}{{He, l.MaxHe}, {V, l.MaxV}, {I, l.MaxI}} {
		for size := 1; size <= sp.max; size++ {
			if err := n.addComposition(Pure(sp.s, size)); err != nil {
				return nil, err
			}
		}
	}

	if l.MaxMixed == 0 {
		return n, nil
	}
	vConcrete := l.MaxV
	if l.GroupingMin > 0 {
		vConcrete = l.GroupingMin - 1
	}
	for v := 1; v <= vConcrete; v++ {
		for he := 1; he+v <= l.MaxMixed; he++ {
			if err := n.addComposition(Mixed(he, v)); err != nil {
				return nil, err
			}
		}
	}

	if l.GroupingMin == 0 {
		return n, nil
	}
	for v0 := l.GroupingMin; v0 <= l.MaxV; v0 += l.GroupingWidthV {
		v1 := min(v0+l.GroupingWidthV-1, l.MaxV)
		for he0 := 1; he0 <= l.MaxMixed; he0 += l.GroupingWidthHe {
			he1 := min(he0+l.GroupingWidthHe-1, l.MaxMixed)
			s, err := NewSuperCluster(he0, he1, v0, v1)
			if err != nil {
				return nil, err
			}
			if err := n.AddSuper(s); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

func (n *Network) addComposition(c Composition) error {
	cl, err := NewCluster(c)
	if err != nil {
		return err
	}
	return n.Add(cl)
}
