package network

import (
	"fmt"
)

// Local is the network bound to the concentrations of one grid point. Every
// flux and derivative query reads only the buffer passed to Ingest, so a
// Local can never observe another point's state.
type Local struct {
	net *Network
	c   []float64
}

// Ingest copies values into every cluster's concentration field and returns
// the view used for flux and derivative queries. values is indexed by id-1
// and must hold at least DOF() entries; it is retained, not copied.
func (n *Network) Ingest(values []float64) Local {
	if !n.ready {
		panic(ErrNotInitialized)
	}
	if len(values) < n.dof {
		panic(fmt.Sprintf("network: ingest of %d values, need %d", len(values), n.dof))
	}
	for _, c := range n.clusters {
		c.concentration = values[c.id-1]
	}
	for _, s := range n.supers {
		s.concentration = values[s.id-1]
		for m, id := range s.momentIDs {
			s.moments[m] = values[id-1]
		}
	}
	return Local{net: n, c: values[:n.dof:n.dof]}
}

func (l Local) Network() *Network { return l.net }

// Values is the ingested buffer.
func (l Local) Values() []float64 { return l.c }

// Concentration of the DOF slot with the given 1-based id.
func (l Local) Concentration(id int) float64 { return l.c[id-1] }

// TotalFlux is the net reaction rate of change of cluster id.
func (l Local) TotalFlux(id int) float64 {
	return l.net.rowFlux(id-1, l.c)
}

// PartialDerivatives adds d(TotalFlux(id))/dC into the DOF-sized buf. Only the
// columns of ColumnMap(id-1) are written; callers zero them after reading.
func (l Local) PartialDerivatives(id int, buf []float64) {
	l.net.rowPartials(id-1, l.c, buf)
}

// MomentFlux is the rate of change of moment m of s.
func (l Local) MomentFlux(s *SuperCluster, m int) float64 {
	return l.net.rowFlux(s.momentIDs[m]-1, l.c)
}

// MomentPartialDerivatives adds the derivatives of MomentFlux(s, m) into buf.
func (l Local) MomentPartialDerivatives(s *SuperCluster, m int, buf []float64) {
	l.net.rowPartials(s.momentIDs[m]-1, l.c, buf)
}

// TotalConcentration of every composition represented by s.
func (l Local) TotalConcentration(s *SuperCluster) float64 {
	return float64(s.count) * l.c[s.id-1]
}

// Content is the number of atoms of sp held by cluster id.
func (l Local) Content(id int, sp Species) float64 {
	return l.net.Content(l.c, id, sp)
}

// HeliumContent is Content(c.ID(), He).
func (l Local) HeliumContent(c *Cluster) float64 {
	return l.net.Content(l.c, c.id, He)
}
