package process

import (
	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/network"
)

// DefaultBurstingFactor scales the network's largest rate into the bursting
// rate.
const DefaultBurstingFactor = 0.1

type burst struct {
	bubble, vacancy int
}

// Bursting releases the helium of a bubble whose radius reaches the surface,
// leaving its vacancies behind: He_n V_m -> V_m.
type Bursting struct {
	Factor float64

	entries [][]burst
	total   int
	kBurst  float64
}

func NewBursting() *Bursting { return &Bursting{Factor: DefaultBurstingFactor} }

func (b *Bursting) Name() string       { return "bursting" }
func (b *Bursting) Coupling() Coupling { return Local }

func (b *Bursting) Initialize(net *network.Network, g *grid.Grid, surface int) error {
	b.entries = make([][]burst, g.Len())
	b.total = 0
	bubbles := net.GetAll(network.TypeHeV)
	for xi := surface + 1; xi < g.Len()-1; xi++ {
		depth := g.Depth(xi, surface)
		for _, c := range bubbles {
			if c.ReactionRadius() < depth {
				continue
			}
			v := net.Get(network.V, c.Composition()[network.V])
			if v == nil {
				continue
			}
			b.entries[xi] = append(b.entries[xi], burst{bubble: c.ID() - 1, vacancy: v.ID() - 1})
			b.total++
		}
	}
	return nil
}

func (b *Bursting) Entries() int { return b.total }

func (b *Bursting) EntriesAt(xi int) int {
	if xi < 0 || xi >= len(b.entries) {
		return 0
	}
	return len(b.entries[xi])
}

func (b *Bursting) RefreshRates(net *network.Network) {
	b.kBurst = b.Factor * net.LargestRate()
}

func (b *Bursting) Rate() float64 { return b.kBurst }

func (b *Bursting) FillDiagonal(f *grid.Fill) {
	for _, point := range b.entries {
		for _, e := range point {
			f.Set(e.bubble, e.bubble)
			f.Set(e.vacancy, e.bubble)
		}
	}
}

func (b *Bursting) ComputeContribution(p *Point, out []float64) {
	if p.Index >= len(b.entries) {
		return
	}
	for _, e := range b.entries[p.Index] {
		r := b.kBurst * p.Middle[e.bubble]
		out[e.bubble] -= r
		out[e.vacancy] += r
	}
}

func (b *Bursting) ComputePartials(p *Point, dst []Partial) []Partial {
	if p.Index >= len(b.entries) {
		return dst
	}
	xi := p.Index
	for _, e := range b.entries[xi] {
		dst = append(dst,
			Partial{Row: e.bubble, ColPoint: xi, Col: e.bubble, Value: -b.kBurst},
			Partial{Row: e.vacancy, ColPoint: xi, Col: e.bubble, Value: b.kBurst},
		)
	}
	return dst
}
