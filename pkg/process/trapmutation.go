package process

import (
	"math"

	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/network"
)

// Rule lets He_n punch out VacancySize self-interstitials at depths up to
// MaxDepth (nm), becoming He_n V_VacancySize.
type Rule struct {
	HeliumSize  int
	VacancySize int
	MaxDepth    float64
}

// DefaultTrapMutationRules is the tungsten (100) rule set.
func DefaultTrapMutationRules() []Rule {
	return []Rule{
		{HeliumSize: 2, VacancySize: 1, MaxDepth: 0.6},
		{HeliumSize: 3, VacancySize: 1, MaxDepth: 0.9},
		{HeliumSize: 4, VacancySize: 1, MaxDepth: 1.2},
		{HeliumSize: 5, VacancySize: 2, MaxDepth: 1.6},
		{HeliumSize: 6, VacancySize: 2, MaxDepth: 2.0},
		{HeliumSize: 7, VacancySize: 3, MaxDepth: 2.4},
	}
}

// DefaultMutationFactor scales the network's largest rate into the mutation
// rate.
const DefaultMutationFactor = 5.0

type mutation struct {
	he, bubble, interstitial int
}

// TrapMutation is the near-surface reaction He_n -> He_n V_k + I_k.
//
// Attenuation damps the rate with the helium retained near the surface.
type TrapMutation struct {
	Rules       []Rule
	Factor      float64
	Attenuation bool

	entries   [][]mutation
	total     int
	kMutation float64
	kDis      float64
}

func NewTrapMutation(rules []Rule, attenuation bool) *TrapMutation {
	if rules == nil {
		rules = DefaultTrapMutationRules()
	}
	return &TrapMutation{Rules: rules, Factor: DefaultMutationFactor, Attenuation: attenuation, kDis: 1}
}

func (t *TrapMutation) Name() string       { return "trap-mutation" }
func (t *TrapMutation) Coupling() Coupling { return Local }

// Initialize indexes, per interior point, the rules whose depth limit the point
// is within and whose three clusters all exist.
func (t *TrapMutation) Initialize(net *network.Network, g *grid.Grid, surface int) error {
	t.entries = make([][]mutation, g.Len())
	t.total = 0
	for xi := surface + 1; xi < g.Len()-1; xi++ {
		depth := g.Depth(xi, surface)
		for _, r := range t.Rules {
			if depth > r.MaxDepth {
				continue
			}
			he := net.Get(network.He, r.HeliumSize)
			bubble := net.GetComposition(network.Mixed(r.HeliumSize, r.VacancySize))
			in := net.Get(network.I, r.VacancySize)
			if he == nil || bubble == nil || in == nil {
				continue
			}
			t.entries[xi] = append(t.entries[xi], mutation{he: he.ID() - 1, bubble: bubble.ID() - 1, interstitial: in.ID() - 1})
			t.total++
		}
	}
	t.kDis = 1
	return nil
}

func (t *TrapMutation) Entries() int { return t.total }

// EntriesAt is the number of active mutations at point xi.
func (t *TrapMutation) EntriesAt(xi int) int {
	if xi < 0 || xi >= len(t.entries) {
		return 0
	}
	return len(t.entries[xi])
}

func (t *TrapMutation) RefreshRates(net *network.Network) {
	t.kMutation = t.Factor * net.LargestRate()
}

// UpdateDisappearingRate sets the attenuation from the helium retained near
// the surface. Without attenuation the factor stays 1.
func (t *TrapMutation) UpdateDisappearingRate(heliumConc float64) {
	if !t.Attenuation {
		t.kDis = 1
		return
	}
	t.kDis = math.Exp(-4 * heliumConc)
}

// Rate is the effective mutation rate.
func (t *TrapMutation) Rate() float64 { return t.kMutation * t.kDis }

func (t *TrapMutation) FillDiagonal(f *grid.Fill) {
	for _, point := range t.entries {
		for _, e := range point {
			f.Set(e.he, e.he)
			f.Set(e.bubble, e.he)
			f.Set(e.interstitial, e.he)
		}
	}
}

func (t *TrapMutation) ComputeContribution(p *Point, out []float64) {
	if p.Index >= len(t.entries) {
		return
	}
	k := t.Rate()
	for _, e := range t.entries[p.Index] {
		r := k * p.Middle[e.he]
		out[e.he] -= r
		out[e.bubble] += r
		out[e.interstitial] += r
	}
}

func (t *TrapMutation) ComputePartials(p *Point, dst []Partial) []Partial {
	if p.Index >= len(t.entries) {
		return dst
	}
	k := t.Rate()
	xi := p.Index
	for _, e := range t.entries[xi] {
		dst = append(dst,
			Partial{Row: e.he, ColPoint: xi, Col: e.he, Value: -k},
			Partial{Row: e.bubble, ColPoint: xi, Col: e.he, Value: k},
			Partial{Row: e.interstitial, ColPoint: xi, Col: e.he, Value: k},
		)
	}
	return dst
}
