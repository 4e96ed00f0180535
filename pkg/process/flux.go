package process

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dd0wney/cluso-cd/pkg/grid"
	"github.com/dd0wney/cluso-cd/pkg/network"
)

var ErrVanishingProfile = errors.New("incident flux profile is zero on every interior point")

// FitFunction is an implantation depth profile, depth in nm.
type FitFunction func(depth float64) float64

// W221Fit is the helium implantation profile for a tungsten (221) surface.
func W221Fit(depth float64) float64 {
	if depth > 6.1 {
		return 0
	}
	return max(7.0-2.15178*depth+0.164657*depth*depth, 0)
}

// TimePoint is one entry of a flux amplitude history.
type TimePoint struct {
	Time, Amplitude float64
}

// TimeProfile is a piecewise-linear amplitude history, constant outside its
// range.
type TimeProfile []TimePoint

func (tp TimeProfile) At(t float64) float64 {
	if t <= tp[0].Time {
		return tp[0].Amplitude
	}
	if last := tp[len(tp)-1]; t >= last.Time {
		return last.Amplitude
	}
	k := sort.Search(len(tp), func(i int) bool { return tp[i].Time > t })
	a, b := tp[k-1], tp[k]
	if b.Time == a.Time {
		return b.Amplitude
	}
	return a.Amplitude + (b.Amplitude-a.Amplitude)*(t-a.Time)/(b.Time-a.Time)
}

// IncidentFlux implants He1 below the surface. The depth profile is normalised
// so that the sum of profile(x_i)*(x_i - x_{i-1}) over interior points equals
// the amplitude. Profile, when set, replaces Amplitude with a time history.
type IncidentFlux struct {
	Amplitude float64
	Fit       FitFunction
	Profile   TimeProfile

	heDof   int
	g       *grid.Grid
	surface int
	unit    []float64
	vec     []float64
	vecTime float64
	vecOK   bool
}

func NewIncidentFlux(amplitude float64) *IncidentFlux {
	return &IncidentFlux{Amplitude: amplitude, Fit: W221Fit, heDof: -1}
}

// WithProfile sets a sorted copy of the time history.
func (h *IncidentFlux) WithProfile(points []TimePoint) *IncidentFlux {
	tp := append(TimeProfile(nil), points...)
	sort.SliceStable(tp, func(i, j int) bool { return tp[i].Time < tp[j].Time })
	if len(tp) == 0 {
		tp = nil
	}
	h.Profile = tp
	h.vecOK = false
	return h
}

func (h *IncidentFlux) Name() string       { return "incident-flux" }
func (h *IncidentFlux) Coupling() Coupling { return Local }

// Active reports whether the network has He1 to implant.
func (h *IncidentFlux) Active() bool { return h.heDof >= 0 }

func (h *IncidentFlux) Initialize(net *network.Network, g *grid.Grid, surface int) error {
	h.heDof = -1
	if he := net.Get(network.He, 1); he != nil {
		h.heDof = he.ID() - 1
	}
	return h.InitializeProfile(g, surface)
}

// InitializeProfile computes the normalised depth profile for a surface
// position. It does not need a network.
func (h *IncidentFlux) InitializeProfile(g *grid.Grid, surface int) error {
	n := g.Len()
	if surface < 0 || surface >= n-2 {
		return fmt.Errorf("incident flux: surface point %d leaves no interior points", surface)
	}
	fit := h.Fit
	if fit == nil {
		fit = W221Fit
	}

	var norm float64
	for xi := surface + 1; xi < n-1; xi++ {
		norm += fit(g.Depth(xi, surface)) * g.LeftStep(xi)
	}
	if norm == 0 {
		return ErrVanishingProfile
	}

	h.unit = make([]float64, n-surface)
	for xi := surface + 1; xi < n-1; xi++ {
		h.unit[xi-surface] = fit(g.Depth(xi, surface)) / norm
	}
	h.vec = make([]float64, len(h.unit))
	h.g = g
	h.surface = surface
	h.vecOK = false
	return nil
}

// AmplitudeAt is the flux amplitude at time t.
func (h *IncidentFlux) AmplitudeAt(t float64) float64 {
	if len(h.Profile) > 0 {
		return h.Profile.At(t)
	}
	return h.Amplitude
}

// IncidentFluxVec returns the flux at each point, indexed by xi - surface.
// The profile is rebuilt when the surface moved. The returned slice is reused
// by the next call.
func (h *IncidentFlux) IncidentFluxVec(t float64, surface int) []float64 {
	if surface != h.surface && h.g != nil {
		if err := h.InitializeProfile(h.g, surface); err != nil {
			clear(h.vec)
			return h.vec
		}
	}
	if !h.vecOK || t != h.vecTime {
		amp := h.AmplitudeAt(t)
		for k, u := range h.unit {
			h.vec[k] = amp * u
		}
		h.vecTime = t
		h.vecOK = true
	}
	return h.vec
}

// Surface is the surface point the profile was built for.
func (h *IncidentFlux) Surface() int { return h.surface }

func (h *IncidentFlux) ComputeContribution(p *Point, out []float64) {
	if h.heDof < 0 {
		return
	}
	vec := h.IncidentFluxVec(p.Time, h.surface)
	if k := p.Index - h.surface; k > 0 && k < len(vec) {
		out[h.heDof] += vec[k]
	}
}

// ComputePartials adds nothing: the flux does not depend on concentrations.
func (h *IncidentFlux) ComputePartials(_ *Point, dst []Partial) []Partial { return dst }
