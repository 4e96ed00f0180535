package network

import (
	"math"
)

// BoltzmannConstant in eV/K.
const BoltzmannConstant = 8.6173303e-5

// Parameters are the temperature-independent physics of one composition.
type Parameters struct {
	DiffusionFactor float64 // D0, nm^2/s; 0 means immobile
	MigrationEnergy float64 // eV
	ReactionRadius  float64 // nm
}

// RateModel supplies the rate-constant physics. The network only needs the
// four quantities below; swapping the model never changes the network
// structure, only the numbers attached to it.
type RateModel interface {
	// Parameters for a concrete composition.
	Parameters(c Composition) Parameters
	// DiffusionCoefficient at temperature T (K).
	DiffusionCoefficient(p Parameters, temperature float64) float64
	// ProductionRate of a + b given their diffusion coefficients.
	ProductionRate(a, b Parameters, da, db float64) float64
	// DissociationRate of parent emitting one atom of emitted, given the rate
	// of the reverse production.
	DissociationRate(parent Composition, emitted Species, production, temperature float64) float64
}

// ArrheniusRates is the default tungsten-like model: Arrhenius diffusion,
// diffusion-limited production and capillary-law binding energies.
type ArrheniusRates struct {
	LatticeParameter float64 // nm
	// Mobile sizes per species; index 0 is the monomer.
	HeliumDiffusion       []Parameters
	VacancyDiffusion      []Parameters
	InterstitialDiffusion []Parameters
	// Formation energies of the bulk defects used by the capillary law.
	VacancyFormation      float64
	InterstitialFormation float64
	HeliumFormation       float64
}

// DefaultRates returns parameters close to those used for helium in tungsten.
func DefaultRates() *ArrheniusRates {
	return &ArrheniusRates{
		LatticeParameter: 0.317,
		HeliumDiffusion: []Parameters{
			{DiffusionFactor: 2.95e10, MigrationEnergy: 0.13},
			{DiffusionFactor: 3.24e10, MigrationEnergy: 0.20},
			{DiffusionFactor: 2.26e10, MigrationEnergy: 0.25},
			{DiffusionFactor: 1.68e10, MigrationEnergy: 0.20},
			{DiffusionFactor: 5.20e10, MigrationEnergy: 0.12},
			{DiffusionFactor: 9.00e10, MigrationEnergy: 0.30},
			{DiffusionFactor: 2.70e10, MigrationEnergy: 0.40},
		},
		VacancyDiffusion: []Parameters{
			{DiffusionFactor: 1.8e12, MigrationEnergy: 1.30},
		},
		InterstitialDiffusion: []Parameters{
			{DiffusionFactor: 8.8e10, MigrationEnergy: 0.01},
			{DiffusionFactor: 8.8e10, MigrationEnergy: 0.02},
			{DiffusionFactor: 8.8e10, MigrationEnergy: 0.03},
			{DiffusionFactor: 8.8e10, MigrationEnergy: 0.04},
			{DiffusionFactor: 8.8e10, MigrationEnergy: 0.05},
		},
		VacancyFormation:      3.6,
		InterstitialFormation: 9.96,
		HeliumFormation:       6.15,
	}
}

func (r *ArrheniusRates) Parameters(c Composition) Parameters {
	var p Parameters
	if s, ok := c.IsPure(); ok {
		var table []Parameters
		switch s {
		case He:
			table = r.HeliumDiffusion
		case V:
			table = r.VacancyDiffusion
		case I:
			table = r.InterstitialDiffusion
		}
		if n := c[s]; n <= len(table) {
			p = table[n-1]
		}
	}
	p.ReactionRadius = r.radius(c)
	return p
}

func (r *ArrheniusRates) radius(c Composition) float64 {
	a := r.LatticeParameter
	base := math.Sqrt(3) / 4 * a
	switch {
	case c[V] > 0:
		n := float64(c[V])
		return base + math.Cbrt(3*a*a*a*n/(8*math.Pi)) - math.Cbrt(3*a*a*a/(8*math.Pi))
	case c[I] > 0:
		n := float64(c[I])
		return base + math.Cbrt(3*a*a*a*n/(8*math.Pi)) - math.Cbrt(3*a*a*a/(8*math.Pi))
	default:
		// Interstitial helium sits in a tetrahedral site; larger clusters
		// grow like a sphere of helium atoms.
		n := float64(c[He])
		return 0.3 + math.Cbrt(3*a*a*a*n/(8*math.Pi)) - math.Cbrt(3*a*a*a/(8*math.Pi))
	}
}

func (r *ArrheniusRates) DiffusionCoefficient(p Parameters, temperature float64) float64 {
	if p.DiffusionFactor == 0 || temperature <= 0 {
		return 0
	}
	return p.DiffusionFactor * math.Exp(-p.MigrationEnergy/(BoltzmannConstant*temperature))
}

func (r *ArrheniusRates) ProductionRate(a, b Parameters, da, db float64) float64 {
	return 4 * math.Pi * (a.ReactionRadius + b.ReactionRadius) * (da + db)
}

func (r *ArrheniusRates) DissociationRate(parent Composition, emitted Species, production, temperature float64) float64 {
	if temperature <= 0 {
		return 0
	}
	a := r.LatticeParameter
	atomicVolume := a * a * a / 2
	eb := r.BindingEnergy(parent, emitted)
	return production / atomicVolume * math.Exp(-eb/(BoltzmannConstant*temperature))
}

// BindingEnergy of one atom of emitted to parent, in eV.
func (r *ArrheniusRates) BindingEnergy(parent Composition, emitted Species) float64 {
	if s, ok := parent.IsPure(); ok && s == emitted {
		switch s {
		case V:
			return capillary(parent[V], r.VacancyFormation, 0.5)
		case I:
			return capillary(parent[I], r.InterstitialFormation, 2.12)
		default:
			return capillary(parent[He], r.HeliumFormation/6, 0.85)
		}
	}

	// Mixed clusters: binding depends on the helium to vacancy ratio.
	ratio := float64(parent[He]) / math.Max(float64(parent[V]), 1)
	switch emitted {
	case He:
		return math.Max(0.5, 4.33-0.93*ratio)
	case V:
		return math.Max(0.5, 1.73-2.36*math.Log(math.Max(ratio, 1e-3))*0.1+0.5*ratio)
	default:
		return r.InterstitialFormation
	}
}

// capillary interpolates between the dimer binding energy and the bulk
// formation energy with the n^(2/3) surface law.
func capillary(n int, bulk, dimer float64) float64 {
	if n < 2 {
		return bulk
	}
	x := float64(n)
	surf := (math.Pow(x, 2.0/3) - math.Pow(x-1, 2.0/3)) / (math.Pow(2, 2.0/3) - 1)
	return bulk - (bulk-dimer)*surf
}
