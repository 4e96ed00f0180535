package network

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// testRates keeps every rate of order one so finite differences stay well
// conditioned. Every cluster is mobile.
type testRates struct{}

func (testRates) Parameters(c Composition) Parameters {
	return Parameters{
		DiffusionFactor: 1 / float64(c.Size()),
		ReactionRadius:  0.1 * float64(c.Size()),
	}
}

func (testRates) DiffusionCoefficient(p Parameters, temperature float64) float64 {
	if temperature <= 0 {
		return 0
	}
	return p.DiffusionFactor * temperature / 1000
}

func (testRates) ProductionRate(a, b Parameters, da, db float64) float64 {
	return (a.ReactionRadius + b.ReactionRadius) * (da + db)
}

func (testRates) DissociationRate(parent Composition, emitted Species, production, temperature float64) float64 {
	return 0.1 * production / float64(parent.Size())
}

func props(maxHe, maxV, maxI, maxMixed int, dissociation bool) Properties {
	return Properties{
		PropMaxHe:        strconv.Itoa(maxHe),
		PropMaxV:         strconv.Itoa(maxV),
		PropMaxI:         strconv.Itoa(maxI),
		PropMaxMixed:     strconv.Itoa(maxMixed),
		PropDissociation: strconv.FormatBool(dissociation),
	}
}

// newSimpleNetwork builds He1-10, V1-10, I1-10 and the 45 HeV clusters with
// He+V <= 10, without dissociation, at 1000 K.
func newSimpleNetwork(t *testing.T) *Network {
	t.Helper()
	n, err := Build(props(10, 10, 10, 10, false), testRates{})
	require.NoError(t, err)
	n.SetTemperature(1000)
	require.NoError(t, n.ReinitializeConnectivities())
	return n
}

// newGroupedNetwork has concrete HeV below four vacancies and super-clusters
// of width 2x2 above, with dissociation.
func newGroupedNetwork(t *testing.T) *Network {
	t.Helper()
	p := props(4, 7, 3, 6, true)
	p[PropGroupingMin] = "4"
	p[PropGroupingHe] = "2"
	p[PropGroupingV] = "2"
	n, err := Build(p, testRates{})
	require.NoError(t, err)
	n.SetTemperature(1000)
	require.NoError(t, n.ReinitializeConnectivities())
	return n
}

func addAll(t *testing.T, n *Network, comps []Composition) {
	t.Helper()
	for _, c := range comps {
		cl, err := NewCluster(c)
		require.NoError(t, err)
		require.NoError(t, n.Add(cl))
	}
}

func randomState(n *Network, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n.DOF())
	for i := range values {
		values[i] = 0.1 + 0.9*rng.Float64()
	}
	// Moments are signed and smaller than ℓ0.
	for _, s := range n.Supers() {
		for m := 0; m < s.MomentCount(); m++ {
			values[s.MomentID(m)-1] = 0.05 * (rng.Float64() - 0.5)
		}
	}
	return values
}
