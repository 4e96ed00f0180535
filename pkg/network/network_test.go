package network

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/dd0wney/cluso-cd/pkg/logging"
	"github.com/dd0wney/cluso-cd/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleNetworkLayout(t *testing.T) {
	n := newSimpleNetwork(t)

	assert.Equal(t, 75, n.Size())
	assert.Equal(t, 75, n.DOF())
	assert.Len(t, n.GetAll(TypeHe), 10)
	assert.Len(t, n.GetAll(TypeV), 10)
	assert.Len(t, n.GetAll(TypeI), 10)
	assert.Len(t, n.GetAll(TypeHeV), 45)
	assert.Empty(t, n.Supers())

	for i, c := range n.All() {
		assert.Equal(t, i+1, c.ID(), "ids must be dense and in construction order")
	}
	assert.Equal(t, 1, n.Get(He, 1).ID())
	assert.Equal(t, 11, n.Get(V, 1).ID())
	assert.Equal(t, 21, n.Get(I, 1).ID())
	assert.Equal(t, "He1V1", n.Cluster(31).Name())
}

func TestLookupMisses(t *testing.T) {
	n := newSimpleNetwork(t)

	assert.Nil(t, n.Get(He, 11))
	assert.Nil(t, n.Get(I, 0))
	assert.Nil(t, n.Get(Species(7), 1))
	assert.Nil(t, n.GetComposition(Mixed(9, 2)))
	assert.Nil(t, n.Cluster(0))
	assert.Nil(t, n.Cluster(76))
	assert.Nil(t, n.Super(1))
	assert.Nil(t, n.Connectivity(99))
	assert.Nil(t, n.ColumnMap(-1))
}

func TestV2Connectivity(t *testing.T) {
	n := newSimpleNetwork(t)

	expected := []int{
		// He1-10
		1, 1, 1, 1, 1, 1, 1, 1, 0, 0,
		// V1-10
		1, 1, 1, 1, 1, 1, 1, 1, 0, 0,
		// I1-10
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	}
	expected = append(expected, make([]int, 45)...)

	v2 := n.Get(V, 2)
	require.NotNil(t, v2)
	assert.Equal(t, expected, n.Connectivity(v2.ID()))
}

func TestNewRejectsInconsistentProperties(t *testing.T) {
	tests := []struct {
		name     string
		props    Properties
		property string
	}{
		{"negative", Properties{PropMaxHe: "-1", PropMaxV: "2"}, PropMaxHe},
		{"not a number", Properties{PropMaxV: "ten"}, PropMaxV},
		{"not a bool", Properties{PropMaxV: "2", PropDissociation: "maybe"}, PropDissociation},
		{"empty", Properties{}, PropMaxHe},
		{"single atom mixed", Properties{PropMaxHe: "2", PropMaxV: "2", PropMaxMixed: "1"}, PropMaxMixed},
		{"mixed without helium", Properties{PropMaxV: "2", PropMaxMixed: "4"}, PropMaxMixed},
		{"grouping beyond vacancies", Properties{PropMaxHe: "2", PropMaxV: "2", PropMaxMixed: "4", PropGroupingMin: "3"}, PropGroupingMin},
		{"grouping without mixed", Properties{PropMaxV: "5", PropGroupingMin: "3"}, PropGroupingMin},
		{"zero width", Properties{PropMaxHe: "2", PropMaxV: "5", PropMaxMixed: "4", PropGroupingMin: "3", PropGroupingHe: "0"}, PropGroupingHe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.props, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidProperty)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.property, cfgErr.Property)
		})
	}
}

func TestLimitsRoundTrip(t *testing.T) {
	p := props(4, 7, 3, 6, true)
	p[PropGroupingMin] = "4"
	l, err := ParseLimits(p)
	require.NoError(t, err)

	back, err := ParseLimits(l.Properties())
	require.NoError(t, err)
	assert.Equal(t, l, back)
	assert.Equal(t, 1, l.GroupingWidthHe, "width defaults to one")
}

func TestAddErrors(t *testing.T) {
	n, err := New(props(2, 2, 0, 0, false), testRates{})
	require.NoError(t, err)

	addAll(t, n, []Composition{Pure(He, 1)})
	dup, _ := NewCluster(Pure(He, 1))
	assert.ErrorIs(t, n.Add(dup), ErrClusterExists)
	assert.ErrorIs(t, n.Add(nil), ErrInvalidComposition)

	_, err = NewCluster(Composition{1, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidComposition)
	_, err = NewCluster(Composition{})
	assert.ErrorIs(t, err, ErrInvalidComposition)
	_, err = NewSuperCluster(3, 2, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidComposition)

	s, err := NewSuperCluster(1, 1, 1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, n.Add(&s.Cluster), ErrInvalidComposition)
}

func TestReinitializeRejectsOverflow(t *testing.T) {
	n, err := New(props(2, 2, 0, 3, false), testRates{})
	require.NoError(t, err)
	addAll(t, n, []Composition{Pure(He, 1), Pure(He, 3)})

	err = n.ReinitializeConnectivities()
	assert.ErrorIs(t, err, ErrCompositionOverflow)
	assert.Contains(t, err.Error(), "He3")
	assert.False(t, n.Ready())

	m, err := New(props(2, 2, 0, 3, false), testRates{})
	require.NoError(t, err)
	addAll(t, m, []Composition{Mixed(2, 2)})
	assert.ErrorIs(t, m.ReinitializeConnectivities(), ErrCompositionOverflow)

	g, err := New(props(2, 2, 0, 3, false), testRates{})
	require.NoError(t, err)
	s, _ := NewSuperCluster(1, 4, 1, 2)
	require.NoError(t, g.AddSuper(s))
	assert.ErrorIs(t, g.ReinitializeConnectivities(), ErrCompositionOverflow)
}

func TestReinitializeRejectsOverlappingSupers(t *testing.T) {
	n, err := New(props(3, 4, 0, 6, false), testRates{})
	require.NoError(t, err)
	addAll(t, n, []Composition{Mixed(1, 3)})
	s, _ := NewSuperCluster(1, 2, 3, 4)
	require.NoError(t, n.AddSuper(s))
	assert.ErrorIs(t, n.ReinitializeConnectivities(), ErrOverlappingSuper)

	m, err := New(props(3, 4, 0, 6, false), testRates{})
	require.NoError(t, err)
	a, _ := NewSuperCluster(1, 2, 3, 4)
	b, _ := NewSuperCluster(2, 3, 4, 4)
	require.NoError(t, m.AddSuper(a))
	require.NoError(t, m.AddSuper(b))
	assert.ErrorIs(t, m.ReinitializeConnectivities(), ErrOverlappingSuper)
}

func TestStructuralChangeInvalidates(t *testing.T) {
	n := newSimpleNetwork(t)
	require.True(t, n.Ready())

	s, _ := NewSuperCluster(1, 1, 11, 11)
	require.NoError(t, n.AddSuper(s))
	assert.False(t, n.Ready())
	assert.Nil(t, n.ColumnMap(0))
	assert.Panics(t, func() { n.Ingest(make([]float64, 100)) })
}

func TestSetTemperatureExactComparison(t *testing.T) {
	n := newSimpleNetwork(t)
	he1 := n.Get(He, 1)

	assert.False(t, n.SetTemperature(1000), "same temperature must not recompute")
	rate := n.LargestRate()
	d := he1.DiffusionCoefficient()

	assert.True(t, n.SetTemperature(1000.0000001))
	assert.NotEqual(t, rate, n.LargestRate())
	assert.NotEqual(t, d, he1.DiffusionCoefficient())

	assert.True(t, n.SetTemperature(1000))
	assert.Equal(t, rate, n.LargestRate())
	assert.Equal(t, d, he1.DiffusionCoefficient())
}

func TestReactionCounts(t *testing.T) {
	n := newSimpleNetwork(t)
	counts := n.Reactions()
	assert.Zero(t, counts[Dissociation])
	assert.Positive(t, counts[Production])
	// Every V_a + I_b pair annihilates.
	assert.Equal(t, 100, counts[Annihilation])

	g := newGroupedNetwork(t)
	assert.Positive(t, g.Reactions()[Dissociation])
}

func TestReinitializeLogsAndRecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	reg := metrics.NewRegistry()
	n, err := Build(props(3, 3, 2, 4, true), testRates{},
		WithLogger(logging.NewJSONLogger(&buf, logging.DebugLevel)),
		WithMetrics(reg))
	require.NoError(t, err)

	n.SetTemperature(900)
	require.NoError(t, n.ReinitializeConnectivities())

	assert.True(t, strings.Contains(buf.String(), "network connectivity rebuilt"))
	assert.True(t, strings.Contains(buf.String(), `"component":"network"`))

	families, err := reg.GetPrometheusRegistry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "clusocd_network_dof" {
			found = true
			assert.Equal(t, float64(n.DOF()), mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestDefaultRatesAreUsable(t *testing.T) {
	n, err := Build(props(8, 4, 3, 8, true), nil)
	require.NoError(t, err)
	n.SetTemperature(1000)
	require.NoError(t, n.ReinitializeConnectivities())

	assert.True(t, n.Get(He, 1).IsMobile())
	assert.False(t, n.Get(He, 8).IsMobile())
	assert.False(t, n.Get(V, 2).IsMobile())
	assert.Greater(t, n.Get(He, 1).DiffusionCoefficient(), 0.0)
	assert.Greater(t, n.LargestRate(), 0.0)

	r := DefaultRates()
	assert.InDelta(t, 0.5, r.BindingEnergy(Pure(V, 2), V), 1e-12)
	assert.Greater(t, r.BindingEnergy(Pure(V, 50), V), r.BindingEnergy(Pure(V, 3), V))
	assert.Zero(t, r.DissociationRate(Pure(V, 2), V, 1, 0))
}

func TestCombineRules(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Composition
		product Composition
		kind    ReactionKind
		ok      bool
	}{
		{"helium clustering", Pure(He, 2), Pure(He, 3), Pure(He, 5), Production, true},
		{"helium trapping", Pure(V, 2), Pure(He, 3), Mixed(3, 2), Production, true},
		{"vacancy rich annihilation", Pure(V, 4), Pure(I, 1), Pure(V, 3), Annihilation, true},
		{"interstitial rich annihilation", Pure(I, 3), Pure(V, 1), Pure(I, 2), Annihilation, true},
		{"full annihilation", Pure(V, 2), Pure(I, 2), Composition{}, Annihilation, true},
		{"helium and interstitial", Pure(He, 1), Pure(I, 1), Composition{}, 0, false},
		{"bubble takes a vacancy", Mixed(2, 3), Pure(V, 1), Mixed(2, 4), Production, true},
		{"bubble ignores divacancy", Mixed(2, 3), Pure(V, 2), Composition{}, 0, false},
		{"bubble takes helium", Pure(He, 2), Mixed(2, 3), Mixed(4, 3), Production, true},
		{"bubble takes interstitial", Mixed(2, 3), Pure(I, 2), Mixed(2, 1), Production, true},
		{"interstitial fills bubble", Mixed(2, 3), Pure(I, 3), Composition{}, 0, false},
		{"bubbles never merge", Mixed(1, 1), Mixed(1, 1), Composition{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product, kind, ok := combine(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.product, product)
				assert.Equal(t, tt.kind, kind)
			}
			swapped, _, _ := combine(tt.b, tt.a)
			assert.Equal(t, product, swapped, "combine must be symmetric")
		})
	}
}

func TestCompositionNamesAndTypes(t *testing.T) {
	assert.Equal(t, "He2V5", Mixed(2, 5).Name())
	assert.Equal(t, "I3", Pure(I, 3).Name())
	assert.Equal(t, "0", Composition{}.Name())

	typ, err := Mixed(1, 1).Type()
	require.NoError(t, err)
	assert.Equal(t, TypeHeV, typ)

	for _, typ := range Types() {
		parsed, ok := ParseType(strings.ToLower(typ.String()))
		assert.True(t, ok)
		assert.Equal(t, typ, parsed)
	}
	_, ok := ParseType("HeI")
	assert.False(t, ok)
}
