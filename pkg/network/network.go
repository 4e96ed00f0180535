package network

import (
	"fmt"
	"maps"
	"time"

	"github.com/dd0wney/cluso-cd/pkg/logging"
	"github.com/dd0wney/cluso-cd/pkg/metrics"
)

// Network is the registry of clusters and the reactions between them. It
// owns every cluster added to it. A Network is mutated at every grid point
// (Ingest, SetTemperature) and is not safe for concurrent use; partitions
// each build their own.
type Network struct {
	limits  Limits
	props   Properties
	rates   RateModel
	logger  logging.Logger
	metrics *metrics.Registry

	clusters  []*Cluster
	supers    []*SuperCluster
	all       []*Cluster
	byComp    map[Composition]*Cluster
	byType    map[Type][]*Cluster
	bySpecies [NumSpecies][]*Cluster

	temperature    float64
	hasTemperature bool

	ready       bool
	dof         int
	memberOf    map[Composition]*SuperCluster
	reactions   []reaction
	rows        [][]rowRef
	columns     [][]int
	partners    [][]int32
	largestRate float64
}

// Option configures a Network.
type Option func(*Network)

func WithLogger(l logging.Logger) Option {
	return func(n *Network) { n.logger = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(n *Network) { n.metrics = m }
}

// New validates props and returns an empty network. A nil rate model selects
// DefaultRates.
func New(props Properties, rates RateModel, opts ...Option) (*Network, error) {
	limits, err := ParseLimits(props)
	if err != nil {
		return nil, err
	}
	if rates == nil {
		rates = DefaultRates()
	}
	n := &Network{
		limits: limits,
		props:  maps.Clone(props),
		rates:  rates,
		logger: logging.NewNopLogger(),
		byComp: make(map[Composition]*Cluster),
		byType: make(map[Type][]*Cluster),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With(logging.Component("network"))
	return n, nil
}

func (n *Network) Limits() Limits { return n.limits }

// Properties returns a copy of the configuration map.
func (n *Network) Properties() Properties { return maps.Clone(n.props) }

func (n *Network) Rates() RateModel { return n.rates }

// Add registers a concrete cluster. Structural changes invalidate ids and
// connectivity until the next ReinitializeConnectivities.
func (n *Network) Add(c *Cluster) error {
	if c == nil {
		return fmt.Errorf("%w: nil cluster", ErrInvalidComposition)
	}
	if c.typ == TypeSuper {
		return clusterError("add", c.name, fmt.Errorf("%w: use AddSuper", ErrInvalidComposition))
	}
	if _, ok := n.byComp[c.comp]; ok {
		return clusterError("add", c.name, ErrClusterExists)
	}

	c.params = n.rates.Parameters(c.comp)
	c.diffusionCoefficient = 0
	if n.hasTemperature {
		c.diffusionCoefficient = n.rates.DiffusionCoefficient(c.params, n.temperature)
	}

	n.clusters = append(n.clusters, c)
	n.byComp[c.comp] = c
	n.byType[c.typ] = append(n.byType[c.typ], c)
	if s, ok := c.comp.IsPure(); ok {
		size := c.comp[s]
		for len(n.bySpecies[s]) <= size {
			n.bySpecies[s] = append(n.bySpecies[s], nil)
		}
		n.bySpecies[s][size] = c
	}
	n.invalidate()
	return nil
}

// AddSuper registers a super-cluster. Super-clusters never diffuse.
func (n *Network) AddSuper(s *SuperCluster) error {
	if s == nil {
		return fmt.Errorf("%w: nil super-cluster", ErrInvalidComposition)
	}
	for _, other := range n.supers {
		if other.name == s.name {
			return clusterError("add", s.name, ErrClusterExists)
		}
	}
	s.params = n.rates.Parameters(s.comp)
	s.params.DiffusionFactor = 0
	s.diffusionCoefficient = 0

	n.supers = append(n.supers, s)
	n.byType[TypeSuper] = append(n.byType[TypeSuper], &s.Cluster)
	n.invalidate()
	return nil
}

func (n *Network) invalidate() {
	n.ready = false
	n.reactions = nil
	n.rows = nil
	n.columns = nil
	n.partners = nil
}

// Ready reports whether ids and connectivity are current.
func (n *Network) Ready() bool { return n.ready }

// Size is the number of clusters, super-clusters included.
func (n *Network) Size() int { return len(n.clusters) + len(n.supers) }

// DOF is the number of unknowns per grid point: one per cluster plus the
// super-cluster moments. It is 0 until ReinitializeConnectivities.
func (n *Network) DOF() int { return n.dof }

// All returns every cluster in id order: concrete clusters in construction
// order, then super-clusters. The slice must not be modified.
func (n *Network) All() []*Cluster {
	if n.ready {
		return n.all
	}
	all := make([]*Cluster, 0, n.Size())
	all = append(all, n.clusters...)
	for _, s := range n.supers {
		all = append(all, &s.Cluster)
	}
	return all
}

// GetAll returns the clusters of one type in construction order.
func (n *Network) GetAll(t Type) []*Cluster { return n.byType[t] }

func (n *Network) Supers() []*SuperCluster { return n.supers }

// Get returns the pure cluster of the given species and size, or nil.
func (n *Network) Get(s Species, size int) *Cluster {
	if s < 0 || int(s) >= NumSpecies || size < 1 || size >= len(n.bySpecies[s]) {
		return nil
	}
	return n.bySpecies[s][size]
}

// GetComposition returns the concrete cluster with composition c, or nil.
func (n *Network) GetComposition(c Composition) *Cluster {
	return n.byComp[c]
}

// SuperContaining returns the super-cluster representing c, or nil. It is
// only meaningful after ReinitializeConnectivities.
func (n *Network) SuperContaining(c Composition) *SuperCluster {
	return n.memberOf[c]
}

// Cluster returns the cluster with the given id, or nil.
func (n *Network) Cluster(id int) *Cluster {
	if !n.ready || id < 1 || id > len(n.all) {
		return nil
	}
	return n.all[id-1]
}

// Super returns the super-cluster with the given id, or nil.
func (n *Network) Super(id int) *SuperCluster {
	k := id - 1 - len(n.clusters)
	if !n.ready || k < 0 || k >= len(n.supers) {
		return nil
	}
	return n.supers[k]
}

func (n *Network) Temperature() float64 { return n.temperature }

// SetTemperature recomputes diffusion coefficients and reaction rates when T
// differs from the last applied temperature. The comparison is exact. It
// reports whether anything was recomputed.
func (n *Network) SetTemperature(T float64) bool {
	if n.hasTemperature && T == n.temperature {
		return false
	}
	n.temperature = T
	n.hasTemperature = true
	for _, c := range n.clusters {
		c.diffusionCoefficient = n.rates.DiffusionCoefficient(c.params, T)
	}
	if n.ready {
		n.computeRates()
	}
	if n.logger.Enabled(logging.DebugLevel) {
		n.logger.Debug("temperature applied", logging.Temperature(T), logging.Float64("largest_rate", n.largestRate))
	}
	return true
}

// LargestRate is the largest reaction rate constant at the current
// temperature.
func (n *Network) LargestRate() float64 { return n.largestRate }

// ReinitializeConnectivities validates every composition, assigns dense ids,
// regroups super-clusters, rediscovers reactions and rebuilds connectivity
// and the derivative column map.
func (n *Network) ReinitializeConnectivities() error {
	start := time.Now()
	n.invalidate()

	for _, c := range n.clusters {
		if !n.limits.allows(c.comp) {
			return clusterError("reinitialize", c.name, ErrCompositionOverflow)
		}
	}
	for _, s := range n.supers {
		if !n.limits.allowsSuper(s) {
			return clusterError("reinitialize", s.name, ErrCompositionOverflow)
		}
	}

	n.all = n.all[:0]
	for i, c := range n.clusters {
		c.id = i + 1
		n.all = append(n.all, c)
	}
	for _, s := range n.supers {
		s.id = len(n.all) + 1
		n.all = append(n.all, &s.Cluster)
	}
	next := len(n.all)
	for _, s := range n.supers {
		s.regroup()
		for m := range s.axes {
			next++
			s.momentIDs[m] = next
		}
	}
	n.dof = next

	n.memberOf = make(map[Composition]*SuperCluster)
	for _, s := range n.supers {
		var overlap error
		s.Members(func(c Composition) {
			if overlap != nil {
				return
			}
			if _, ok := n.byComp[c]; ok {
				overlap = clusterError("reinitialize", s.name, fmt.Errorf("%w: %s", ErrOverlappingSuper, c.Name()))
				return
			}
			if other, ok := n.memberOf[c]; ok {
				overlap = clusterError("reinitialize", s.name, fmt.Errorf("%w: %s", ErrOverlappingSuper, other.name))
				return
			}
			n.memberOf[c] = s
		})
		if overlap != nil {
			return overlap
		}
	}

	n.discoverReactions()
	n.buildRows()
	n.buildConnectivity()
	n.ready = true
	n.computeRates()

	counts := n.Reactions()
	n.logger.Info("network connectivity rebuilt",
		logging.Int("clusters", len(n.clusters)),
		logging.Int("supers", len(n.supers)),
		logging.DOF(n.dof),
		logging.Int("reactions", len(n.reactions)),
		logging.Int("dissociations", counts[Dissociation]),
		logging.Latency(time.Since(start)),
	)
	if n.metrics != nil {
		shape := metrics.NetworkShape{
			ClustersByType:  make(map[string]int),
			ReactionsByKind: make(map[string]int),
			DOF:             n.dof,
		}
		for _, t := range Types() {
			shape.ClustersByType[t.String()] = len(n.byType[t])
		}
		for kind, count := range counts {
			shape.ReactionsByKind[kind.String()] = count
		}
		n.metrics.RecordNetworkShape(shape)
	}
	return nil
}

// Reactions counts the discovered reactions by kind.
func (n *Network) Reactions() map[ReactionKind]int {
	counts := make(map[ReactionKind]int)
	for i := range n.reactions {
		counts[n.reactions[i].kind]++
	}
	return counts
}

func (n *Network) computeRates() {
	n.largestRate = 0
	T := n.temperature
	for i := range n.reactions {
		r := &n.reactions[i]
		da := n.rates.DiffusionCoefficient(r.pa, T)
		db := n.rates.DiffusionCoefficient(r.pb, T)
		k := n.rates.ProductionRate(r.pa, r.pb, da, db)
		if r.kind == Dissociation {
			k = n.rates.DissociationRate(r.in[0].comp, r.emitted, k, T)
		}
		r.rate = k
		if k > n.largestRate {
			n.largestRate = k
		}
	}
	if n.metrics != nil {
		n.metrics.RecordRateRecompute(T, n.largestRate)
	}
}

// Connectivity returns, for the cluster with the given id, a 0/1 entry per
// cluster in id order marking the clusters it is connected to.
func (n *Network) Connectivity(id int) []int {
	if !n.ready || id < 1 || id > len(n.all) {
		return nil
	}
	out := make([]int, len(n.all))
	for _, p := range n.partners[id-1] {
		out[p] = 1
	}
	return out
}

// ColumnMap lists, for 0-based DOF row, the sorted 0-based DOF columns whose
// partial derivatives can be nonzero. The slice must not be modified.
func (n *Network) ColumnMap(row int) []int {
	if !n.ready || row < 0 || row >= len(n.columns) {
		return nil
	}
	return n.columns[row]
}

// Content returns the number of atoms of sp held by cluster id given the DOF
// vector values.
func (n *Network) Content(values []float64, id int, sp Species) float64 {
	if s := n.Super(id); s != nil {
		return s.content(sp, values[id-1], func(m int) float64 { return values[s.momentIDs[m]-1] })
	}
	c := n.Cluster(id)
	if c == nil {
		return 0
	}
	return float64(c.comp[sp]) * values[id-1]
}
