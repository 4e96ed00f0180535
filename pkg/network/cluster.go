package network

// Cluster is one tracked species of defect cluster. Its identity is fixed at
// construction; the id is assigned by the network and the concentration is
// overwritten by every Ingest.
type Cluster struct {
	id   int
	name string
	typ  Type
	comp Composition

	params               Parameters
	diffusionCoefficient float64
	concentration        float64
}

// NewCluster validates comp and returns an unregistered cluster.
func NewCluster(comp Composition) (*Cluster, error) {
	typ, err := comp.Type()
	if err != nil {
		return nil, err
	}
	return &Cluster{name: comp.Name(), typ: typ, comp: comp}, nil
}

// ID is the 1-based dense id, or 0 before the network assigned one.
func (c *Cluster) ID() int { return c.id }

func (c *Cluster) Name() string { return c.name }

func (c *Cluster) Type() Type { return c.typ }

// Composition of a concrete cluster. For a super-cluster this is the
// composition nearest its average.
func (c *Cluster) Composition() Composition { return c.comp }

func (c *Cluster) Size() int { return c.comp.Size() }

func (c *Cluster) Parameters() Parameters { return c.params }

func (c *Cluster) ReactionRadius() float64 { return c.params.ReactionRadius }

// DiffusionCoefficient at the network's current temperature.
func (c *Cluster) DiffusionCoefficient() float64 { return c.diffusionCoefficient }

// IsMobile reports whether the cluster diffuses at all.
func (c *Cluster) IsMobile() bool { return c.params.DiffusionFactor > 0 }

// Concentration last ingested for this cluster (ℓ0 for a super-cluster).
func (c *Cluster) Concentration() float64 { return c.concentration }

func (c *Cluster) String() string { return c.name }
