package network

import (
	"strconv"
	"strings"
)

// Property keys understood by the network.
const (
	PropMaxHe        = "maxHeClusterSize"
	PropMaxV         = "maxVClusterSize"
	PropMaxI         = "maxIClusterSize"
	PropMaxMixed     = "maxMixedClusterSize"
	PropDissociation = "dissociationsEnabled"
	PropGroupingMin  = "groupingMin"
	PropGroupingHe   = "groupingWidthHe"
	PropGroupingV    = "groupingWidthV"
)

// Properties is the string map a network is configured from.
type Properties map[string]string

// Int parses key, returning def when it is absent.
func (p Properties) Int(key string, def int) (int, error) {
	raw, ok := p[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &ConfigError{Property: key, Value: raw, Reason: "not an integer"}
	}
	return v, nil
}

// Bool parses key, returning def when it is absent.
func (p Properties) Bool(key string, def bool) (bool, error) {
	raw, ok := p[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, &ConfigError{Property: key, Value: raw, Reason: "not a boolean"}
	}
	return v, nil
}

// Limits are the parsed and validated network properties.
type Limits struct {
	MaxHe, MaxV, MaxI int
	// MaxMixed caps He+V for concrete HeV clusters and He for grouped ones.
	MaxMixed     int
	Dissociation bool
	// GroupingMin is the first vacancy size handled by super-clusters;
	// 0 disables grouping.
	GroupingMin     int
	GroupingWidthHe int
	GroupingWidthV  int
}

// ParseLimits reads and cross-checks every network property.
func ParseLimits(p Properties) (Limits, error) {
	var l Limits
	var err error
	ints := []struct {
		key string
		dst *int
		def int
	}{
		{PropMaxHe, &l.MaxHe, 0},
		{PropMaxV, &l.MaxV, 0},
		{PropMaxI, &l.MaxI, 0},
		{PropMaxMixed, &l.MaxMixed, 0},
		{PropGroupingMin, &l.GroupingMin, 0},
		{PropGroupingHe, &l.GroupingWidthHe, 1},
		{PropGroupingV, &l.GroupingWidthV, 1},
	}
	for _, f := range ints {
		if *f.dst, err = p.Int(f.key, f.def); err != nil {
			return Limits{}, err
		}
		if *f.dst < 0 {
			return Limits{}, &ConfigError{Property: f.key, Value: p[f.key], Reason: "must not be negative"}
		}
	}
	if l.Dissociation, err = p.Bool(PropDissociation, true); err != nil {
		return Limits{}, err
	}

	switch {
	case l.MaxHe == 0 && l.MaxV == 0 && l.MaxI == 0:
		return Limits{}, &ConfigError{Property: PropMaxHe, Reason: "network has no species"}
	case l.MaxMixed == 1:
		return Limits{}, &ConfigError{Property: PropMaxMixed, Value: p[PropMaxMixed], Reason: "mixed clusters need at least two atoms"}
	case l.MaxMixed > 0 && (l.MaxHe == 0 || l.MaxV == 0):
		return Limits{}, &ConfigError{Property: PropMaxMixed, Value: p[PropMaxMixed], Reason: "mixed clusters need both helium and vacancies"}
	case l.GroupingMin > 0 && l.MaxMixed == 0:
		return Limits{}, &ConfigError{Property: PropGroupingMin, Value: p[PropGroupingMin], Reason: "grouping requires mixed clusters"}
	case l.GroupingMin > l.MaxV:
		return Limits{}, &ConfigError{Property: PropGroupingMin, Value: p[PropGroupingMin], Reason: "larger than the vacancy maximum"}
	case l.GroupingMin > 0 && (l.GroupingWidthHe < 1 || l.GroupingWidthV < 1):
		return Limits{}, &ConfigError{Property: PropGroupingHe, Reason: "grouping widths must be positive"}
	}
	return l, nil
}

// Properties renders l back into a property map.
func (l Limits) Properties() Properties {
	return Properties{
		PropMaxHe:        strconv.Itoa(l.MaxHe),
		PropMaxV:         strconv.Itoa(l.MaxV),
		PropMaxI:         strconv.Itoa(l.MaxI),
		PropMaxMixed:     strconv.Itoa(l.MaxMixed),
		PropDissociation: strconv.FormatBool(l.Dissociation),
		PropGroupingMin:  strconv.Itoa(l.GroupingMin),
		PropGroupingHe:   strconv.Itoa(l.GroupingWidthHe),
		PropGroupingV:    strconv.Itoa(l.GroupingWidthV),
	}
}

// allows reports whether a concrete composition is inside the limits.
func (l Limits) allows(c Composition) bool {
	if s, ok := c.IsPure(); ok {
		switch s {
		case He:
			return c[He] <= l.MaxHe
		case V:
			return c[V] <= l.MaxV
		default:
			return c[I] <= l.MaxI
		}
	}
	return c.Size() <= l.MaxMixed && c[V] <= l.MaxV
}

// allowsSuper reports whether a grouped rectangle is inside the limits.
func (l Limits) allowsSuper(s *SuperCluster) bool {
	_, heMax := s.Bounds(He)
	_, vMax := s.Bounds(V)
	return heMax <= l.MaxMixed && vMax <= l.MaxV
}
