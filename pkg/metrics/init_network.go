package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initNetworkMetrics() {
	r.NetworkClusters = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clusocd_network_clusters",
			Help: "Number of clusters in the reaction network by type",
		},
		[]string{"type"},
	)

	r.NetworkDOF = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "clusocd_network_dof",
			Help: "Degrees of freedom per grid point",
		},
	)

	r.NetworkReactions = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clusocd_network_reactions",
			Help: "Number of discovered reactions by kind",
		},
		[]string{"kind"},
	)

	r.NetworkTemperature = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "clusocd_network_temperature_kelvin",
			Help: "Temperature the reaction rates were last computed at",
		},
	)

	r.NetworkRateRecomputes = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusocd_network_rate_recomputes_total",
			Help: "Number of full reaction rate recomputations",
		},
	)

	r.NetworkReinitializations = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "clusocd_network_reinitializations_total",
			Help: "Number of connectivity rebuilds",
		},
	)

	r.NetworkLargestRate = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "clusocd_network_largest_rate",
			Help: "Largest reaction rate constant at the current temperature",
		},
	)
}
