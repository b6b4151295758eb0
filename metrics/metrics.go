// Package metrics exposes optional prometheus gauges for the pieces of
// state an embedder most often wants visibility into: connection slot
// occupancy and routing table size. Nothing in this module calls into
// this package on its own; an embedder wires it up explicitly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the gauges this package exposes. Register it with a
// prometheus.Registerer of the embedder's choosing.
type Registry struct {
	ConnectionSlotsTaken *prometheus.GaugeVec
	RoutingTableSize     prometheus.Gauge
}

// NewRegistry constructs an unregistered Registry. The "pool" label on
// ConnectionSlotsTaken distinguishes inbound from outbound slot pools.
func NewRegistry() *Registry {
	return &Registry{
		ConnectionSlotsTaken: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "karyon",
			Name:      "connection_slots_taken",
			Help:      "Number of connection slots currently reserved, by pool.",
		}, []string{"pool"}),
		RoutingTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "karyon",
			Name:      "routing_table_size",
			Help:      "Number of entries currently held in the routing table.",
		}),
	}
}

// MustRegister registers every gauge in r with reg, panicking on failure
// (mirrors prometheus.MustRegister's own contract).
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(r.ConnectionSlotsTaken, r.RoutingTableSize)
}
