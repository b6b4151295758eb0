// Package karyonconfig is the plain configuration record consumed by the
// discovery and RPC subsystems. There is no flag or file-loading layer
// here; an embedder builds one of these however it likes and passes it in.
package karyonconfig

import (
	"time"

	"github.com/karyon-go/karyon/endpoint"
)

// Version pins the advertised protocol version and the semver requirement
// peers must satisfy to be accepted inbound.
type Version struct {
	// V is this node's own advertised version string, e.g. "0.1.0".
	V string
	// Req is the semver range required of a peer's advertised version,
	// e.g. "^0.1.0".
	Req string
}

// Config is the full set of recognized options. New fills in the Default*
// values below; a Config built any other way keeps its zero values.
type Config struct {
	// ListenEndpoint, if set, causes the Lookup Service to accept inbound
	// discovery connections on its address; the port bound is DiscoveryPort.
	ListenEndpoint *endpoint.Endpoint

	// BootstrapPeers seed the initial lookup.
	BootstrapPeers []endpoint.Endpoint

	// PeerEndpoints are manually configured peers. The Lookup Service does
	// not read this field.
	PeerEndpoints []endpoint.Endpoint

	// DiscoveryPort is advertised to peers as this node's discovery
	// listener port.
	DiscoveryPort uint16

	// LookupInboundSlots bounds concurrent inbound discovery exchanges.
	LookupInboundSlots uint32

	// LookupOutboundSlots bounds concurrent outbound discovery exchanges.
	LookupOutboundSlots uint32

	// LookupConnectRetries bounds dial attempts per outbound exchange.
	LookupConnectRetries uint32

	// LookupResponseTimeout bounds how long an outbound exchange waits
	// for each expected reply.
	LookupResponseTimeout time.Duration

	// LookupConnectionLifespan bounds how long an inbound exchange stays
	// open absent an explicit Shutdown.
	LookupConnectionLifespan time.Duration

	// Version is this node's advertised version and its requirement of
	// peers.
	Version Version

	// EnableTLS makes the Lookup Service listen for and dial discovery
	// connections over TLS when true. The RPC client does not read it.
	EnableTLS bool
}

// Defaults mirror the values the spec names as representative.
const (
	DefaultDiscoveryPort            = 0
	DefaultLookupInboundSlots       = 20
	DefaultLookupOutboundSlots      = 20
	DefaultLookupConnectRetries     = 3
	DefaultLookupResponseTimeout    = 10 * time.Second
	DefaultLookupConnectionLifespan = 60 * time.Second
	DefaultVersion                  = "0.1.0"
)

// New returns a Config with every field at its documented default and no
// listen endpoint, bootstrap peers, or manual peers configured.
func New() Config {
	return Config{
		DiscoveryPort:            DefaultDiscoveryPort,
		LookupInboundSlots:       DefaultLookupInboundSlots,
		LookupOutboundSlots:      DefaultLookupOutboundSlots,
		LookupConnectRetries:     DefaultLookupConnectRetries,
		LookupResponseTimeout:    DefaultLookupResponseTimeout,
		LookupConnectionLifespan: DefaultLookupConnectionLifespan,
		Version:                  Version{V: DefaultVersion, Req: "^" + DefaultVersion},
		EnableTLS:                false,
	}
}
