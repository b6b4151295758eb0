// Package monitor defines the event taxonomy published by the Listener,
// Connector, and Lookup Service, and a minimal concrete bus implementation.
//
// The spec treats the monitor sink as an external collaborator — only the
// taxonomy is contractually required. The Bus here exists so this module's
// own tests can observe event ordering, and so an embedder has something
// usable out of the box without pulling in a full metrics/logging stack.
package monitor

import "github.com/karyon-go/karyon/endpoint"

// ConnKind identifies a connection lifecycle event.
type ConnKind int

const (
	Listening ConnKind = iota
	ListenFailed
	Accepted
	AcceptFailed
	Connected
	ConnectFailed
	Disconnected
)

// ConnEvent is published by the Listener and Connector.
type ConnEvent struct {
	Kind     ConnKind
	Endpoint endpoint.Endpoint
}

// DiscoveryKind identifies a lookup lifecycle event.
type DiscoveryKind int

const (
	LookupStarted DiscoveryKind = iota
	LookupFailed
	LookupSucceeded
)

// DiscoveryEvent is published by the Lookup Service.
type DiscoveryEvent struct {
	Kind     DiscoveryKind
	Endpoint endpoint.Endpoint
	// Count is populated only for LookupSucceeded: the number of entries
	// inserted into the routing table by the completed lookup.
	Count int
}

// Event is the sum type accepted by a Monitor sink.
type Event struct {
	Conn      *ConnEvent
	Discovery *DiscoveryEvent
}

// ConnE wraps a ConnEvent as an Event.
func ConnE(kind ConnKind, ep endpoint.Endpoint) Event {
	return Event{Conn: &ConnEvent{Kind: kind, Endpoint: ep}}
}

// DiscoveryE wraps a DiscoveryEvent as an Event.
func DiscoveryE(kind DiscoveryKind, ep endpoint.Endpoint, count int) Event {
	return Event{Discovery: &DiscoveryEvent{Kind: kind, Endpoint: ep, Count: count}}
}

// Sink receives published events. Listener, Connector, and the Lookup
// Service each hold one.
type Sink interface {
	Notify(e Event)
}
