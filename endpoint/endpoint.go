// Package endpoint implements the tagged-union network address used by
// both the discovery wire protocol and the RPC client's dialer.
package endpoint

import "fmt"

// Network identifies which transport an Endpoint addresses.
type Network int

const (
	// Tcp addresses a plain TCP endpoint.
	Tcp Network = iota
	// Tls addresses a TLS-over-TCP endpoint.
	Tls
	// Udp addresses a UDP endpoint.
	Udp
)

func (n Network) String() string {
	switch n {
	case Tcp:
		return "tcp"
	case Tls:
		return "tls"
	case Udp:
		return "udp"
	default:
		return "unknown"
	}
}

// Endpoint is a tagged union over {Tcp, Tls, Udp}, each carrying an address
// and a port.
type Endpoint struct {
	Network Network
	Addr    string
	Port    uint16
}

// NewTcp builds a Tcp-tagged Endpoint.
func NewTcp(addr string, port uint16) Endpoint { return Endpoint{Network: Tcp, Addr: addr, Port: port} }

// NewTls builds a Tls-tagged Endpoint.
func NewTls(addr string, port uint16) Endpoint { return Endpoint{Network: Tls, Addr: addr, Port: port} }

// NewUdp builds a Udp-tagged Endpoint.
func NewUdp(addr string, port uint16) Endpoint { return Endpoint{Network: Udp, Addr: addr, Port: port} }

// IsTcp reports whether e is a plain TCP endpoint.
func (e Endpoint) IsTcp() bool { return e.Network == Tcp }

// IsTls reports whether e is a TLS-over-TCP endpoint.
func (e Endpoint) IsTls() bool { return e.Network == Tls }

// IsUdp reports whether e is a UDP endpoint.
func (e Endpoint) IsUdp() bool { return e.Network == Udp }

// HostPort renders the address and port the way net.Dial/net.Listen expect.
func (e Endpoint) HostPort() string {
	return fmt.Sprintf("%s:%d", e.Addr, e.Port)
}

// String renders the endpoint for log lines, e.g. "tcp://10.0.0.1:4242".
func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s:%d", e.Network, e.Addr, e.Port)
}
