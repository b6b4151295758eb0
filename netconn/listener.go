// Package netconn implements the Listener and Connector that produce the
// raw connections the Lookup Service and RPC client drive protocol state
// on, sharing a ConnectionSlots with the other side of their direction.
package netconn

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btclog"

	"github.com/karyon-go/karyon/endpoint"
	"github.com/karyon-go/karyon/karerr"
	"github.com/karyon-go/karyon/monitor"
	"github.com/karyon-go/karyon/slots"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Callback is invoked once per accepted connection. The Listener waits for
// it to return before decrementing the connection's slot and emitting
// Disconnected.
type Callback func(conn net.Conn)

// Listener runs an accept loop on one bound endpoint, handing each
// connection to a callback while a ConnectionSlots caps concurrency.
type Listener struct {
	slots *slots.ConnectionSlots
	sink  monitor.Sink

	ln net.Listener
	wg sync.WaitGroup

	shutdown int32 // atomic
	cancel   context.CancelFunc
}

// NewListener returns a Listener backed by the given slots and event sink.
func NewListener(connSlots *slots.ConnectionSlots, sink monitor.Sink) *Listener {
	return &Listener{slots: connSlots, sink: sink}
}

// Start binds ep and spawns the accept loop. On success it returns the
// resolved endpoint (the one actually bound, e.g. after OS port
// assignment). tlsConfig is used when ep.IsTls(); if it is nil, an
// ephemeral self-signed certificate is generated. An endpoint that is
// neither TCP nor TLS fails with UnsupportedEndpoint.
func (l *Listener) Start(ep endpoint.Endpoint, tlsConfig *tls.Config, cb Callback) (endpoint.Endpoint, error) {
	if !ep.IsTcp() && !ep.IsTls() {
		err := karerr.New(karerr.UnsupportedEndpoint, nil)
		l.sink.Notify(monitor.ConnE(monitor.ListenFailed, ep))
		return endpoint.Endpoint{}, err
	}

	var ln net.Listener
	var err error
	if ep.IsTls() {
		if tlsConfig == nil {
			tlsConfig, err = selfSignedTLSConfig()
			if err != nil {
				l.sink.Notify(monitor.ConnE(monitor.ListenFailed, ep))
				return endpoint.Endpoint{}, karerr.New(karerr.Io, err)
			}
		}
		ln, err = tls.Listen("tcp", ep.HostPort(), tlsConfig)
	} else {
		ln, err = net.Listen("tcp", ep.HostPort())
	}
	if err != nil {
		l.sink.Notify(monitor.ConnE(monitor.ListenFailed, ep))
		return endpoint.Endpoint{}, karerr.New(karerr.Io, err)
	}

	l.ln = ln

	resolved := ep
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		resolved.Port = uint16(tcpAddr.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	l.sink.Notify(monitor.ConnE(monitor.Listening, resolved))

	l.wg.Add(1)
	go l.acceptLoop(ctx, resolved, cb)

	return resolved, nil
}

func (l *Listener) acceptLoop(ctx context.Context, ep endpoint.Endpoint, cb Callback) {
	defer l.wg.Done()

	for atomic.LoadInt32(&l.shutdown) == 0 {
		if err := l.slots.WaitForSlot(ctx); err != nil {
			return
		}

		conn, err := l.ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&l.shutdown) != 0 {
				return
			}
			log.Errorf("netconn: accept failed on %v: %v", ep, err)
			l.sink.Notify(monitor.ConnE(monitor.AcceptFailed, ep))
			continue
		}

		peerEp := remoteEndpoint(conn, ep)
		l.sink.Notify(monitor.ConnE(monitor.Accepted, peerEp))

		if err := l.slots.Add(ctx); err != nil {
			conn.Close()
			continue
		}

		l.wg.Add(1)
		go func(c net.Conn, pe endpoint.Endpoint) {
			defer l.wg.Done()
			defer l.slots.Remove()
			defer l.sink.Notify(monitor.ConnE(monitor.Disconnected, pe))
			stop := context.AfterFunc(ctx, func() { c.Close() })
			defer stop()
			cb(c)
		}(conn, peerEp)
	}
}

// Shutdown stops the accept loop, closes every accepted connection whose
// callback is still running, and waits for those callbacks to return; a
// callback observes the closed connection at its next read or write.
func (l *Listener) Shutdown() {
	if !atomic.CompareAndSwapInt32(&l.shutdown, 0, 1) {
		return
	}
	if l.cancel != nil {
		l.cancel()
	}
	if l.ln != nil {
		l.ln.Close()
	}
	l.wg.Wait()
}

func remoteEndpoint(conn net.Conn, fallback endpoint.Endpoint) endpoint.Endpoint {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return fallback
	}
	return endpoint.NewTcp(addr.IP.String(), uint16(addr.Port))
}
