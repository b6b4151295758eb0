package netconn

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/karyon-go/karyon/endpoint"
	"github.com/karyon-go/karyon/karerr"
	"github.com/karyon-go/karyon/monitor"
	"github.com/karyon-go/karyon/slots"
)

// Connector dials outbound connections under a shared ConnectionSlots,
// retrying a bounded number of times before giving up.
type Connector struct {
	slots *slots.ConnectionSlots
	sink  monitor.Sink

	retries int
	backoff time.Duration
}

// NewConnector returns a Connector bounded to retries attempts per Connect
// call, backing off by backoff between attempts.
func NewConnector(connSlots *slots.ConnectionSlots, sink monitor.Sink, retries int, backoff time.Duration) *Connector {
	return &Connector{slots: connSlots, sink: sink, retries: retries, backoff: backoff}
}

// Connect acquires an outbound slot and dials ep, making up to c.retries
// attempts in total (at least one). The slot is released automatically if every attempt fails; on
// success the caller owns the slot and must Release it once the
// connection's work is done.
func (c *Connector) Connect(ctx context.Context, ep endpoint.Endpoint, tlsConfig *tls.Config) (net.Conn, error) {
	if err := c.slots.Add(ctx); err != nil {
		return nil, karerr.New(karerr.Io, err)
	}

	attempts := c.retries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				c.slots.Remove()
				return nil, karerr.New(karerr.Io, ctx.Err())
			}
		}

		conn, err := dial(ctx, ep, tlsConfig)
		if err == nil {
			c.sink.Notify(monitor.ConnE(monitor.Connected, ep))
			return conn, nil
		}
		lastErr = err
		log.Debugf("netconn: dial attempt %d/%d to %v failed: %v", attempt+1, attempts, ep, err)
	}

	c.slots.Remove()
	c.sink.Notify(monitor.ConnE(monitor.ConnectFailed, ep))
	return nil, karerr.New(karerr.Io, lastErr)
}

// Release gives back the slot reserved by a successful Connect once the
// connection's work is finished.
func (c *Connector) Release() {
	c.slots.Remove()
}

func dial(ctx context.Context, ep endpoint.Endpoint, tlsConfig *tls.Config) (net.Conn, error) {
	dialer := net.Dialer{}

	switch {
	case ep.IsTls():
		if tlsConfig == nil {
			tlsConfig = &tls.Config{InsecureSkipVerify: true}
		}
		tlsDialer := tls.Dialer{NetDialer: &dialer, Config: tlsConfig}
		return tlsDialer.DialContext(ctx, "tcp", ep.HostPort())
	case ep.IsTcp():
		return dialer.DialContext(ctx, "tcp", ep.HostPort())
	case ep.IsUdp():
		return dialer.DialContext(ctx, "udp", ep.HostPort())
	default:
		return nil, karerr.New(karerr.UnsupportedEndpoint, nil)
	}
}
