package netconn_test

import (
	"net"
	"testing"
	"time"

	"github.com/karyon-go/karyon/endpoint"
	"github.com/karyon-go/karyon/monitor"
	"github.com/karyon-go/karyon/netconn"
	"github.com/karyon-go/karyon/slots"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events chan monitor.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: make(chan monitor.Event, 64)}
}

func (s *recordingSink) Notify(e monitor.Event) {
	s.events <- e
}

func (s *recordingSink) waitFor(t *testing.T, kind monitor.ConnKind) monitor.ConnEvent {
	t.Helper()
	for {
		select {
		case e := <-s.events:
			if e.Conn != nil && e.Conn.Kind == kind {
				return *e.Conn
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

func TestListenerAcceptsAndInvokesCallback(t *testing.T) {
	sink := newRecordingSink()
	l := netconn.NewListener(slots.New(4), sink)

	handled := make(chan struct{}, 1)
	resolved, err := l.Start(endpoint.NewTcp("127.0.0.1", 0), nil, func(conn net.Conn) {
		buf := make([]byte, 4)
		conn.Read(buf)
		handled <- struct{}{}
	})
	require.NoError(t, err)
	defer l.Shutdown()

	sink.waitFor(t, monitor.Listening)

	conn, err := net.Dial("tcp", resolved.HostPort())
	require.NoError(t, err)
	defer conn.Close()
	conn.Write([]byte("ping"))

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never invoked")
	}

	sink.waitFor(t, monitor.Accepted)
}

func TestListenerRejectsUnsupportedEndpoint(t *testing.T) {
	sink := newRecordingSink()
	l := netconn.NewListener(slots.New(4), sink)

	_, err := l.Start(endpoint.NewUdp("127.0.0.1", 0), nil, func(net.Conn) {})
	require.Error(t, err)
	sink.waitFor(t, monitor.ListenFailed)
}

func TestListenerSlotReleasedAfterCallback(t *testing.T) {
	sink := newRecordingSink()
	s := slots.New(1)
	l := netconn.NewListener(s, sink)

	done := make(chan struct{})
	resolved, err := l.Start(endpoint.NewTcp("127.0.0.1", 0), nil, func(conn net.Conn) {
		close(done)
	})
	require.NoError(t, err)
	defer l.Shutdown()

	conn, err := net.Dial("tcp", resolved.HostPort())
	require.NoError(t, err)
	defer conn.Close()

	<-done
	require.Eventually(t, func() bool {
		return s.Taken() == 0
	}, time.Second, 10*time.Millisecond)
}
