package monitor_test

import (
	"testing"
	"time"

	"github.com/karyon-go/karyon/endpoint"
	"github.com/karyon-go/karyon/monitor"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesNotify(t *testing.T) {
	bus := monitor.NewBus()
	id, events := bus.Subscribe()
	defer bus.Unsubscribe(id)

	ep := endpoint.NewTcp("127.0.0.1", 8333)
	bus.Notify(monitor.ConnE(monitor.Connected, ep))

	select {
	case e := <-events:
		require.NotNil(t, e.Conn)
		require.Equal(t, monitor.Connected, e.Conn.Kind)
		require.Equal(t, ep, e.Conn.Endpoint)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNotifyFansOutToAllSubscribers(t *testing.T) {
	bus := monitor.NewBus()
	id1, events1 := bus.Subscribe()
	id2, events2 := bus.Subscribe()
	defer bus.Unsubscribe(id1)
	defer bus.Unsubscribe(id2)

	bus.Notify(monitor.DiscoveryE(monitor.LookupSucceeded, endpoint.Endpoint{}, 5))

	for _, ch := range []<-chan monitor.Event{events1, events2} {
		select {
		case e := <-ch:
			require.NotNil(t, e.Discovery)
			require.Equal(t, 5, e.Discovery.Count)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out event")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := monitor.NewBus()
	id, events := bus.Subscribe()
	bus.Unsubscribe(id)

	bus.Notify(monitor.ConnE(monitor.Disconnected, endpoint.Endpoint{}))

	select {
	case _, ok := <-events:
		require.False(t, ok, "channel should be closed after Unsubscribe")
	case <-time.After(100 * time.Millisecond):
		// Also acceptable: queue stopped without closing the channel and
		// simply never delivers again.
	}
}

func TestUnsubscribeUnknownIDIsNoop(t *testing.T) {
	bus := monitor.NewBus()
	require.NotPanics(t, func() {
		bus.Unsubscribe(999)
	})
}
