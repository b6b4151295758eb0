package discover_test

import (
	"context"
	"testing"
	"time"

	"github.com/karyon-go/karyon/discover"
	"github.com/karyon-go/karyon/endpoint"
	"github.com/karyon-go/karyon/karyonconfig"
	"github.com/karyon-go/karyon/monitor"
	"github.com/karyon-go/karyon/peerid"
	"github.com/karyon-go/karyon/rtable"
	"github.com/stretchr/testify/require"
)

// TestDiscoveryHappyPath exercises the end-to-end sequence a fresh node
// sees against a bootstrap node that already knows three peers: two
// random-lookup exchanges, concurrent self-lookup exchanges against
// whatever they turned up, and a LookupSucceeded event bounding the
// number of entries inserted by |bootstrap peers|.
func TestDiscoveryHappyPath(t *testing.T) {
	bootstrapID := peerid.FromBytes([]byte("bootstrap"))
	bootstrapTable := rtable.New(bootstrapID, 0, nil)
	for i := 0; i < 3; i++ {
		pid := peerid.FromBytes([]byte{byte('a' + i)})
		bootstrapTable.AddEntry(rtable.PeerEntry{
			PeerID:        pid,
			Addr:          "127.0.0.1",
			Port:          uint16(20000 + i),
			DiscoveryPort: uint16(20000 + i),
		})
	}

	bootstrapCfg := karyonconfig.New()
	bootstrapCfg.LookupResponseTimeout = time.Second
	bootstrapCfg.LookupConnectionLifespan = 3 * time.Second
	loopback := endpoint.NewTcp("127.0.0.1", 0)
	bootstrapCfg.ListenEndpoint = &loopback

	bootstrapSink := monitor.NewBus()
	bootstrap := discover.New(bootstrapID, bootstrapTable, bootstrapCfg, bootstrapSink)

	subID, events := bootstrapSink.Subscribe()
	defer bootstrapSink.Unsubscribe(subID)

	require.NoError(t, bootstrap.Start(nil))
	defer bootstrap.Shutdown()

	var listening endpoint.Endpoint
	select {
	case e := <-events:
		require.NotNil(t, e.Conn)
		require.Equal(t, monitor.Listening, e.Conn.Kind)
		listening = e.Conn.Endpoint
	case <-time.After(time.Second):
		t.Fatal("bootstrap never reported Listening")
	}

	clientID := peerid.FromBytes([]byte("fresh-node"))
	clientTable := rtable.New(clientID, 0, nil)
	clientCfg := karyonconfig.New()
	clientCfg.LookupResponseTimeout = time.Second
	clientCfg.LookupOutboundSlots = 4

	clientSink := monitor.NewBus()
	client := discover.New(clientID, clientTable, clientCfg, clientSink)

	clientSubID, clientEvents := clientSink.Subscribe()
	defer clientSink.Unsubscribe(clientSubID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.StartLookup(ctx, listening)
	require.NoError(t, err)

	var sawSucceeded bool
	for !sawSucceeded {
		select {
		case e := <-clientEvents:
			if e.Discovery != nil && e.Discovery.Kind == monitor.LookupSucceeded {
				sawSucceeded = true
				require.LessOrEqual(t, e.Discovery.Count, 3)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("never observed LookupSucceeded")
		}
	}

	require.LessOrEqual(t, clientTable.Len(), 3)
	require.False(t, clientTable.ContainsKey(clientID))
}
