package discover

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/karyon-go/karyon/karyonconfig"
	"github.com/karyon-go/karyon/monitor"
	"github.com/karyon-go/karyon/p2pwire"
	"github.com/karyon-go/karyon/peerid"
	"github.com/karyon-go/karyon/rtable"
	"github.com/stretchr/testify/require"
)

func testConfig() karyonconfig.Config {
	cfg := karyonconfig.New()
	cfg.LookupResponseTimeout = 500 * time.Millisecond
	cfg.LookupConnectionLifespan = 2 * time.Second
	return cfg
}

func newTestService(t *testing.T) (*Service, peerid.PeerID) {
	t.Helper()
	id := peerid.FromBytes([]byte("self-under-test"))
	table := rtable.New(id, 0, nil)
	return New(id, table, testConfig(), monitor.NewBus()), id
}

func TestHandleOutboundInboundPingFindPeerShutdown(t *testing.T) {
	client, _ := newTestService(t)
	server, _ := newTestService(t)

	// Seed the server's table with an entry so FindPeer has something to
	// return.
	known := peerid.FromBytes([]byte("known-peer"))
	server.table.AddEntry(rtable.PeerEntry{PeerID: known, Addr: "10.0.0.5", Port: 4242, DiscoveryPort: 4343})

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	serverDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		serverDone <- server.handleInbound(ctx, p2pwire.NewCodec(b))
	}()

	target, err := peerid.Random()
	require.NoError(t, err)

	peers, err := client.handleOutbound(p2pwire.NewCodec(a), target)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.True(t, peers[0].PeerID.Equal(known))

	require.NoError(t, <-serverDone)
}

func TestHandleOutboundRejectsBadPongViaNonceMismatch(t *testing.T) {
	client, _ := newTestService(t)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		codec := p2pwire.NewCodec(b)
		msg, err := codec.Read()
		if err != nil {
			return
		}
		if msg.Header.Command != p2pwire.CmdPing {
			return
		}
		// Reply with a Pong carrying the wrong nonce.
		codec.Write(p2pwire.CmdPong, &p2pwire.PongMsg{Nonce: [32]byte{0xFF}})
	}()

	target, _ := peerid.Random()
	_, err := client.handleOutbound(p2pwire.NewCodec(a), target)
	require.Error(t, err)
}

func TestHandleInboundRejectsIncompatibleVersion(t *testing.T) {
	server, _ := newTestService(t)
	server.cfg.Version.Req = "^9.0.0"

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	clientDone := make(chan error, 1)
	go func() {
		codec := p2pwire.NewCodec(a)
		clientDone <- codec.Write(p2pwire.CmdPing, &p2pwire.PingMsg{Version: "0.1.0"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := server.handleInbound(ctx, p2pwire.NewCodec(b))
	require.Error(t, err)
	require.NoError(t, <-clientDone)
}

func TestHandleInboundReturnsOnShutdown(t *testing.T) {
	server, _ := newTestService(t)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		codec := p2pwire.NewCodec(a)
		codec.Write(p2pwire.CmdShutdown, &p2pwire.ShutdownMsg{Code: 0})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.handleInbound(ctx, p2pwire.NewCodec(b)))
}
