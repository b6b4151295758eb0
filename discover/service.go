// Package discover implements the iterative peer-discovery protocol: an
// outbound exchange (Ping/FindPeer/Peer/Shutdown) that a fresh node drives
// against a bootstrap or discovered peer, and an inbound handler that
// serves the same exchange to accepted connections, together populating
// the routing table.
package discover

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	mrand "math/rand"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/google/uuid"

	"github.com/karyon-go/karyon/endpoint"
	"github.com/karyon-go/karyon/karerr"
	"github.com/karyon-go/karyon/karyonconfig"
	"github.com/karyon-go/karyon/monitor"
	"github.com/karyon-go/karyon/netconn"
	"github.com/karyon-go/karyon/p2pwire"
	"github.com/karyon-go/karyon/peerid"
	"github.com/karyon-go/karyon/rtable"
	"github.com/karyon-go/karyon/slots"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Service drives the iterative discovery protocol: it maintains a routing
// table by performing outbound lookup exchanges against known peers and,
// if configured with a listen endpoint, serves the same exchange inbound.
type Service struct {
	id    peerid.PeerID
	table *rtable.Table
	cfg   karyonconfig.Config
	sink  monitor.Sink

	outboundSlots *slots.ConnectionSlots
	listener      *netconn.Listener
	connector     *netconn.Connector

	mu              sync.RWMutex
	listenEndpoint  *endpoint.Endpoint
	resolvedEnd     *endpoint.Endpoint
}

// New constructs a Service for id, sharing table and publishing events to
// sink, configured per cfg.
func New(id peerid.PeerID, table *rtable.Table, cfg karyonconfig.Config, sink monitor.Sink) *Service {
	inboundSlots := slots.New(cfg.LookupInboundSlots)
	outboundSlots := slots.New(cfg.LookupOutboundSlots)

	return &Service{
		id:             id,
		table:          table,
		cfg:            cfg,
		sink:           sink,
		outboundSlots:  outboundSlots,
		listener:       netconn.NewListener(inboundSlots, sink),
		connector:      netconn.NewConnector(outboundSlots, sink, int(cfg.LookupConnectRetries), 200*time.Millisecond),
		listenEndpoint: cfg.ListenEndpoint,
	}
}

// Start binds the configured listen endpoint's address on the configured
// DiscoveryPort (the listen endpoint's own port is not used), if a listen
// endpoint is set, and begins serving inbound discovery exchanges. A
// Service configured without a listen endpoint only ever does outbound
// lookups.
func (s *Service) Start(tlsConfig *tls.Config) error {
	if s.listenEndpoint == nil {
		return nil
	}

	ep := endpoint.NewTcp(s.listenEndpoint.Addr, s.cfg.DiscoveryPort)
	if s.cfg.EnableTLS {
		ep = endpoint.NewTls(s.listenEndpoint.Addr, s.cfg.DiscoveryPort)
	}

	resolved, err := s.listener.Start(ep, tlsConfig, func(conn net.Conn) {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LookupConnectionLifespan)
		defer cancel()
		if err := s.handleInbound(ctx, p2pwire.NewCodec(conn)); err != nil {
			log.Debugf("discover: inbound exchange with %v ended: %v", conn.RemoteAddr(), err)
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.resolvedEnd = &resolved
	s.mu.Unlock()
	return nil
}

// Shutdown stops the accept loop, if running.
func (s *Service) Shutdown() {
	s.listener.Shutdown()
}

// StartLookup performs the iterative discovery protocol against endpoint:
// two random lookups, a concurrent self-lookup against whatever peers they
// turned up, a top-up from any leftover random peers, and insertion of the
// whole batch into the routing table.
func (s *Service) StartLookup(ctx context.Context, ep endpoint.Endpoint) error {
	traceID := uuid.New()
	log.Debugf("discover[%s]: lookup started against %v", traceID, ep)
	s.sink.Notify(monitor.DiscoveryE(monitor.LookupStarted, ep, 0))

	randomPeers, err := s.randomLookup(ctx, ep)
	if err != nil {
		s.sink.Notify(monitor.DiscoveryE(monitor.LookupFailed, ep, 0))
		return err
	}

	peerBuffer := s.selfLookup(ctx, traceID, randomPeers)

	for len(peerBuffer) < p2pwire.MaxPeersInPeersMsg && len(randomPeers) > 0 {
		last := len(randomPeers) - 1
		peerBuffer = append(peerBuffer, randomPeers[last])
		randomPeers = randomPeers[:last]
	}

	inserted := 0
	for _, p := range peerBuffer {
		result := s.table.AddEntry(toPeerEntry(p))
		log.Tracef("discover[%s]: add entry %+v -> %v", traceID, p, result)
		if result.Outcome == rtable.Added {
			inserted++
		}
	}

	s.sink.Notify(monitor.DiscoveryE(monitor.LookupSucceeded, ep, inserted))
	return nil
}

// randomLookup performs two outbound exchanges against endpoint, each
// asking for peers near a freshly generated random PeerID, deduplicating
// the combined results against each other, against self, and against the
// live routing table.
func (s *Service) randomLookup(ctx context.Context, ep endpoint.Endpoint) ([]p2pwire.PeerMsg, error) {
	var randomPeers []p2pwire.PeerMsg

	for i := 0; i < 2; i++ {
		target, err := peerid.Random()
		if err != nil {
			return nil, karerr.New(karerr.Io, err)
		}

		peers, err := s.connect(ctx, target, ep)
		if err != nil {
			return nil, err
		}

		for _, p := range peers {
			if containsPeerMsg(randomPeers, p) {
				continue
			}
			if p.PeerID.Equal(s.id) {
				continue
			}
			if s.table.ContainsKey(p.PeerID) {
				continue
			}
			randomPeers = append(randomPeers, p)
		}
	}

	return randomPeers, nil
}

// selfLookup opens a concurrent outbound exchange (bounded by outbound
// slots, enforced by the Connector) to each of randomPeers in a random
// order, each asking for peers near our own id, and concatenates every
// result.
func (s *Service) selfLookup(ctx context.Context, traceID uuid.UUID, randomPeers []p2pwire.PeerMsg) []p2pwire.PeerMsg {
	order := mrand.Perm(len(randomPeers))

	var (
		mu         sync.Mutex
		peerBuffer []p2pwire.PeerMsg
		wg         sync.WaitGroup
	)

	for _, idx := range order {
		peer := randomPeers[idx]
		wg.Add(1)
		go func(peer p2pwire.PeerMsg) {
			defer wg.Done()
			ep := endpoint.NewTcp(peer.Addr, peer.DiscoveryPort)
			if s.cfg.EnableTLS {
				ep = endpoint.NewTls(peer.Addr, peer.DiscoveryPort)
			}
			peers, err := s.connect(ctx, s.id, ep)
			if err != nil {
				log.Errorf("discover[%s]: self lookup against %v failed: %v", traceID, ep, err)
				return
			}
			mu.Lock()
			peerBuffer = append(peerBuffer, peers...)
			mu.Unlock()
		}(peer)
	}
	wg.Wait()

	return peerBuffer
}

// connect dials endpoint through the Connector, runs the outbound protocol
// asking for peers near targetID, and releases the slot and connection
// regardless of outcome.
func (s *Service) connect(ctx context.Context, targetID peerid.PeerID, ep endpoint.Endpoint) ([]p2pwire.PeerMsg, error) {
	var tlsConfig *tls.Config
	if s.cfg.EnableTLS {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, err := s.connector.Connect(ctx, ep, tlsConfig)
	if err != nil {
		return nil, err
	}
	defer s.connector.Release()

	codec := p2pwire.NewCodec(conn)
	defer codec.Close()

	peers, err := s.handleOutbound(codec, targetID)
	s.sink.Notify(monitor.ConnE(monitor.Disconnected, ep))
	return peers, err
}

// handleOutbound drives the client side of one discovery exchange: Ping,
// FindPeer, an optional self Peer advertisement, then Shutdown.
func (s *Service) handleOutbound(codec *p2pwire.Codec, targetID peerid.PeerID) ([]p2pwire.PeerMsg, error) {
	if err := s.sendPingMsg(codec); err != nil {
		return nil, err
	}

	peers, err := s.sendFindPeerMsg(codec, targetID)
	if err != nil {
		return nil, err
	}
	if len(peers) >= p2pwire.MaxPeersInPeersMsg {
		return nil, karerr.Newf(karerr.Lookup, "received too many peers in PeersMsg")
	}

	s.mu.RLock()
	resolved := s.resolvedEnd
	s.mu.RUnlock()
	if resolved != nil {
		if err := s.sendPeerMsg(codec, *resolved); err != nil {
			return nil, err
		}
	}

	if err := s.sendShutdownMsg(codec); err != nil {
		return nil, err
	}

	return peers, nil
}

// handleInbound drives the server side of one accepted discovery
// connection, looping until Shutdown arrives or ctx's deadline (the
// configured connection lifespan) elapses.
func (s *Service) handleInbound(ctx context.Context, codec *p2pwire.Codec) error {
	for {
		remaining := time.Until(deadlineOf(ctx))
		if remaining <= 0 {
			return karerr.New(karerr.Timeout, ctx.Err())
		}

		msg, err := codec.ReadTimeout(remaining)
		if err != nil {
			return err
		}

		switch msg.Header.Command {
		case p2pwire.CmdShutdown:
			return nil

		case p2pwire.CmdPing:
			var ping p2pwire.PingMsg
			if err := p2pwire.DecodePayload(msg.Payload, &ping); err != nil {
				return err
			}
			if !versionMatch(s.cfg.Version.Req, ping.Version) {
				return karerr.New(karerr.IncompatibleVersion, nil)
			}
			if err := s.sendPongMsg(codec, ping.Nonce); err != nil {
				return err
			}

		case p2pwire.CmdFindPeer:
			var fp p2pwire.FindPeerMsg
			if err := p2pwire.DecodePayload(msg.Payload, &fp); err != nil {
				return err
			}
			if err := s.sendPeersMsg(codec, fp.Target); err != nil {
				return err
			}

		case p2pwire.CmdPeer:
			var peer p2pwire.PeerMsg
			if err := p2pwire.DecodePayload(msg.Payload, &peer); err != nil {
				return err
			}
			result := s.table.AddEntry(toPeerEntry(peer))
			log.Tracef("discover: add entry result: %+v", result)

		default:
			return karerr.Newf(karerr.InvalidMsg, "unexpected command: %v", msg.Header.Command)
		}
	}
}

func (s *Service) sendPingMsg(codec *p2pwire.Codec) error {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return karerr.New(karerr.Io, err)
	}

	ping := &p2pwire.PingMsg{Version: s.cfg.Version.V, Nonce: nonce}
	if err := codec.Write(p2pwire.CmdPing, ping); err != nil {
		return err
	}

	msg, err := codec.ReadTimeout(s.cfg.LookupResponseTimeout)
	if err != nil {
		return err
	}
	if msg.Header.Command != p2pwire.CmdPong {
		return karerr.Newf(karerr.InvalidMsg, "expected Pong, got %v", msg.Header.Command)
	}

	var pong p2pwire.PongMsg
	if err := p2pwire.DecodePayload(msg.Payload, &pong); err != nil {
		return err
	}
	if pong.Nonce != ping.Nonce {
		return karerr.New(karerr.InvalidPongMsg, nil)
	}
	return nil
}

func (s *Service) sendPongMsg(codec *p2pwire.Codec, nonce [32]byte) error {
	return codec.Write(p2pwire.CmdPong, &p2pwire.PongMsg{Nonce: nonce})
}

func (s *Service) sendFindPeerMsg(codec *p2pwire.Codec, target peerid.PeerID) ([]p2pwire.PeerMsg, error) {
	if err := codec.Write(p2pwire.CmdFindPeer, &p2pwire.FindPeerMsg{Target: target}); err != nil {
		return nil, err
	}

	msg, err := codec.ReadTimeout(s.cfg.LookupResponseTimeout)
	if err != nil {
		return nil, err
	}
	if msg.Header.Command != p2pwire.CmdPeers {
		return nil, karerr.Newf(karerr.InvalidMsg, "expected Peers, got %v", msg.Header.Command)
	}

	var peers p2pwire.PeersMsg
	if err := p2pwire.DecodePayload(msg.Payload, &peers); err != nil {
		return nil, err
	}
	return peers.Peers, nil
}

func (s *Service) sendPeersMsg(codec *p2pwire.Codec, target peerid.PeerID) error {
	entries := s.table.ClosestEntries(target, p2pwire.MaxPeersInPeersMsg)
	peers := make([]p2pwire.PeerMsg, len(entries))
	for i, e := range entries {
		peers[i] = p2pwire.PeerMsg{
			Addr:          e.Addr,
			Port:          e.Port,
			DiscoveryPort: e.DiscoveryPort,
			PeerID:        e.PeerID,
		}
	}
	return codec.Write(p2pwire.CmdPeers, &p2pwire.PeersMsg{Peers: peers})
}

func (s *Service) sendPeerMsg(codec *p2pwire.Codec, resolved endpoint.Endpoint) error {
	return codec.Write(p2pwire.CmdPeer, &p2pwire.PeerMsg{
		Addr:          resolved.Addr,
		Port:          resolved.Port,
		DiscoveryPort: s.cfg.DiscoveryPort,
		PeerID:        s.id,
	})
}

func (s *Service) sendShutdownMsg(codec *p2pwire.Codec) error {
	return codec.Write(p2pwire.CmdShutdown, &p2pwire.ShutdownMsg{Code: 0})
}

func toPeerEntry(p p2pwire.PeerMsg) rtable.PeerEntry {
	return rtable.PeerEntry{
		PeerID:        p.PeerID,
		Addr:          p.Addr,
		Port:          p.Port,
		DiscoveryPort: p.DiscoveryPort,
	}
}

func containsPeerMsg(peers []p2pwire.PeerMsg, p p2pwire.PeerMsg) bool {
	for _, existing := range peers {
		if existing.PeerID.Equal(p.PeerID) {
			return true
		}
	}
	return false
}

func deadlineOf(ctx context.Context) time.Time {
	d, ok := ctx.Deadline()
	if !ok {
		return time.Now().Add(time.Hour)
	}
	return d
}
