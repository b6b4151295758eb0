// Package p2pwire implements the fixed, framed wire protocol exchanged by
// the discovery lookup engine: a one-byte command tag, a four-byte
// payload length, and a command-specific binary payload.
package p2pwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/karyon-go/karyon/karerr"
	"github.com/karyon-go/karyon/peerid"
)

// Command is the one-byte tag identifying a NetMsg's payload type. Tag
// assignments are stable across versions.
type Command uint8

const (
	CmdPing     Command = 0
	CmdPong     Command = 1
	CmdFindPeer Command = 2
	CmdPeers    Command = 3
	CmdPeer     Command = 4
	CmdShutdown Command = 5
)

func (c Command) String() string {
	switch c {
	case CmdPing:
		return "Ping"
	case CmdPong:
		return "Pong"
	case CmdFindPeer:
		return "FindPeer"
	case CmdPeers:
		return "Peers"
	case CmdPeer:
		return "Peer"
	case CmdShutdown:
		return "Shutdown"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// MaxPeersInPeersMsg is the strict upper bound on the number of entries a
// single PeersMsg may carry. A PeersMsg with len(Peers) >= this bound is
// rejected by the receiver.
const MaxPeersInPeersMsg = 10

// HeaderSize is the fixed size, in bytes, of a NetMsg header: a one-byte
// command tag followed by a four-byte little-endian payload length.
const HeaderSize = 1 + 4

// Header is the fixed-size prefix of every frame.
type Header struct {
	Command    Command
	PayloadLen uint32
}

// NetMsg is a complete wire frame: header plus opaque payload bytes.
type NetMsg struct {
	Header  Header
	Payload []byte
}

// Payload is implemented by every command-specific message body.
type Payload interface {
	Encode(w io.Writer) error
	Decode(r io.Reader) error
}

// EncodePayload serializes a Payload to its wire bytes.
func EncodePayload(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return nil, karerr.New(karerr.Encoding, err)
	}
	return buf.Bytes(), nil
}

// DecodePayload deserializes raw bytes into dst, which must be a pointer to
// a command-specific payload type.
func DecodePayload(raw []byte, dst Payload) error {
	if err := dst.Decode(bytes.NewReader(raw)); err != nil {
		return karerr.New(karerr.Decoding, err)
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string too long: %d bytes", len(s))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func writePeerID(w io.Writer, id peerid.PeerID) error {
	_, err := w.Write(id.Bytes())
	return err
}

func readPeerID(r io.Reader) (peerid.PeerID, error) {
	var id peerid.PeerID
	_, err := io.ReadFull(r, id[:])
	return id, err
}

// PingMsg is sent at the start of an outbound discovery exchange.
type PingMsg struct {
	Version string
	Nonce   [32]byte
}

func (m *PingMsg) Encode(w io.Writer) error {
	if err := writeString(w, m.Version); err != nil {
		return err
	}
	_, err := w.Write(m.Nonce[:])
	return err
}

func (m *PingMsg) Decode(r io.Reader) error {
	v, err := readString(r)
	if err != nil {
		return err
	}
	m.Version = v
	_, err = io.ReadFull(r, m.Nonce[:])
	return err
}

// PongMsg echoes the nonce from the Ping that solicited it.
type PongMsg struct {
	Nonce [32]byte
}

func (m *PongMsg) Encode(w io.Writer) error {
	_, err := w.Write(m.Nonce[:])
	return err
}

func (m *PongMsg) Decode(r io.Reader) error {
	_, err := io.ReadFull(r, m.Nonce[:])
	return err
}

// FindPeerMsg requests peers near the carried PeerID.
type FindPeerMsg struct {
	Target peerid.PeerID
}

func (m *FindPeerMsg) Encode(w io.Writer) error { return writePeerID(w, m.Target) }
func (m *FindPeerMsg) Decode(r io.Reader) error {
	id, err := readPeerID(r)
	m.Target = id
	return err
}

// PeerMsg describes a single routable peer.
type PeerMsg struct {
	Addr          string
	Port          uint16
	DiscoveryPort uint16
	PeerID        peerid.PeerID
}

func (m *PeerMsg) Encode(w io.Writer) error {
	if err := writeString(w, m.Addr); err != nil {
		return err
	}
	if err := writeUint16(w, m.Port); err != nil {
		return err
	}
	if err := writeUint16(w, m.DiscoveryPort); err != nil {
		return err
	}
	return writePeerID(w, m.PeerID)
}

func (m *PeerMsg) Decode(r io.Reader) error {
	addr, err := readString(r)
	if err != nil {
		return err
	}
	port, err := readUint16(r)
	if err != nil {
		return err
	}
	discoveryPort, err := readUint16(r)
	if err != nil {
		return err
	}
	id, err := readPeerID(r)
	if err != nil {
		return err
	}
	m.Addr, m.Port, m.DiscoveryPort, m.PeerID = addr, port, discoveryPort, id
	return nil
}

// PeersMsg carries PeerMsg entries in response to a FindPeer request. A
// receiver rejects one carrying MaxPeersInPeersMsg or more entries.
type PeersMsg struct {
	Peers []PeerMsg
}

func (m *PeersMsg) Encode(w io.Writer) error {
	if len(m.Peers) > 0xFFFF {
		return fmt.Errorf("too many peers: %d", len(m.Peers))
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(m.Peers)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	for i := range m.Peers {
		if err := m.Peers[i].Encode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *PeersMsg) Decode(r io.Reader) error {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	peers := make([]PeerMsg, n)
	for i := range peers {
		if err := peers[i].Decode(r); err != nil {
			return err
		}
	}
	m.Peers = peers
	return nil
}

// ShutdownMsg terminates a discovery exchange. Its code is currently
// always 0; the field exists for forward-compatible extension.
type ShutdownMsg struct {
	Code uint8
}

func (m *ShutdownMsg) Encode(w io.Writer) error {
	_, err := w.Write([]byte{m.Code})
	return err
}

func (m *ShutdownMsg) Decode(r io.Reader) error {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.Code = buf[0]
	return nil
}

// NewEmptyPayload returns a zero-valued payload for the given command, or
// an InvalidMsg error if the command is unrecognized.
func NewEmptyPayload(cmd Command) (Payload, error) {
	switch cmd {
	case CmdPing:
		return &PingMsg{}, nil
	case CmdPong:
		return &PongMsg{}, nil
	case CmdFindPeer:
		return &FindPeerMsg{}, nil
	case CmdPeers:
		return &PeersMsg{}, nil
	case CmdPeer:
		return &PeerMsg{}, nil
	case CmdShutdown:
		return &ShutdownMsg{}, nil
	default:
		return nil, karerr.Newf(karerr.InvalidMsg, "unknown command %v", cmd)
	}
}
