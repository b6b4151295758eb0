// Package peerid implements the opaque 32-byte peer identifier used by the
// routing table and the discovery wire protocol.
package peerid

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/blake2s"
)

// Size is the fixed length, in bytes, of a PeerID.
const Size = 32

// PeerID is an opaque identifier with an XOR-distance metric, used to key
// the routing table and address FindPeer requests.
type PeerID [Size]byte

// Random returns a PeerID drawn from a cryptographically secure source.
func Random() (PeerID, error) {
	var id PeerID
	if _, err := rand.Read(id[:]); err != nil {
		return PeerID{}, err
	}
	return id, nil
}

// FromBytes derives a stable PeerID from an arbitrary byte string, such as
// a persisted identity key. Equal inputs always yield equal PeerIDs.
func FromBytes(seed []byte) PeerID {
	return PeerID(blake2s.Sum256(seed))
}

// Equal reports whether two PeerIDs are byte-for-byte identical.
func (p PeerID) Equal(other PeerID) bool {
	return p == other
}

// IsZero reports whether p is the zero-value PeerID.
func (p PeerID) IsZero() bool {
	return p == PeerID{}
}

// Distance returns the XOR distance between p and other, itself a 32-byte
// value comparable byte-by-byte in big-endian order (smaller is closer).
func (p PeerID) Distance(other PeerID) PeerID {
	var d PeerID
	for i := 0; i < Size; i++ {
		d[i] = p[i] ^ other[i]
	}
	return d
}

// Less reports whether a is ordered before b when compared as an unsigned
// big-endian integer. Used to order entries by ascending XOR distance.
func Less(a, b PeerID) bool {
	for i := 0; i < Size; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// String returns a hex encoding of the identifier, truncated for readable
// log lines (matches the teacher's habit of truncating pubkeys in logs).
func (p PeerID) String() string {
	full := hex.EncodeToString(p[:])
	if len(full) <= 16 {
		return full
	}
	return full[:16]
}

// Bytes returns the identifier's underlying bytes as a slice.
func (p PeerID) Bytes() []byte {
	return p[:]
}
