// Package rtable implements the in-memory routing table keyed by PeerID,
// supporting distance-ordered queries used to answer FindPeer requests.
package rtable

import (
	"sort"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/karyon-go/karyon/peerid"
)

// PeerEntry is a single routable peer known to the local node.
type PeerEntry struct {
	PeerID        peerid.PeerID
	Addr          string
	Port          uint16
	DiscoveryPort uint16
	LastSeen      time.Time
}

// AddOutcome classifies the result of AddEntry.
type AddOutcome int

const (
	// Added means the entry was inserted as new.
	Added AddOutcome = iota
	// Updated means an existing entry for the same peer id was refreshed.
	Updated
	// Rejected means the entry was not inserted; Reason explains why.
	Rejected
)

// AddResult is the outcome of an AddEntry call.
type AddResult struct {
	Outcome AddOutcome
	Reason  string
}

func added() AddResult   { return AddResult{Outcome: Added} }
func updated() AddResult { return AddResult{Outcome: Updated} }
func rejected(reason string) AddResult {
	return AddResult{Outcome: Rejected, Reason: reason}
}

// Table is the in-memory routing table. Self's peer id is never inserted.
// Concurrent access is serialized by an internal mutex; callers must not
// hold a reference across network I/O (see ClosestEntries).
type Table struct {
	mu       sync.Mutex
	self     peerid.PeerID
	capacity int
	entries  map[peerid.PeerID]PeerEntry
	clock    clock.Clock
}

// New returns an empty Table for self, bounded to capacity entries. A
// capacity of 0 means unbounded.
func New(self peerid.PeerID, capacity int, clk clock.Clock) *Table {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	return &Table{
		self:     self,
		capacity: capacity,
		entries:  make(map[peerid.PeerID]PeerEntry),
		clock:    clk,
	}
}

// AddEntry inserts or refreshes a peer entry. The entry's LastSeen is
// stamped with the table's clock regardless of the value the caller
// supplied.
func (t *Table) AddEntry(e PeerEntry) AddResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.PeerID.Equal(t.self) {
		return rejected("entry is self")
	}

	e.LastSeen = t.clock.Now()

	if _, ok := t.entries[e.PeerID]; ok {
		t.entries[e.PeerID] = e
		return updated()
	}

	if t.capacity > 0 && len(t.entries) >= t.capacity {
		evictID, evictDist, found := t.farthestFromSelfLocked()
		if !found {
			return rejected("table at capacity")
		}
		newDist := e.PeerID.Distance(t.self)
		if !peerid.Less(newDist, evictDist) {
			return rejected("table at capacity and entry is not closer than any evictable entry")
		}
		delete(t.entries, evictID)
	}

	t.entries[e.PeerID] = e
	return added()
}

func (t *Table) farthestFromSelfLocked() (peerid.PeerID, peerid.PeerID, bool) {
	var (
		farID   peerid.PeerID
		farDist peerid.PeerID
		found   bool
	)
	for id := range t.entries {
		d := id.Distance(t.self)
		if !found || peerid.Less(farDist, d) {
			farID, farDist, found = id, d, true
		}
	}
	return farID, farDist, found
}

// ContainsKey reports whether id is present in the table.
func (t *Table) ContainsKey(id peerid.PeerID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

// Remove deletes id from the table, if present.
func (t *Table) Remove(id peerid.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Len returns the current number of entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ClosestEntries returns up to n entries ordered by ascending XOR distance
// to target. The table's lock is held only for the duration of the copy;
// callers must never hold the returned slice's backing lock across network
// I/O (there is none — the slice is a private copy).
func (t *Table) ClosestEntries(target peerid.PeerID, n int) []PeerEntry {
	t.mu.Lock()
	all := make([]PeerEntry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	t.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return peerid.Less(all[i].PeerID.Distance(target), all[j].PeerID.Distance(target))
	})

	if n < len(all) {
		all = all[:n]
	}
	return all
}
