// Package slots implements the counting permit that caps concurrent
// inbound/outbound connection establishment for the Listener and Connector.
package slots

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ConnectionSlots is a counting semaphore with capacity C and current usage
// T, maintaining the invariant 0 <= T <= C.
type ConnectionSlots struct {
	sem      *semaphore.Weighted
	capacity int64
	taken    int64 // atomic
}

// New returns a ConnectionSlots with the given capacity.
func New(capacity uint32) *ConnectionSlots {
	return &ConnectionSlots{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// WaitForSlot suspends the caller until capacity is available, without
// itself reserving a slot. Callers that intend to occupy the slot must
// follow up with Add once their (possibly slow) connection attempt
// succeeds.
func (s *ConnectionSlots) WaitForSlot(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.sem.Release(1)
	return nil
}

// Add reserves a slot, blocking if none is immediately free.
func (s *ConnectionSlots) Add(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	atomic.AddInt64(&s.taken, 1)
	return nil
}

// Remove releases a previously reserved slot, waking exactly one waiter.
func (s *ConnectionSlots) Remove() {
	atomic.AddInt64(&s.taken, -1)
	s.sem.Release(1)
}

// Taken returns the current number of reserved slots. Exposed for tests
// and for the metrics package's gauge.
func (s *ConnectionSlots) Taken() int64 {
	return atomic.LoadInt64(&s.taken)
}

// Capacity returns C, the configured slot capacity.
func (s *ConnectionSlots) Capacity() int64 {
	return s.capacity
}
