package rpcclient

import (
	"sync"

	"github.com/karyon-go/karyon/karerr"
	"github.com/karyon-go/karyon/rpcmsg"
)

// dispatcher correlates outbound request ids to a single-shot delivery
// channel for their response. At most one entry is ever pending per id.
type dispatcher struct {
	mu      sync.Mutex
	pending map[uint32]chan rpcmsg.Response
}

func newDispatcher() *dispatcher {
	return &dispatcher{pending: make(map[uint32]chan rpcmsg.Response)}
}

// register inserts a fresh delivery channel for id and returns its receive
// end. It panics if id is already registered: the caller guarantees
// uniqueness, so a collision is a programming error.
func (d *dispatcher) register(id uint32) <-chan rpcmsg.Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[id]; ok {
		panic("rpcclient: duplicate pending request id")
	}
	ch := make(chan rpcmsg.Response, 1)
	d.pending[id] = ch
	return ch
}

// dispatch delivers resp to its registered channel and removes the entry.
func (d *dispatcher) dispatch(resp rpcmsg.Response) error {
	d.mu.Lock()
	ch, ok := d.pending[resp.ID]
	if ok {
		delete(d.pending, resp.ID)
	}
	d.mu.Unlock()

	if !ok {
		return karerr.Newf(karerr.InvalidMsg, "unknown response id")
	}
	ch <- resp
	return nil
}

// unregister removes any pending entry for id, closing its channel so the
// receiver observes it without a value.
func (d *dispatcher) unregister(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.pending[id]; ok {
		delete(d.pending, id)
		close(ch)
	}
}
