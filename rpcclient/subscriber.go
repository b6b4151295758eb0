package rpcclient

import (
	"encoding/json"
	"sync"

	"github.com/karyon-go/karyon/karerr"
	"github.com/karyon-go/karyon/rpcmsg"
)

// subscriptionBuffer bounds how many unconsumed results a single
// subscription stream holds before the oldest is dropped.
const subscriptionBuffer = 32

// subscriber maps subscription ids to bounded delivery streams. Unlike the
// dispatcher's one-shot channels, a subscription stream outlives any single
// value: a slow reader must never stall the receive loop, so a full stream
// drops its oldest buffered result rather than block.
type subscriber struct {
	mu   sync.Mutex
	subs map[rpcmsg.SubscriptionID]chan json.RawMessage
}

func newSubscriber() *subscriber {
	return &subscriber{subs: make(map[rpcmsg.SubscriptionID]chan json.RawMessage)}
}

// subscribe registers sub and returns its receive stream.
func (s *subscriber) subscribe(sub rpcmsg.SubscriptionID) <-chan json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan json.RawMessage, subscriptionBuffer)
	s.subs[sub] = ch
	return ch
}

// notify pushes n's result onto its matching stream, dropping the oldest
// buffered value if the stream is full. The lock is held for the entire
// lookup-and-send so a concurrent unsubscribe/dropAll can never close the
// channel out from under a send in flight here: both the lookup and every
// send/drop attempt happen in the same critical section unsubscribe and
// dropAll use to delete and close.
func (s *subscriber) notify(n rpcmsg.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.subs[n.Subscription()]
	if !ok {
		return karerr.Newf(karerr.InvalidMsg, "unknown subscription id")
	}

	result := n.Result()
	for {
		select {
		case ch <- result:
			return nil
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// unsubscribe removes sub's entry and closes its stream.
func (s *subscriber) unsubscribe(sub rpcmsg.SubscriptionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(ch)
	}
}

// dropAll removes and closes every subscription stream, used on connection
// teardown so no reader blocks forever on a dead connection.
func (s *subscriber) dropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
