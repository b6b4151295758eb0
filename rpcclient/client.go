// Package rpcclient implements a full-duplex JSON-RPC client: request/
// response calls and subscription notifications are demultiplexed off a
// single background receive loop onto per-request and per-subscription
// delivery channels.
package rpcclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/karyon-go/karyon/karerr"
	"github.com/karyon-go/karyon/rpcmsg"
)

// log is the package-wide logger. The embedder wires a concrete backend
// via UseLogger; until then everything is discarded.
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by Client's receive loop.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// Client owns a single connection, its dispatcher, and its subscriber, all
// driven by one background receive loop. Close tears all three down.
type Client struct {
	conn    Conn
	disp    *dispatcher
	sub     *subscriber
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Client around an already-open conn and starts its
// background receive loop. A zero timeout means call/subscribe/unsubscribe
// never time out on their own.
func New(conn Conn, timeout time.Duration) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		disp:    newDispatcher(),
		sub:     newSubscriber(),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

func randomID() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// Call sends method(params), awaits its correlated response, and returns
// the raw result. It fails with Timeout if the client's configured timeout
// elapses first, unregistering the pending entry either way.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	select {
	case <-c.ctx.Done():
		return nil, karerr.New(karerr.ChannelClosed, nil)
	default:
	}

	id, err := randomID()
	if err != nil {
		return nil, karerr.New(karerr.Encoding, err)
	}

	req, err := rpcmsg.NewRequest(id, method, params)
	if err != nil {
		return nil, karerr.New(karerr.Encoding, err)
	}

	rx := c.disp.register(id)

	if err := c.conn.WriteJSON(req); err != nil {
		c.disp.unregister(id)
		return nil, karerr.New(karerr.Io, err)
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	select {
	case resp, ok := <-rx:
		if !ok {
			return nil, karerr.New(karerr.ChannelClosed, nil)
		}
		if resp.ID != id {
			return nil, karerr.Newf(karerr.InvalidMsg, "invalid response id")
		}
		if resp.Error != nil {
			return nil, karerr.NewCallError(resp.Error.Code, resp.Error.Message)
		}
		if resp.Result == nil {
			return nil, karerr.Newf(karerr.InvalidMsg, "response missing result")
		}
		return resp.Result, nil

	case <-waitCtx.Done():
		c.disp.unregister(id)
		if c.timeout > 0 && waitCtx.Err() == context.DeadlineExceeded {
			return nil, karerr.New(karerr.Timeout, waitCtx.Err())
		}
		return nil, karerr.New(karerr.Io, waitCtx.Err())

	case <-c.ctx.Done():
		c.disp.unregister(id)
		return nil, karerr.New(karerr.ChannelClosed, nil)
	}
}

// Subscribe calls method(params), interprets the result as a
// SubscriptionID, and registers it with the subscriber before returning
// its delivery stream. A correct server never pushes a notification for
// the subscription before the call's response arrives; if it races ahead
// anyway the receive loop's notify fails closed and logs.
func (c *Client) Subscribe(ctx context.Context, method string, params interface{}) (rpcmsg.SubscriptionID, <-chan json.RawMessage, error) {
	result, err := c.Call(ctx, method, params)
	if err != nil {
		return 0, nil, err
	}

	var sub rpcmsg.SubscriptionID
	if err := json.Unmarshal(result, &sub); err != nil {
		return 0, nil, karerr.New(karerr.Decoding, err)
	}

	rx := c.sub.subscribe(sub)
	return sub, rx, nil
}

// Unsubscribe calls method(subID), ignoring the result, then removes the
// local subscriber entry regardless of whether the call succeeded.
func (c *Client) Unsubscribe(ctx context.Context, method string, subID rpcmsg.SubscriptionID) error {
	_, err := c.Call(ctx, method, subID)
	c.sub.unsubscribe(subID)
	return err
}

// Close cancels the background receive loop and closes the underlying
// connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
		<-c.done
	})
	return err
}

func (c *Client) receiveLoop() {
	defer close(c.done)
	defer c.sub.dropAll()
	defer c.cancel()

	for {
		raw, err := c.conn.ReadMessage()
		if err != nil {
			log.Debugf("rpcclient: receive loop terminating: %v", err)
			return
		}

		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if rpcmsg.IsResponse(raw) {
			resp, err := rpcmsg.DecodeResponse(raw)
			if err != nil {
				log.Errorf("rpcclient: malformed response: %v", err)
				continue
			}
			if err := c.disp.dispatch(resp); err != nil {
				log.Warnf("rpcclient: %v", err)
			}
			continue
		}

		notif, err := rpcmsg.DecodeNotification(raw)
		if err != nil {
			log.Errorf("rpcclient: malformed notification: %v", err)
			continue
		}
		if err := c.sub.notify(notif); err != nil {
			log.Warnf("rpcclient: %v", err)
		}
	}
}
