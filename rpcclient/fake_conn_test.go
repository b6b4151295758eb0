package rpcclient

import "encoding/json"

// fakeConn is an in-memory Conn for exercising Client without a real
// socket. Writes are captured on a channel; reads are served from another.
type fakeConn struct {
	written chan []byte
	toRead  chan []byte
	closed  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		written: make(chan []byte, 16),
		toRead:  make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.written <- raw
	return nil
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case raw, ok := <-f.toRead:
		if !ok {
			return nil, errConnClosed
		}
		return raw, nil
	case <-f.closed:
		return nil, errConnClosed
	}
}

func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakeConn) push(raw []byte) {
	f.toRead <- raw
}

var errConnClosed = fakeClosedErr{}

type fakeClosedErr struct{}

func (fakeClosedErr) Error() string { return "fake conn closed" }
