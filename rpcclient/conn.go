package rpcclient

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is the minimal transport contract the Client drives: send a framed
// JSON value, receive the next one, and tear down. A websocket connection
// satisfies it directly via wsConn; tests substitute an in-memory fake.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadMessage() ([]byte, error)
	Close() error
}

// wsConn adapts a gorilla/websocket connection to Conn. The RPC wire
// protocol frames one JSON value per websocket text message.
type wsConn struct {
	ws *websocket.Conn
}

// Dial opens a websocket connection to url and wraps it as a Conn.
func Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{ws: ws}, nil
}

func (c *wsConn) WriteJSON(v interface{}) error {
	return c.ws.WriteJSON(v)
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
