package p2pwire

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/karyon-go/karyon/karerr"
)

// Codec is a thin wrapper over a connection carrying typed command+payload
// frames: one message in, one message out, in order.
type Codec struct {
	conn net.Conn
}

// NewCodec wraps conn in a Codec.
func NewCodec(conn net.Conn) *Codec {
	return &Codec{conn: conn}
}

// Write serializes body and pushes one frame: header{cmd, len} + payload.
func (c *Codec) Write(cmd Command, body Payload) error {
	payload, err := EncodePayload(body)
	if err != nil {
		return err
	}

	frame := make([]byte, HeaderSize+len(payload))
	frame[0] = byte(cmd)
	binary.LittleEndian.PutUint32(frame[1:5], uint32(len(payload)))
	copy(frame[HeaderSize:], payload)

	if _, err := c.conn.Write(frame); err != nil {
		return karerr.New(karerr.Io, err)
	}
	return nil
}

// Read returns the next frame on the connection, blocking until one
// arrives.
func (c *Codec) Read() (*NetMsg, error) {
	return c.read()
}

// ReadTimeout is like Read but fails with a Timeout error if no frame
// arrives within d.
func (c *Codec) ReadTimeout(d time.Duration) (*NetMsg, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return nil, karerr.New(karerr.Io, err)
	}
	defer c.conn.SetReadDeadline(time.Time{})

	msg, err := c.read()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, karerr.New(karerr.Timeout, err)
		}
		return nil, err
	}
	return msg, nil
}

func (c *Codec) read() (*NetMsg, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, err
		}
		return nil, karerr.New(karerr.Io, err)
	}

	cmd := Command(header[0])
	payloadLen := binary.LittleEndian.Uint32(header[1:5])

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, err
			}
			return nil, karerr.New(karerr.Io, err)
		}
	}

	return &NetMsg{
		Header:  Header{Command: cmd, PayloadLen: payloadLen},
		Payload: payload,
	}, nil
}

// Close closes the underlying connection.
func (c *Codec) Close() error {
	return c.conn.Close()
}
