package net

import (
	"bufio"
	"net"
	"reflect"
	"sync"

	"github.com/ugorji/go/codec"
)

const bufSize = 65536

// Conn is a framed connection between the hub and one node. Writes are safe
// for concurrent use; reads are expected from a single loop.
type Conn interface {
	// ReadFrame blocks until the next frame arrives.
	ReadFrame() (*Frame, error)

	// WriteFrame sends a frame.
	WriteFrame(*Frame) error

	// Close tears the connection down. Pending reads and writes fail.
	Close() error

	// RemoteAddr identifies the other end, for logging only.
	RemoteAddr() string
}

// sockConn frames a stream connection with a canonical-JSON codec.
type sockConn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	dec  *codec.Decoder
	enc  *codec.Encoder

	writeLock sync.Mutex
}

// NewSockConn wraps a stream connection.
func NewSockConn(conn net.Conn) Conn {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	// Decode nested objects with string keys, so that args and results
	// round-trip as map[string]interface{}.
	jh.MapType = reflect.TypeOf(map[string]interface{}(nil))

	c := &sockConn{
		conn: conn,
		r:    bufio.NewReaderSize(conn, bufSize),
		w:    bufio.NewWriterSize(conn, bufSize),
	}
	c.dec = codec.NewDecoder(c.r, jh)
	c.enc = codec.NewEncoder(c.w, jh)

	return c
}

func (c *sockConn) ReadFrame() (*Frame, error) {
	frame := new(Frame)
	if err := c.dec.Decode(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *sockConn) WriteFrame(frame *Frame) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if err := c.enc.Encode(frame); err != nil {
		return err
	}

	return c.w.Flush()
}

func (c *sockConn) Close() error {
	return c.conn.Close()
}

func (c *sockConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
