package net

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn frames a websocket connection: one frame per websocket message.
type wsConn struct {
	conn *websocket.Conn

	writeLock sync.Mutex
}

// NewWSConn wraps a websocket connection.
func NewWSConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadFrame() (*Frame, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	frame := new(Frame)
	if err := frame.Unmarshal(data); err != nil {
		return nil, err
	}

	return frame, nil
}

func (c *wsConn) WriteFrame(frame *Frame) error {
	data, err := frame.Marshal()
	if err != nil {
		return err
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// WSStreamLayer implements StreamLayer over websockets, for environments
// where a Unix domain socket is not available. The HTTP server upgrades
// every request and hands the connection to Accept.
type WSStreamLayer struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader

	acceptCh   chan Conn
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// NewWSStreamLayer starts a websocket listener on addr.
func NewWSStreamLayer(addr string) (*WSStreamLayer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	layer := &WSStreamLayer{
		listener:   listener,
		acceptCh:   make(chan Conn),
		shutdownCh: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", layer.upgrade)

	layer.server = &http.Server{Handler: mux}

	go layer.server.Serve(listener)

	return layer, nil
}

func (l *WSStreamLayer) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	select {
	case l.acceptCh <- NewWSConn(conn):
	case <-l.shutdownCh:
		conn.Close()
	}
}

// Accept implements the StreamLayer interface.
func (l *WSStreamLayer) Accept() (Conn, error) {
	select {
	case conn := <-l.acceptCh:
		return conn, nil
	case <-l.shutdownCh:
		return nil, ErrLayerClosed
	}
}

// Close implements the StreamLayer interface.
func (l *WSStreamLayer) Close() error {
	l.closeOnce.Do(func() { close(l.shutdownCh) })
	return l.server.Close()
}

// Addr implements the StreamLayer interface.
func (l *WSStreamLayer) Addr() string {
	return l.listener.Addr().String()
}

// WSDialer returns a Dialer for a websocket hub endpoint, eg.
// ws://127.0.0.1:8211/.
func WSDialer(url string) Dialer {
	return func(timeout time.Duration) (Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: timeout}
		conn, _, err := dialer.Dial(url, nil)
		if err != nil {
			return nil, err
		}
		return NewWSConn(conn), nil
	}
}
