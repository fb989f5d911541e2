// Package client is the messaging library that every SamCore node embeds.
// It connects to the hub, registers the node's name, waits for the green
// light, and then dispatches inbound requests to user-registered handlers
// while providing the request/response call primitive.
package client

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samnetworks/samcore/src/net"
	"github.com/samnetworks/samcore/src/packet"
)

// GreenLightInterval is the cadence of the readiness poll during startup.
const GreenLightInterval = time.Second

// ErrShutdown is returned by calls interrupted by a client shutdown.
var ErrShutdown = errors.New("client shutdown")

// HandlerFunc processes one inbound packet. Handlers communicate results by
// mutating the packet and invoking Return or ReturnError on the client.
type HandlerFunc func(p *packet.Packet)

// Client is one node's end of the hub connection.
type Client struct {
	nodeName string
	hubName  string

	// Silent suppresses logging of inbound debug messages.
	Silent bool

	// OnInit runs after the green light, before handlers are bound. This is
	// where a node typically fetches its settings.
	OnInit func(*Client) error

	// OnConnect is the node's main: it runs once the node fully
	// participates in the network.
	OnConnect func(*Client) error

	dialer  net.Dialer
	timeout time.Duration
	conn    net.Conn

	logger *logrus.Entry

	handlersLock sync.Mutex
	staged       map[string]HandlerFunc
	active       map[string]HandlerFunc
	workers      map[string]chan *packet.Packet
	running      bool

	pending *pendingTable

	codeLock sync.Mutex
	lastCode int64

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewClient creates a client for a node. The dialer locates the hub; use
// net.UnixDialer(net.SocketPath(dir, hubName)) for the default transport.
func NewClient(nodeName, hubName string, dialer net.Dialer, logger *logrus.Entry) *Client {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Client{
		nodeName:   nodeName,
		hubName:    hubName,
		dialer:     dialer,
		timeout:    time.Second,
		logger:     logger.WithField("node", nodeName),
		staged:     make(map[string]HandlerFunc),
		active:     make(map[string]HandlerFunc),
		workers:    make(map[string]chan *packet.Packet),
		pending:    newPendingTable(),
		shutdownCh: make(chan struct{}),
	}
}

// Name returns the node name.
func (c *Client) Name() string {
	return c.nodeName
}

// HubName returns the hub name.
func (c *Client) HubName() string {
	return c.hubName
}

// AddAPICall registers a handler for one of this node's own APIs. Handlers
// registered before Run are bound only after the green light; the node
// never serves domain packets before the hub permits it.
func (c *Client) AddAPICall(name string, handler HandlerFunc) {
	c.AddHook(packet.APIKey(c.nodeName, name), handler)
}

// AddHook registers a handler on an arbitrary key, eg. for observing
// another node's traffic.
func (c *Client) AddHook(key string, handler HandlerFunc) {
	c.handlersLock.Lock()
	defer c.handlersLock.Unlock()

	c.staged[key] = handler
	if c.running {
		c.active[key] = handler
	}
}

// Run performs the startup sequence in strict order: connect (with retry),
// register the node name, install the always-on listeners, wait for the
// green light, run OnInit, bind the user handlers, run OnConnect. It
// returns once the node is fully operational; the connection keeps being
// served in the background until Shutdown.
func (c *Client) Run() error {
	conn, err := net.DialRetry(c.dialer, c.timeout, c.shutdownCh, c.logger)
	if err != nil {
		return err
	}
	c.conn = conn

	c.wg.Add(1)
	go c.readLoop()

	// Registration guarantees the hub has indexed this connection before
	// anything else happens.
	reply, err := c.Call(c.hubName, packet.APINodeInit, map[string]interface{}{
		"name": c.nodeName,
	})
	if err != nil {
		return err
	}
	if !reply.Status {
		return errors.New(reply.ErrorText())
	}

	c.bind(packet.MessageKey(c.nodeName), c.handleMessage)

	if err := c.awaitGreenLight(); err != nil {
		return err
	}

	if c.OnInit != nil {
		if err := c.OnInit(c); err != nil {
			return err
		}
	}

	c.bindStaged()

	if c.OnConnect != nil {
		if err := c.OnConnect(c); err != nil {
			return err
		}
	}

	c.logger.Debug("Node operational")

	return nil
}

// Wait blocks until the client shuts down.
func (c *Client) Wait() {
	<-c.shutdownCh
}

// Shutdown closes the connection and releases every pending call. Safe to
// call more than once; a transport error triggers it internally.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.logger.Debug("Shutdown")
		close(c.shutdownCh)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// awaitGreenLight polls the readiness gate until the hub opens the network.
func (c *Client) awaitGreenLight() error {
	for {
		reply, err := c.Call(c.hubName, packet.APIGreenLight, nil)
		if err != nil {
			return err
		}

		if ok, _ := reply.Result.(bool); ok {
			return nil
		}

		select {
		case <-time.After(GreenLightInterval):
		case <-c.shutdownCh:
			return ErrShutdown
		}
	}
}

// bind makes a handler live immediately.
func (c *Client) bind(key string, handler HandlerFunc) {
	c.handlersLock.Lock()
	defer c.handlersLock.Unlock()

	c.active[key] = handler
}

// bindStaged makes every user-registered handler live. From here on the
// node serves its own APIs.
func (c *Client) bindStaged() {
	c.handlersLock.Lock()
	defer c.handlersLock.Unlock()

	for key, handler := range c.staged {
		c.active[key] = handler
	}
	c.running = true
}

// readLoop serves the connection: replies resolve pending calls, requests
// are dispatched to handlers. A transport error triggers local shutdown.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		frame, err := c.conn.ReadFrame()
		if err != nil {
			select {
			case <-c.shutdownCh:
			default:
				c.logger.WithField("error", err).Debug("Connection lost")
			}
			c.Shutdown()
			return
		}

		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame *net.Frame) {
	key, err := packet.ParseKey(frame.Key)
	if err != nil {
		c.logger.WithField("key", frame.Key).Debug("Malformed key")
		return
	}

	p := frame.Packet
	if p == nil {
		return
	}

	// Replies resolve the pending call for their code. Replies for codes
	// that are no longer pending (cancelled by timeout) are dropped.
	if key.Return {
		if !c.pending.resolve(key.Code, p) {
			c.logger.WithField("key", frame.Key).Debug("Dropping late reply")
		}
		return
	}

	if key.API == packet.APIWellnessCheck {
		return
	}

	c.handlersLock.Lock()
	_, ok := c.active[frame.Key]
	var worker chan *packet.Packet
	if ok {
		worker = c.worker(frame.Key)
	}
	c.handlersLock.Unlock()

	if !ok {
		c.logger.WithField("key", frame.Key).Debug("No handler for key")
		return
	}

	worker <- p
}

// worker returns the serial queue for a key, creating it on first use.
// Packets for one key are processed one at a time, in arrival order, while
// handlers remain free to issue their own calls. The handlers lock must be
// held.
func (c *Client) worker(key string) chan *packet.Packet {
	if ch, ok := c.workers[key]; ok {
		return ch
	}

	ch := make(chan *packet.Packet, 64)
	c.workers[key] = ch

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case p := <-ch:
				c.handlersLock.Lock()
				handler := c.active[key]
				c.handlersLock.Unlock()

				if handler != nil {
					handler(p)
				}
			case <-c.shutdownCh:
				return
			}
		}
	}()

	return ch
}

// handleMessage is the always-on listener for the node's debug channel.
func (c *Client) handleMessage(p *packet.Packet) {
	if c.Silent {
		return
	}
	c.logger.Infof("Message from %s: %v", p.Sender, p.Args["message"])
}

// Return emits a handler's reply. The packet must carry the request's
// sender, receiver, apiCall and returnCode untouched.
func (c *Client) Return(p *packet.Packet) {
	if p.ErrorMessage == nil {
		p.ErrorMessage = false
	}

	c.emit(packet.APIKey(c.hubName, packet.APIReturn), p)
}

// ReturnError emits a handler's reply as a failure. When msg is empty, any
// error already recorded on the packet is preserved.
func (c *Client) ReturnError(p *packet.Packet, msg string) {
	p.Status = false
	if msg != "" {
		p.ErrorMessage = msg
	} else if p.ErrorText() == "" {
		p.ErrorMessage = "unknown error"
	}

	c.emit(packet.APIKey(c.hubName, packet.APIReturn), p)
}

func (c *Client) emit(key string, p *packet.Packet) error {
	return c.conn.WriteFrame(&net.Frame{
		Key:    key,
		Packet: p,
	})
}
