// Package hub implements the SamCore router: it accepts node connections,
// registers their names, routes request and reply packets between them, and
// hosts the built-in API.
package hub

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samnetworks/samcore/src/config"
	"github.com/samnetworks/samcore/src/hub/state"
	"github.com/samnetworks/samcore/src/net"
	"github.com/samnetworks/samcore/src/packet"
	"github.com/samnetworks/samcore/src/registry"
	"github.com/samnetworks/samcore/src/settings"
)

// Hub is the central router of a SamCore network. Its lifecycle spans
// Starting to Stopped; nodes may only serve their own APIs once the hub has
// reached Open and flipped the green light.
type Hub struct {
	state.Manager

	conf     *config.Config
	logger   *logrus.Entry
	settings *settings.Store
	registry *registry.Registry
	layer    net.StreamLayer

	builtins map[string]apiHandler

	supervisor *Supervisor
	journal    *Journal

	// onConnect runs once, at the transition to Open, before the green
	// light is flipped.
	onConnect func()

	greenLight int32
	start      time.Time

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewHub creates a hub over an already-bound stream layer and an open
// settings store. The journal may be nil.
func NewHub(
	conf *config.Config,
	store *settings.Store,
	layer net.StreamLayer,
	journal *Journal,
	onConnect func(),
	logger *logrus.Entry,
) *Hub {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	h := &Hub{
		conf:       conf,
		logger:     logger,
		settings:   store,
		registry:   registry.NewRegistry(conf.HubName, logger),
		layer:      layer,
		journal:    journal,
		supervisor: NewSupervisor(conf.DataDir, logger),
		onConnect:  onConnect,
		start:      time.Now(),
		shutdownCh: make(chan struct{}),
	}
	h.builtins = builtinHandlers()

	h.SetState(state.Starting)

	return h
}

// Init seeds the settings document with the hub's own package record. The
// hub is always installed, persistent and mandatory in its own network.
func (h *Hub) Init() error {
	if _, ok := h.settings.Get("packages", h.conf.HubName); ok {
		return nil
	}

	pkg := settings.DefaultPackage()
	pkg["installed"] = true
	pkg["persistent"] = true
	pkg["mandatory"] = true

	return h.settings.Set(pkg, "packages", h.conf.HubName)
}

// Registry exposes the node table, for the status service.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// Settings exposes the settings store, for the status service.
func (h *Hub) Settings() *settings.Store {
	return h.settings
}

// GreenLight reports whether the hub has opened the network.
func (h *Hub) GreenLight() bool {
	return atomic.LoadInt32(&h.greenLight) == 1
}

// Stats returns a summary of the hub for the status service.
func (h *Hub) Stats() map[string]string {
	return map[string]string{
		"state":       h.GetState().String(),
		"green_light": strconv.FormatBool(h.GreenLight()),
		"num_nodes":   strconv.Itoa(h.registry.Len()),
		"uptime":      time.Since(h.start).String(),
	}
}

// Run brings the hub to Open and blocks until Shutdown. The sequence is
// fixed: accept connections, spawn the persistent children, run the
// onConnect hook, then flip the green light.
func (h *Hub) Run() {
	h.SetState(state.Accepting)
	h.logger.WithField("addr", h.layer.Addr()).Info("Accepting connections")

	h.wg.Add(1)
	go h.acceptLoop()

	h.supervisor.SpawnAll(h.settings, h.conf.HubName)

	if h.onConnect != nil {
		h.onConnect()
	}

	atomic.StoreInt32(&h.greenLight, 1)
	h.SetState(state.Open)
	h.logger.Info("Green light on")

	<-h.shutdownCh
}

// RunAsync calls Run in a separate goroutine.
func (h *Hub) RunAsync() {
	go h.Run()
}

// Shutdown winds the hub down: Draining, then Stopped. It is safe to call
// more than once.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.logger.Info("Shutdown")

		h.SetState(state.Draining)
		atomic.StoreInt32(&h.greenLight, 0)

		close(h.shutdownCh)
		h.layer.Close()

		h.supervisor.Stop()

		for _, name := range h.registry.Names() {
			if entry, ok := h.registry.Lookup(name); ok {
				entry.Conn.Close()
			}
			h.registry.Evict(name)
		}

		h.wg.Wait()

		if h.journal != nil {
			h.journal.Close()
		}

		h.SetState(state.Stopped)
	})
}

func (h *Hub) isShutdown() bool {
	select {
	case <-h.shutdownCh:
		return true
	default:
		return false
	}
}

func (h *Hub) acceptLoop() {
	defer h.wg.Done()

	for {
		conn, err := h.layer.Accept()
		if err != nil {
			if h.isShutdown() {
				return
			}
			h.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}

		h.logger.WithField("from", conn.RemoteAddr()).Debug("accepted connection")

		h.wg.Add(1)
		go h.handleConn(conn)
	}
}

// handleConn reads frames off one connection for its lifespan. The
// connection starts anonymous; the first meaningful packet must be the
// nodeInit handshake.
func (h *Hub) handleConn(conn net.Conn) {
	defer h.wg.Done()
	defer conn.Close()

	registered := ""

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if !h.isShutdown() {
				h.logger.WithFields(logrus.Fields{
					"node":  registered,
					"error": err,
				}).Debug("Connection lost")

				// Only evict the name if it still points at this
				// connection; a node that re-registered on a new
				// connection keeps its entry.
				if registered != "" {
					if entry, ok := h.registry.Lookup(registered); ok && entry.Conn == conn {
						h.registry.Evict(registered)
					}
				}
				h.registry.Sweep()
			}
			return
		}

		h.dispatch(conn, &registered, frame)
	}
}

// dispatch selects exactly one branch for an inbound frame, in the fixed
// order: nodeInit, greenLight, built-in API, send, return; anything else is
// logged and dropped.
func (h *Hub) dispatch(conn net.Conn, registered *string, frame *net.Frame) {
	key, err := packet.ParseKey(frame.Key)
	if err != nil {
		h.logger.WithField("key", frame.Key).Warn("Malformed key")
		return
	}

	p := frame.Packet
	if p == nil {
		h.logger.WithField("key", frame.Key).Warn("Frame without packet")
		return
	}

	if key.Return || key.Node != h.conf.HubName {
		h.logger.WithField("key", frame.Key).Warn("Unrecognized key")
		return
	}

	if key.API == packet.APINodeInit {
		h.nodeInit(conn, registered, p)
		return
	}

	// Every other branch requires the handshake first.
	if *registered == "" {
		p.SetError("Node not registered! Call nodeInit first!")
		h.reply(conn, p)
		return
	}

	switch key.API {
	case packet.APIGreenLight:
		p.Result = h.GreenLight()
		h.reply(conn, p)

	case packet.APISend:
		h.route(conn, p)

	case packet.APIReturn:
		h.routeReturn(p)

	default:
		handler, ok := h.builtins[key.API]
		if !ok {
			h.logger.WithField("key", frame.Key).Warn("Unrecognized key")
			return
		}
		handler(h, p)
		h.reply(conn, p)
	}
}

// nodeInit runs the registration handshake: it indexes the connection under
// the declared name and acknowledges.
func (h *Hub) nodeInit(conn net.Conn, registered *string, p *packet.Packet) {
	if !packet.CheckArgs(p, []string{"name"}) {
		h.reply(conn, p)
		return
	}

	name, ok := p.Args["name"].(string)
	if !ok || name == "" {
		p.SetError("name argument not included!")
		h.reply(conn, p)
		return
	}

	h.registry.Register(name, conn)
	*registered = name

	h.logger.WithField("node", name).Info("Node registered")

	p.Result = true
	h.reply(conn, p)
}

// route forwards a request packet to its addressed receiver, untouched
// except for the transport key.
func (h *Hub) route(sender net.Conn, p *packet.Packet) {
	entry, ok := h.registry.Lookup(p.Receiver)
	if !ok {
		p.SetError("Node \"" + p.Receiver + "\" does not exist!")
		h.reply(sender, p)
		return
	}

	frame := &net.Frame{
		Key:    packet.APIKey(p.Receiver, p.APICall),
		Packet: p,
	}

	h.record(frame)

	if err := entry.Conn.WriteFrame(frame); err != nil {
		h.logger.WithFields(logrus.Fields{
			"node":  p.Receiver,
			"error": err,
		}).Debug("Forward failed")
		h.registry.Sweep()

		p.SetError("Node \"" + p.Receiver + "\" does not exist!")
		h.reply(sender, p)
	}
}

// routeReturn delivers a reply back to the caller identified by the
// packet's sender field and correlation code.
func (h *Hub) routeReturn(p *packet.Packet) {
	entry, ok := h.registry.Lookup(p.Sender)
	if !ok {
		h.logger.WithField("node", p.Sender).Warn("Return for unknown sender")
		return
	}

	if p.ReturnCode == nil {
		h.logger.WithField("node", p.Sender).Warn("Return without code")
		return
	}

	frame := &net.Frame{
		Key:    packet.ReturnKey(p.Receiver, p.APICall, p.Sender, *p.ReturnCode),
		Packet: p,
	}

	h.record(frame)

	if err := entry.Conn.WriteFrame(frame); err != nil {
		h.logger.WithFields(logrus.Fields{
			"node":  p.Sender,
			"error": err,
		}).Debug("Return delivery failed")
		h.registry.Sweep()
	}
}

// reply sends the packet back to its sender on the same connection, under
// the reply-shaped key. Packets with no return code are fire-and-forget and
// get no reply.
func (h *Hub) reply(conn net.Conn, p *packet.Packet) {
	if p.ReturnCode == nil {
		return
	}

	frame := &net.Frame{
		Key:    packet.ReturnKey(p.Receiver, p.APICall, p.Sender, *p.ReturnCode),
		Packet: p,
	}

	if err := conn.WriteFrame(frame); err != nil {
		h.logger.WithFields(logrus.Fields{
			"node":  p.Sender,
			"error": err,
		}).Debug("Reply failed")
	}
}

// record appends a routed frame to the journal when one is configured.
func (h *Hub) record(frame *net.Frame) {
	if h.journal == nil {
		return
	}
	if err := h.journal.Append(frame); err != nil {
		h.logger.WithField("error", err).Warn("Journal append failed")
	}
}
