// Package registry holds the hub's table of connected nodes.
package registry

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/samnetworks/samcore/src/net"
	"github.com/samnetworks/samcore/src/packet"
)

// Entry records one registered node connection.
type Entry struct {
	Name        string
	Conn        net.Conn
	ConnectedAt time.Time
}

// Registry maps node names to their connections. There is exactly one entry
// per name: registering a name again replaces the prior handle, which covers
// nodes that reconnect before their old socket is swept.
type Registry struct {
	l       sync.Mutex
	hubName string
	entries map[string]*Entry
	logger  *logrus.Entry
}

// NewRegistry creates an empty registry for a hub.
func NewRegistry(hubName string, logger *logrus.Entry) *Registry {
	return &Registry{
		hubName: hubName,
		entries: make(map[string]*Entry),
		logger:  logger,
	}
}

// Register indexes a connection under a node name, replacing any prior
// entry for that name.
func (r *Registry) Register(name string, conn net.Conn) *Entry {
	r.l.Lock()
	defer r.l.Unlock()

	if prior, ok := r.entries[name]; ok && prior.Conn != conn {
		r.logger.WithField("node", name).Debug("Replacing registered connection")
	}

	entry := &Entry{
		Name:        name,
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
	r.entries[name] = entry

	return entry
}

// Lookup returns the entry for a node name.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	r.l.Lock()
	defer r.l.Unlock()

	entry, ok := r.entries[name]
	return entry, ok
}

// Evict removes the entry for a node name, if present.
func (r *Registry) Evict(name string) {
	r.l.Lock()
	defer r.l.Unlock()

	delete(r.entries, name)
}

// Entries returns a snapshot of the registered entries.
func (r *Registry) Entries() []*Entry {
	r.l.Lock()
	defer r.l.Unlock()

	entries := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	return entries
}

// Names returns the registered node names.
func (r *Registry) Names() []string {
	r.l.Lock()
	defer r.l.Unlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.l.Lock()
	defer r.l.Unlock()

	return len(r.entries)
}

// Sweep probes every registered connection with a harmless wellnessCheck
// frame and evicts the ones whose write fails. It returns the names of the
// evicted nodes.
func (r *Registry) Sweep() []string {
	r.l.Lock()
	defer r.l.Unlock()

	evicted := []string{}
	for name, entry := range r.entries {
		frame := &net.Frame{
			Key:    packet.APIKey(name, packet.APIWellnessCheck),
			Packet: packet.New(r.hubName, name, packet.APIWellnessCheck, nil),
		}

		if err := entry.Conn.WriteFrame(frame); err != nil {
			r.logger.WithFields(logrus.Fields{
				"node":  name,
				"error": err,
			}).Debug("Wellness check failed, evicting")
			delete(r.entries, name)
			evicted = append(evicted, name)
		}
	}

	return evicted
}
