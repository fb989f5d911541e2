package hub

import (
	"fmt"

	"github.com/samnetworks/samcore/src/packet"
	"github.com/samnetworks/samcore/src/settings"
)

// apiHandler is one built-in API. Handlers communicate by mutating the
// packet: Result on success, or SetError.
type apiHandler func(h *Hub, p *packet.Packet)

func builtinHandlers() map[string]apiHandler {
	return map[string]apiHandler{
		"helloWorld":    helloWorld,
		"doesNodeExist": doesNodeExist,
		"getUsername":   getUsername,
		"setUsername":   setUsername,
		"getSettings":   getSettings,
		"setSettings":   setSettings,
		"message":       message,
	}
}

// helloWorld echoes its text argument. It is the connectivity smoke test.
func helloWorld(h *Hub, p *packet.Packet) {
	if !packet.CheckArgs(p, []string{"text"}) {
		return
	}
	p.Result = fmt.Sprintf("helloWorld! %v", p.Args["text"])
}

func doesNodeExist(h *Hub, p *packet.Packet) {
	if !packet.CheckArgs(p, []string{"name"}) {
		return
	}

	name, _ := p.Args["name"].(string)
	_, ok := h.registry.Lookup(name)
	p.Result = ok
}

func getUsername(h *Hub, p *packet.Packet) {
	username, ok := h.settings.Get("username")
	if !ok {
		p.SetError("username not set!")
		return
	}
	p.Result = username
}

func setUsername(h *Hub, p *packet.Packet) {
	if !packet.CheckArgs(p, []string{"name"}) {
		return
	}

	if err := h.settings.Set(p.Args["name"], "username"); err != nil {
		p.SetError(err.Error())
		return
	}
	p.Result = true
}

// getSettings returns the caller's own settings sub-tree. The declared
// sender is the authorization key: a node can never read another node's
// settings through this API.
func getSettings(h *Hub, p *packet.Packet) {
	if _, ok := h.settings.Get("packages", p.Sender); !ok {
		p.SetError(fmt.Sprintf("Node \"%s\" has no package entry!", p.Sender))
		return
	}

	value, ok := h.settings.Get("packages", p.Sender, "settings")
	if !ok {
		value = map[string]interface{}{}
	}
	p.Result = settings.Clone(value)
}

// setSettings overwrites the caller's own settings sub-tree, and nothing
// else. The write persists before the reply goes out.
func setSettings(h *Hub, p *packet.Packet) {
	if !packet.CheckArgs(p, []string{"settings"}) {
		return
	}

	if _, ok := h.settings.Get("packages", p.Sender); !ok {
		p.SetError(fmt.Sprintf("Node \"%s\" has no package entry!", p.Sender))
		return
	}

	if err := h.settings.Set(p.Args["settings"], "packages", p.Sender, "settings"); err != nil {
		p.SetError(err.Error())
		return
	}
	p.Result = true
}

// message is the debug channel: it logs and produces no result.
func message(h *Hub, p *packet.Packet) {
	h.logger.Infof("Message from %s: %v", p.Sender, p.Args["message"])
}

// RegisterPackage ensures a package record exists for a node, seeding it
// with defaults. Used by surrounding tooling when installing new nodes.
func (h *Hub) RegisterPackage(name string) error {
	if _, ok := h.settings.Get("packages", name); ok {
		return nil
	}
	return h.settings.Set(settings.DefaultPackage(), "packages", name)
}
