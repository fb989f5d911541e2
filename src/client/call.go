package client

import (
	"time"

	"github.com/samnetworks/samcore/src/packet"
)

// nextCode generates a correlation code unique to this client within its
// connection lifetime: a millisecond timestamp, bumped monotonically on
// collision.
func (c *Client) nextCode() int64 {
	c.codeLock.Lock()
	defer c.codeLock.Unlock()

	code := time.Now().UnixMilli()
	if code <= c.lastCode {
		code = c.lastCode + 1
	}
	c.lastCode = code

	return code
}

// Call issues a request and blocks until the reply arrives. It never gives
// up on its own: against a silent receiver it blocks until the client shuts
// down. Use CallTimeout to bound the wait.
func (c *Client) Call(receiver, apiCall string, args map[string]interface{}) (*packet.Packet, error) {
	return c.CallTimeout(receiver, apiCall, args, 0)
}

// CallTimeout issues a request and blocks until the reply arrives or the
// timeout fires, whichever comes first. On timeout the call resolves with a
// synthetic failure packet; the pending entry is torn down and a late reply
// is silently dropped. The receiver is not informed of the cancellation.
func (c *Client) CallTimeout(receiver, apiCall string, args map[string]interface{}, timeout time.Duration) (*packet.Packet, error) {
	code := c.nextCode()

	p := packet.New(c.nodeName, receiver, apiCall, args)
	p.SetReturnCode(code)
	p.BData = p.Args

	replyCh := c.pending.add(code)

	// Built-in calls go straight to the hub; everything else asks the hub
	// to forward.
	key := packet.APIKey(c.hubName, packet.APISend)
	if receiver == c.hubName {
		key = packet.APIKey(c.hubName, apiCall)
	}

	if err := c.emit(key, p); err != nil {
		c.pending.remove(code)
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case reply := <-replyCh:
		return reply, nil

	case <-timeoutCh:
		c.pending.remove(code)

		synthetic := packet.New(c.nodeName, receiver, apiCall, nil)
		synthetic.SetReturnCode(code)
		synthetic.SetError("API Timeout!")
		return synthetic, nil

	case <-c.shutdownCh:
		c.pending.remove(code)
		return nil, ErrShutdown
	}
}

// Notify emits a fire-and-forget packet: no correlation code, no reply.
func (c *Client) Notify(receiver, apiCall string, args map[string]interface{}) error {
	p := packet.New(c.nodeName, receiver, apiCall, args)
	p.BData = p.Args

	key := packet.APIKey(c.hubName, packet.APISend)
	if receiver == c.hubName {
		key = packet.APIKey(c.hubName, apiCall)
	}

	return c.emit(key, p)
}

// SendMessage posts a human-readable line to the hub's log over the debug
// channel.
func (c *Client) SendMessage(msg string) error {
	return c.Notify(c.hubName, packet.APIMessage, map[string]interface{}{
		"message": msg,
	})
}
