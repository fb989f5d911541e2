package client

import (
	"sync"

	"github.com/samnetworks/samcore/src/packet"
)

// pendingTable maps correlation codes to the one-shot continuations of
// in-flight calls. An entry is created when a call is issued and consumed
// exactly once: by the reply, by the timeout, or by shutdown. Replies for
// codes that are no longer pending are dropped.
type pendingTable struct {
	l     sync.Mutex
	calls map[int64]chan *packet.Packet
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		calls: make(map[int64]chan *packet.Packet),
	}
}

// add registers a pending call and returns the channel its reply will
// arrive on.
func (t *pendingTable) add(code int64) chan *packet.Packet {
	t.l.Lock()
	defer t.l.Unlock()

	ch := make(chan *packet.Packet, 1)
	t.calls[code] = ch
	return ch
}

// remove tears down a pending call, eg. when its timeout fires. Late
// replies for the code will be dropped.
func (t *pendingTable) remove(code int64) {
	t.l.Lock()
	defer t.l.Unlock()

	delete(t.calls, code)
}

// resolve fires the continuation for a code. It reports whether a call was
// still pending.
func (t *pendingTable) resolve(code int64, p *packet.Packet) bool {
	t.l.Lock()
	defer t.l.Unlock()

	ch, ok := t.calls[code]
	if !ok {
		return false
	}

	delete(t.calls, code)
	ch <- p
	return true
}
