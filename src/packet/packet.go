// Package packet defines the envelope exchanged between nodes and the hub,
// and the routing-key convention used to address it on the wire.
package packet

import (
	"fmt"
)

// Packet is the single envelope used for every request and reply that
// transits through the hub. Requests carry Args; replies carry Result, or
// Status=false with ErrorMessage set. On a reply, Sender, Receiver, APICall
// and ReturnCode are preserved exactly from the request so that correlation
// holds on the caller's side.
type Packet struct {
	// Sender is the name of the node that originated the request. It is set
	// by the caller's client; the hub never rewrites it.
	Sender string `json:"sender"`

	// Receiver is the name of the node that must handle the request. For
	// built-in APIs this equals the hub's own name.
	Receiver string `json:"receiver"`

	// APICall is the name of the operation being requested on the receiver.
	APICall string `json:"apiCall"`

	// ReturnCode is a caller-unique correlation id. It is nil only for
	// fire-and-forget messages.
	ReturnCode *int64 `json:"returnCode"`

	// Args holds the inputs to the call. Its shape is defined per APICall.
	Args map[string]interface{} `json:"args"`

	// Result is the response payload, filled by the receiver on success.
	Result interface{} `json:"result"`

	// Status is true on success and false on error.
	Status bool `json:"status"`

	// ErrorMessage is a human-readable error string when Status is false.
	// On the wire it is the boolean false when no error is set; this mirrors
	// the historical convention, so it is carried as an untyped value.
	ErrorMessage interface{} `json:"errorMessage"`

	// BData is a debug-only backup of the original Args. It is never
	// interpreted by routing.
	BData interface{} `json:"bdata,omitempty"`
}

// New returns a fresh Packet with defaults applied: Status true, no error,
// and a non-nil Args map.
func New(sender, receiver, apiCall string, args map[string]interface{}) *Packet {
	if args == nil {
		args = map[string]interface{}{}
	}

	return &Packet{
		Sender:       sender,
		Receiver:     receiver,
		APICall:      apiCall,
		Args:         args,
		Status:       true,
		ErrorMessage: false,
	}
}

// SetReturnCode stamps a correlation code on the packet.
func (p *Packet) SetReturnCode(code int64) {
	p.ReturnCode = &code
}

// SetError marks the packet as failed with the given message.
func (p *Packet) SetError(msg string) {
	p.Status = false
	p.ErrorMessage = msg
}

// ErrorText returns the error message carried by the packet, or the empty
// string when no error is set.
func (p *Packet) ErrorText() string {
	if s, ok := p.ErrorMessage.(string); ok {
		return s
	}
	return ""
}

// CheckArgs reports whether every name in the list is present in the
// packet's Args. On the first missing field, it records an error on the
// packet naming that field and returns false.
func CheckArgs(p *Packet, names []string) bool {
	for _, name := range names {
		if _, ok := p.Args[name]; !ok {
			p.SetError(fmt.Sprintf("%s argument not included!", name))
			return false
		}
	}
	return true
}
