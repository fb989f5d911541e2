package net

import (
	"bytes"

	"github.com/ugorji/go/codec"

	"github.com/samnetworks/samcore/src/packet"
)

// Frame is the unit carried by the transport: a routing key and the packet
// it addresses.
type Frame struct {
	Key    string         `json:"key"`
	Packet *packet.Packet `json:"packet"`
}

// Marshal - json encoding of Frame
func (f *Frame) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(f); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (f *Frame) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(f); err != nil {
		return err
	}

	return nil
}
