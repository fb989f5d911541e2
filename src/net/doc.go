// Package net implements the framed transport between the hub and its
// nodes.
//
// The wire unit is a Frame: a routing key paired with a packet, encoded as
// canonical JSON. Frames travel over a stream connection provided by a
// StreamLayer. There are two implementations:
//
// - Unix: a named local socket, the default. The socket file is named after
// the hub, so a node only needs to know the hub's name to find it.
//
// - WebSocket: for environments where a Unix domain socket is not available.
// The endpoint is still expected to be local; the hub performs no
// authentication.
//
// Clients dial with a fixed retry cadence until the hub is up, which makes
// process start order irrelevant.
package net
