// Package net implements the transports used by chorus nodes to gossip.
//
// A Transport carries two request/response exchanges: SyncRequest, the pull
// half of the protocol, and EagerSyncRequest, the push half. Incoming requests
// are delivered on the Consumer channel as RPC values, and the consumer
// answers through RPC.Respond. There are two implementations:
//
// - Inmem: in-memory transport used for tests and in-process clusters
//
// - TCP: request/response over plain TCP with pooled outgoing connections
//
// TCP
//
// Each request is framed by a byte giving its type, followed by the msgpack
// encoded request. The response is an error string followed by the response
// object. The transport binds to BindAddr and advertises AdvertiseAddr when it
// is set, which is useful when the bound address is not reachable by other
// peers.
//
// Errors
//
// Failures to reach a peer or to move bytes are reported as *TransportError.
// Malformed payloads are reported as *SerializationError, and an error string
// sent back by the peer as *RemoteError. Callers treat all three the same way:
// the exchange is abandoned and another peer is picked on the next tick.
package net
