// Package peers describes the fixed set of participants of a chorus network.
//
// Every peer is identified by its public key and carries a vote weight. The
// consensus engine only ever talks to the PeerDirectory interface, which
// exposes lookups and the weighted supermajority threshold. PeerSet is the
// in-memory implementation, and JSONPeerSet loads it from a peers.json file in
// the node's data directory.
package peers
