// Package hashgraph implements the virtual voting consensus algorithm.
//
// It follows the Hashgraph algorithm described by Leemon Baird:
//
// http://www.swirlds.com/downloads/SWIRLDS-TR-2016-01.pdf
//
// Events
//
// An Event is a signed vertex of the DAG. It references its creator's previous
// Event (self-parent) and an Event received from another peer (other-parent).
// Events are content-addressed: their hash is the SHA256 of the canonical
// encoding of their body.
//
// Consensus
//
// Rounds and witnesses are computed when an Event is inserted, because they
// only depend on ancestors. Fame, round-received, consensus timestamps and the
// total order are computed by RunConsensus, which is called after every batch
// of insertions. All derived values move from unset to set exactly once.
//
// Forks are accepted in the DAG but flagged. An Event that has two forked
// Events of the same creator in its ancestry does not "see" any Event of that
// creator, which is what keeps a minority of malicious peers from splitting
// honest nodes.
//
// Store
//
// The Hashgraph depends on a Store abstracted behind an interface. InmemStore
// keeps everything in memory, and BadgerStore wraps it to also persist Events
// to disk so that a node can be bootstrapped back to its previous state.
//
// The Hashgraph is not safe for concurrent use. The node package serialises
// all mutations behind a single writer lock.
package hashgraph
