// Package node implements the reactive component of a chorus node.
//
// This is the part of chorus that controls the gossip routines and accesses
// the underlying hashgraph to execute the consensus algorithm.
//
// Gossip
//
// chorus nodes communicate with other chorus nodes in a fully connected p2p
// network. Nodes gossip by repeatedly choosing another node at random and
// telling eachother what they know about the hashgraph. The gossip protocol
// serves the dual purpose of gossiping about transactions and about the gossip
// itself (the hashgraph). The hashgraph contains enough information to compute
// a consensus ordering of transactions.
//
// The communication mechanism is a custom RPC protocol over network transport
// as defined in the net package. It implements a Pull-Push gossip system which
// relies on two RPC commands: Sync and EagerSync. When node A wants to sync
// with node B, it sends a SyncRequest to B containing a description of what it
// knows about the hashgraph. B computes what it knows that A doesn't know and
// returns a SyncResponse with the corresponding events in topological order.
// A checks the signatures of the Events, inserts them under the writer lock,
// and calculates the consensus order. Events whose parents are still unknown
// are kept aside, and A asks B for the missing parents by hash. Then, A sends
// an EagerSyncRequest to B with the Events that it knows and B doesn't know.
//
// Locking
//
// A single RWMutex guards the Core. Inserting a batch of Events and running
// the consensus methods happen under the write lock; answering SyncRequests,
// and reading the head, stats, and consensus Events, happen under the read
// lock. No network call is made while the lock is held.
package node
