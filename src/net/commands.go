package net

import (
	"github.com/mosaicnetworks/chorus/src/hashgraph"
)

// SyncRequest corresponds to the pull part of the pull-push gossip protocol.
// It is used to retrieve unknown Events from another node. The Known map
// represents how much the requester currently knows about the hashgraph; a nil
// map asks for every Event the responder has. Wanted lists hashes of specific
// Events the requester is missing, typically the parents of Events it could
// not insert. SyncLimit caps the number of Events in the response, 0 meaning
// no limit.
type SyncRequest struct {
	FromID    uint32
	Known     map[uint32]int
	Wanted    []string
	SyncLimit int
}

// SyncResponse returns a list of Events as requested by a SyncRequest, in
// topological order. Head is the hash of the responder's last self-Event and
// the Known map indicates how much the responder knows about the hashgraph.
type SyncResponse struct {
	FromID uint32
	Head   string
	Events []hashgraph.WireEvent
	Known  map[uint32]int
}

// EagerSyncRequest corresponds to the push part of the pull-push gossip
// protocol. It is used to actively push Events to a node without it being
// requested.
type EagerSyncRequest struct {
	FromID uint32
	Events []hashgraph.WireEvent
}

// EagerSyncResponse indicates the success or failure of an EagerSyncRequest.
type EagerSyncResponse struct {
	FromID  uint32
	Success bool
}
