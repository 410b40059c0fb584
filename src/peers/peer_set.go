package peers

import (
	"fmt"
)

// PeerDirectory is the read-only view of the participant set used by the
// consensus engine.
type PeerDirectory interface {
	ByID(id uint32) (*Peer, bool)
	ByPubKey(pubKey string) (*Peer, bool)
	List() []*Peer
	Len() int
	// Weight is the vote weight of the peer with the given public key, 0 for
	// strangers.
	Weight(pubKey string) int64
	// TotalWeight is W, the sum of all vote weights.
	TotalWeight() int64
	// SuperMajority is floor(2W/3)+1.
	SuperMajority() int64
}

// PeerSet is a fixed set of Peers forming a consensus network. It is
// immutable after construction and safe for concurrent reads.
type PeerSet struct {
	Peers []*Peer `json:"peers"`

	byPubKey map[string]*Peer
	byID     map[uint32]*Peer

	totalWeight int64
}

// NewPeerSet creates a new PeerSet from a list of Peers. It fails if two peers
// share a public key, or if their public keys hash to the same ID.
func NewPeerSet(peers []*Peer) (*PeerSet, error) {
	peerSet := &PeerSet{
		byPubKey: make(map[string]*Peer),
		byID:     make(map[uint32]*Peer),
	}

	for _, peer := range peers {
		if peer.PubKeyBytes() == nil {
			return nil, fmt.Errorf("peer %q has an invalid public key %q", peer.Moniker, peer.PubKeyHex)
		}

		pub := peer.PubKeyString()
		if _, ok := peerSet.byPubKey[pub]; ok {
			return nil, fmt.Errorf("duplicate peer %s", pub)
		}
		if other, ok := peerSet.byID[peer.ID()]; ok {
			return nil, fmt.Errorf("peers %s and %s have the same ID %d", pub, other.PubKeyString(), peer.ID())
		}

		peerSet.byPubKey[pub] = peer
		peerSet.byID[peer.ID()] = peer
		peerSet.totalWeight += peer.VoteWeight()
	}

	peerSet.Peers = peers

	return peerSet, nil
}

// ByID implements PeerDirectory
func (ps *PeerSet) ByID(id uint32) (*Peer, bool) {
	p, ok := ps.byID[id]
	return p, ok
}

// ByPubKey implements PeerDirectory. The key does not need to be normalised.
func (ps *PeerSet) ByPubKey(pubKey string) (*Peer, bool) {
	p, ok := ps.byPubKey[(&Peer{PubKeyHex: pubKey}).PubKeyString()]
	return p, ok
}

// List implements PeerDirectory
func (ps *PeerSet) List() []*Peer {
	return ps.Peers
}

// Len returns the number of Peers in the PeerSet
func (ps *PeerSet) Len() int {
	return len(ps.byPubKey)
}

// Weight implements PeerDirectory
func (ps *PeerSet) Weight(pubKey string) int64 {
	p, ok := ps.ByPubKey(pubKey)
	if !ok {
		return 0
	}
	return p.VoteWeight()
}

// TotalWeight implements PeerDirectory
func (ps *PeerSet) TotalWeight() int64 {
	return ps.totalWeight
}

// SuperMajority implements PeerDirectory. It is the smallest weight strictly
// greater than two thirds of the total.
func (ps *PeerSet) SuperMajority() int64 {
	return 2*ps.totalWeight/3 + 1
}
