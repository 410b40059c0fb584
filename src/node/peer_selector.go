package node

import (
	"math/rand"

	"github.com/mosaicnetworks/chorus/src/peers"
)

// PeerSelector decides which peer to gossip with next.
type PeerSelector interface {
	Peers() peers.PeerDirectory
	UpdateLast(peer uint32)
	Next() *peers.Peer
}

//+++++++++++++++++++++++++++++++++++++++
//RANDOM

// RandomPeerSelector picks a random peer other than the node itself and, when
// there is a choice, other than the last peer it gossiped with.
type RandomPeerSelector struct {
	peers           peers.PeerDirectory
	selfID          uint32
	selectablePeers []*peers.Peer
	last            uint32
	rnd             *rand.Rand
}

// NewRandomPeerSelector is a factory method that returns a new instance of
// RandomPeerSelector
func NewRandomPeerSelector(peerSet peers.PeerDirectory, selfID uint32, rnd *rand.Rand) *RandomPeerSelector {
	selectable := []*peers.Peer{}
	for _, p := range peerSet.List() {
		if p.ID() != selfID {
			selectable = append(selectable, p)
		}
	}
	return &RandomPeerSelector{
		peers:           peerSet,
		selfID:          selfID,
		selectablePeers: selectable,
		rnd:             rnd,
	}
}

// Peers returns the full peer directory, self included
func (ps *RandomPeerSelector) Peers() peers.PeerDirectory {
	return ps.peers
}

// UpdateLast sets the last peer
func (ps *RandomPeerSelector) UpdateLast(peer uint32) {
	ps.last = peer
}

// Next returns the next peer, or nil if the node is alone
func (ps *RandomPeerSelector) Next() *peers.Peer {
	selectablePeers := ps.selectablePeers

	if len(selectablePeers) == 0 {
		return nil
	}

	if len(selectablePeers) > 1 {
		if last, ok := ps.peers.ByID(ps.last); ok {
			if _, others := peers.ExcludePeer(selectablePeers, last.NetAddr); len(others) > 0 {
				selectablePeers = others
			}
		}
	}

	return selectablePeers[ps.rnd.Intn(len(selectablePeers))]
}
