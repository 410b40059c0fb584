package peers

import (
	"strings"

	"github.com/mosaicnetworks/chorus/src/common"
)

// Peer is a participant of the network. Weight is the stake, or vote weight,
// of the peer. A zero or missing weight counts as 1.
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string
	Weight    int64 `json:",omitempty"`

	id          uint32
	pubKeyBytes []byte
}

// NewPeer creates a Peer of weight 1.
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	return &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
		Weight:    1,
	}
}

// ID returns a compact identifier derived from the public key.
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		p.id = common.Hash32(p.PubKeyBytes())
	}
	return p.id
}

// PubKeyString returns the normalised 0X-prefixed uppercase public key.
func (p *Peer) PubKeyString() string {
	return "0X" + strings.TrimPrefix(strings.ToUpper(p.PubKeyHex), "0X")
}

// PubKeyBytes returns the decoded public key, or nil if PubKeyHex is not valid
// hex.
func (p *Peer) PubKeyBytes() []byte {
	if p.pubKeyBytes == nil {
		b, err := common.DecodeFromString(p.PubKeyHex)
		if err != nil {
			return nil
		}
		p.pubKeyBytes = b
	}
	return p.pubKeyBytes
}

// VoteWeight is Weight with the default applied.
func (p *Peer) VoteWeight() int64 {
	if p.Weight <= 0 {
		return 1
	}
	return p.Weight
}

// ExcludePeer returns peers without the one listening on netAddr, along with
// the index it was found at, or -1.
func ExcludePeer(peers []*Peer, netAddr string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.NetAddr != netAddr {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
