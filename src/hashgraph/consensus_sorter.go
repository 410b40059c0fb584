package hashgraph

import (
	"math/big"
	"sort"

	"github.com/mosaicnetworks/chorus/src/crypto/keys"
)

// ConsensusSorter sorts the Events received in the same round into their final
// order: by consensus timestamp, then by whitened signature. The whitener is
// the XOR of the signatures of the round's unique famous witnesses, so no
// creator can predict, and game, the position of its Events among ties.
type ConsensusSorter struct {
	a        []*Event
	whitener *big.Int
	cache    map[string]*big.Int
}

// NewConsensusSorter prepares a sorter for events received in a round with
// the given unique famous witnesses.
func NewConsensusSorter(events []*Event, famousWitnesses []*Event) ConsensusSorter {
	w := new(big.Int)
	for _, fw := range famousWitnesses {
		w.Xor(w, signatureInt(fw.Signature))
	}
	return ConsensusSorter{
		a:        events,
		whitener: w,
		cache:    make(map[string]*big.Int),
	}
}

// Sort sorts the events in place
func (b ConsensusSorter) Sort() {
	sort.Sort(b)
}

// Len implements sort.Interface
func (b ConsensusSorter) Len() int { return len(b.a) }

// Swap implements sort.Interface
func (b ConsensusSorter) Swap(i, j int) { b.a[i], b.a[j] = b.a[j], b.a[i] }

// Less implements sort.Interface
func (b ConsensusSorter) Less(i, j int) bool {
	ti, tj := *b.a[i].consensusTimestamp, *b.a[j].consensusTimestamp
	if ti != tj {
		return ti < tj
	}

	if c := b.whitened(b.a[i]).Cmp(b.whitened(b.a[j])); c != 0 {
		return c < 0
	}

	return b.a[i].Hex() < b.a[j].Hex()
}

func (b ConsensusSorter) whitened(e *Event) *big.Int {
	if ws, ok := b.cache[e.Hex()]; ok {
		return ws
	}
	ws := new(big.Int).Xor(signatureInt(e.Signature), b.whitener)
	b.cache[e.Hex()] = ws
	return ws
}

// signatureInt returns the S value of an encoded signature, or 0 if it cannot
// be decoded. Inserted Events always carry verified signatures.
func signatureInt(sig string) *big.Int {
	_, s, err := keys.DecodeSignature(sig)
	if err != nil {
		return new(big.Int)
	}
	return s
}

// middleBit returns the bit used as a coin flip in voting rounds that fail to
// reach a supermajority. It is taken from the middle of the R value of the
// voter's signature, which nobody can bias without forging signatures.
func middleBit(sig string) bool {
	r, _, err := keys.DecodeSignature(sig)
	if err != nil {
		return false
	}
	b := r.Bytes()
	if len(b) == 0 {
		return false
	}
	return b[len(b)/2]&1 == 1
}
