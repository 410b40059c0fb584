package peers

import (
	"fmt"
	"testing"

	"github.com/mosaicnetworks/chorus/src/crypto/keys"
	"pgregory.net/rapid"
)

func newTestPeers(t testing.TB, n int) []*Peer {
	res := make([]*Peer, 0, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		res = append(res, NewPeer(
			keys.PublicKeyHex(&key.PublicKey),
			fmt.Sprintf("addr%d", i),
			fmt.Sprintf("peer%d", i),
		))
	}
	return res
}

func TestPeerSetLookups(t *testing.T) {
	pirs := newTestPeers(t, 4)

	ps, err := NewPeerSet(pirs)
	if err != nil {
		t.Fatal(err)
	}

	if ps.Len() != 4 {
		t.Fatalf("Len should be 4, not %d", ps.Len())
	}

	for _, p := range pirs {
		if got, ok := ps.ByID(p.ID()); !ok || got != p {
			t.Fatalf("ByID(%d) should return %s", p.ID(), p.Moniker)
		}
		// lookups do not depend on the case of the hex string
		lower := "0x" + p.PubKeyString()[2:]
		if got, ok := ps.ByPubKey(lower); !ok || got != p {
			t.Fatalf("ByPubKey(%s) should return %s", lower, p.Moniker)
		}
	}

	if _, ok := ps.ByID(42); ok {
		t.Fatalf("ByID should not find an unknown peer")
	}

	if w := ps.Weight(pirs[0].PubKeyHex); w != 1 {
		t.Fatalf("default weight should be 1, not %d", w)
	}
	if w := ps.Weight("0XBEEF"); w != 0 {
		t.Fatalf("a stranger should weigh 0, not %d", w)
	}
}

func TestPeerSetRejectsDuplicates(t *testing.T) {
	pirs := newTestPeers(t, 2)
	dup := NewPeer(pirs[0].PubKeyHex, "elsewhere", "dup")

	if _, err := NewPeerSet(append(pirs, dup)); err == nil {
		t.Fatalf("NewPeerSet should reject a duplicate public key")
	}

	bad := NewPeer("0Xnothex", "addr", "bad")
	if _, err := NewPeerSet([]*Peer{bad}); err == nil {
		t.Fatalf("NewPeerSet should reject an invalid public key")
	}
}

func TestSuperMajority(t *testing.T) {
	cases := []struct {
		weights []int64
		total   int64
		sm      int64
	}{
		{[]int64{1, 1, 1, 1}, 4, 3},
		{[]int64{1, 1, 1}, 3, 3},
		{[]int64{1}, 1, 1},
		{[]int64{0, 0, 0, 0}, 4, 3},
		{[]int64{10, 1, 1, 1}, 13, 9},
	}

	for _, c := range cases {
		pirs := newTestPeers(t, len(c.weights))
		for i, w := range c.weights {
			pirs[i].Weight = w
		}
		ps, err := NewPeerSet(pirs)
		if err != nil {
			t.Fatal(err)
		}
		if ps.TotalWeight() != c.total {
			t.Fatalf("TotalWeight(%v) should be %d, not %d", c.weights, c.total, ps.TotalWeight())
		}
		if ps.SuperMajority() != c.sm {
			t.Fatalf("SuperMajority(%v) should be %d, not %d", c.weights, c.sm, ps.SuperMajority())
		}
	}
}

func TestSuperMajorityProperty(t *testing.T) {
	pirs := newTestPeers(t, 7)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, len(pirs)).Draw(rt, "n")
		set := make([]*Peer, n)
		for i := 0; i < n; i++ {
			p := *pirs[i]
			p.Weight = rapid.Int64Range(1, 1000).Draw(rt, fmt.Sprintf("w%d", i))
			set[i] = &p
		}

		ps, err := NewPeerSet(set)
		if err != nil {
			rt.Fatal(err)
		}

		w := ps.TotalWeight()
		sm := ps.SuperMajority()

		// strictly more than 2/3 of the weight, and minimal
		if 3*sm <= 2*w {
			rt.Fatalf("supermajority %d is not more than 2/3 of %d", sm, w)
		}
		if 3*(sm-1) > 2*w {
			rt.Fatalf("supermajority %d is not minimal for %d", sm, w)
		}
		// two supermajorities always intersect in more than a third
		if 2*sm-w <= w/3 {
			rt.Fatalf("supermajorities of %d do not overlap by more than a third", w)
		}
	})
}

func TestExcludePeer(t *testing.T) {
	pirs := newTestPeers(t, 3)

	index, others := ExcludePeer(pirs, "addr1")
	if index != 1 {
		t.Fatalf("index should be 1, not %d", index)
	}
	if len(others) != 2 || others[0].NetAddr != "addr0" || others[1].NetAddr != "addr2" {
		t.Fatalf("unexpected remaining peers %v", others)
	}
}
