package hashgraph

import (
	"testing"
)

func TestPendingRoundsCache(t *testing.T) {
	c := NewPendingRoundsCache()

	for _, r := range []int{3, 0, 2, 1} {
		c.Set(&PendingRound{Index: r})
	}

	if !c.Queued(2) || c.Queued(4) {
		t.Fatal("Queued is wrong")
	}

	ordered := c.GetOrderedPendingRounds()
	for i, pr := range ordered {
		if pr.Index != i {
			t.Fatalf("pending round %d should be %d", i, pr.Index)
		}
	}

	//a later round can be decided first
	c.Update([]int{1, 2})
	ordered = c.GetOrderedPendingRounds()
	if ordered[0].Decided || !ordered[1].Decided || !ordered[2].Decided || ordered[3].Decided {
		t.Fatalf("only rounds 1 and 2 should be decided")
	}

	c.Clean([]int{0, 1})
	if c.Len() != 2 {
		t.Fatalf("2 rounds should be left, not %d", c.Len())
	}
	if first := c.GetOrderedPendingRounds()[0]; first.Index != 2 || !first.Decided {
		t.Fatalf("round 2 should be first and decided")
	}
}

func TestPredicateCacheKey(t *testing.T) {
	c := newCache(2)

	c.Add(Key{"a", "b"}, true)
	c.Add(Key{"b", "a"}, false)

	if v, ok := c.Get(Key{"a", "b"}); !ok || !v.(bool) {
		t.Fatal("Key{a, b} should be cached as true")
	}
	if v, ok := c.Get(Key{"b", "a"}); !ok || v.(bool) {
		t.Fatal("Key{b, a} should be cached as false")
	}

	//evicts the least recently used entry
	c.Add(Key{"c", "d"}, true)
	if _, ok := c.Get(Key{"a", "b"}); ok {
		t.Fatal("Key{a, b} should have been evicted")
	}

	if newCache(0) == nil {
		t.Fatal("invalid sizes should fall back to a minimal cache")
	}
}
