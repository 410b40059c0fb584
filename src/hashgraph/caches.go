package hashgraph

import (
	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru"
)

// Key is the key of the pairwise predicate caches
type Key struct {
	x, y string
}

// newCache creates an LRU cache, falling back to a minimal size for invalid
// configuration values.
func newCache(size int) *lru.Cache {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return c
}

//------------------------------------------------------------------------------

// PendingRound is a round whose Events have not all been processed
type PendingRound struct {
	Index   int
	Decided bool
}

// PendingRoundsCache is the ordered queue of rounds that have not been
// processed yet. Rounds are always processed in increasing order, even when a
// later round is decided first.
type PendingRoundsCache struct {
	items *btree.BTreeG[*PendingRound]
}

// NewPendingRoundsCache ...
func NewPendingRoundsCache() *PendingRoundsCache {
	return &PendingRoundsCache{
		items: btree.NewG(8, func(a, b *PendingRound) bool {
			return a.Index < b.Index
		}),
	}
}

// Queued returns true if the round is in the queue
func (c *PendingRoundsCache) Queued(round int) bool {
	return c.items.Has(&PendingRound{Index: round})
}

// Set adds a round to the queue
func (c *PendingRoundsCache) Set(pendingRound *PendingRound) {
	c.items.ReplaceOrInsert(pendingRound)
}

// GetOrderedPendingRounds returns the queued rounds in increasing order
func (c *PendingRoundsCache) GetOrderedPendingRounds() []*PendingRound {
	res := make([]*PendingRound, 0, c.items.Len())
	c.items.Ascend(func(pr *PendingRound) bool {
		res = append(res, pr)
		return true
	})
	return res
}

// Update flags rounds as decided
func (c *PendingRoundsCache) Update(decidedRounds []int) {
	for _, drn := range decidedRounds {
		if dr, ok := c.items.Get(&PendingRound{Index: drn}); ok {
			dr.Decided = true
		}
	}
}

// Clean removes processed rounds from the queue
func (c *PendingRoundsCache) Clean(processedRounds []int) {
	for _, pr := range processedRounds {
		c.items.Delete(&PendingRound{Index: pr})
	}
}

// Len returns the number of queued rounds
func (c *PendingRoundsCache) Len() int {
	return c.items.Len()
}
