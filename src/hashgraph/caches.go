package hashgraph

import (
	"github.com/google/btree"
)

// Key is the cache key of a pairwise ancestry query.
type Key struct {
	x, y string
}

// PendingRound is a round with at least one witness that has not been
// finalized. Decided is set once the fame of all its witnesses is known.
type PendingRound struct {
	Index   int
	Decided bool
}

func lessPendingRound(a, b *PendingRound) bool {
	return a.Index < b.Index
}

// PendingRoundsCache is the queue of rounds waiting for finalization, ordered
// by round index.
type PendingRoundsCache struct {
	rounds *btree.BTreeG[*PendingRound]
}

// NewPendingRoundsCache creates an empty PendingRoundsCache.
func NewPendingRoundsCache() *PendingRoundsCache {
	return &PendingRoundsCache{
		rounds: btree.NewG(8, lessPendingRound),
	}
}

// Queued returns true if the round is in the queue.
func (c *PendingRoundsCache) Queued(round int) bool {
	return c.rounds.Has(&PendingRound{Index: round})
}

// Get returns the queued round.
func (c *PendingRoundsCache) Get(round int) (*PendingRound, bool) {
	return c.rounds.Get(&PendingRound{Index: round})
}

// Push queues an undecided round. Queuing a round twice keeps the first entry.
func (c *PendingRoundsCache) Push(round int) {
	if c.Queued(round) {
		return
	}
	c.rounds.ReplaceOrInsert(&PendingRound{Index: round})
}

// Ordered returns a snapshot of the queue in ascending round order.
func (c *PendingRoundsCache) Ordered() []*PendingRound {
	res := make([]*PendingRound, 0, c.rounds.Len())
	c.rounds.Ascend(func(pr *PendingRound) bool {
		res = append(res, pr)
		return true
	})
	return res
}

// MarkDecided flags a queued round as ready for finalization.
func (c *PendingRoundsCache) MarkDecided(round int) {
	if pr, ok := c.Get(round); ok {
		pr.Decided = true
	}
}

// Remove drops finalized rounds from the queue.
func (c *PendingRoundsCache) Remove(rounds []int) {
	for _, r := range rounds {
		c.rounds.Delete(&PendingRound{Index: r})
	}
}

// Len returns the number of queued rounds.
func (c *PendingRoundsCache) Len() int {
	return c.rounds.Len()
}
