package tipset

import (
	"sort"

	"github.com/mosaicnetworks/swirl/src/addressbook"
	"github.com/mosaicnetworks/swirl/src/event"
)

// Candidate is an event that could be cited as other-parent, with its tipset.
type Candidate struct {
	Descriptor event.Descriptor
	Tipset     *Tipset
}

// Advisor picks other-parents for the events of one node. It only reads the
// tipsets it is given and keeps no state between calls.
type Advisor struct {
	book     *addressbook.AddressBook
	selfID   addressbook.NodeID
	mode     event.AncientMode
	weighted bool
}

// NewAdvisor creates an Advisor for selfID. With weighted set, each advanced
// node counts for its voting weight instead of one.
func NewAdvisor(book *addressbook.AddressBook,
	selfID addressbook.NodeID,
	mode event.AncientMode,
	weighted bool) *Advisor {
	return &Advisor{
		book:     book,
		selfID:   selfID,
		mode:     mode,
		weighted: weighted,
	}
}

// Score returns how much citing an event with tipset candidate would advance
// self: the number of other nodes whose generation it raises, or the sum of
// their weights.
func (a *Advisor) Score(self *Tipset, candidate *Tipset) uint64 {
	if self == nil {
		self = New(a.book)
	}
	var score uint64
	for _, id := range self.AdvancedNodes(candidate) {
		if id == a.selfID {
			continue
		}
		if a.weighted {
			score += a.book.Weight(id)
		} else {
			score++
		}
	}
	return score
}

// SelectOtherParent returns the candidate with the highest positive score.
// Ties go to the lowest creator id, then the lowest sequence key, then the
// lowest hash. It returns false if no candidate advances self.
func (a *Advisor) SelectOtherParent(self *Tipset, candidates []Candidate) (Candidate, bool) {
	var (
		best      Candidate
		bestScore uint64
		found     bool
	)
	for _, c := range candidates {
		if c.Tipset == nil || c.Descriptor.Creator == a.selfID {
			continue
		}
		s := a.Score(self, c.Tipset)
		if s == 0 {
			continue
		}
		if !found || s > bestScore || (s == bestScore && a.less(c.Descriptor, best.Descriptor)) {
			best, bestScore, found = c, s, true
		}
	}
	return best, found
}

// SelectOtherParents picks up to max other-parents greedily: after each pick
// the chosen tipset is merged into self before the remaining candidates are
// scored again. The result is sorted by creator id.
func (a *Advisor) SelectOtherParents(self *Tipset, candidates []Candidate, max int) []Candidate {
	if self == nil {
		self = New(a.book)
	}
	remaining := append([]Candidate(nil), candidates...)
	var chosen []Candidate

	for len(chosen) < max {
		c, ok := a.SelectOtherParent(self, remaining)
		if !ok {
			break
		}
		chosen = append(chosen, c)
		self = Merge(a.book, self, c.Tipset)

		for i := range remaining {
			if remaining[i].Descriptor == c.Descriptor {
				remaining = append(remaining[:i], remaining[i+1:]...)
				break
			}
		}
	}

	sort.Slice(chosen, func(i, j int) bool {
		return a.less(chosen[i].Descriptor, chosen[j].Descriptor)
	})
	return chosen
}

func (a *Advisor) less(x, y event.Descriptor) bool {
	if x.Creator != y.Creator {
		return x.Creator < y.Creator
	}
	kx, ky := a.mode.SequenceKey(x), a.mode.SequenceKey(y)
	if kx != ky {
		return kx < ky
	}
	return x.Hash < y.Hash
}
