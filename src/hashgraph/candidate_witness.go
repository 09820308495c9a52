package hashgraph

import (
	"sort"

	"github.com/mosaicnetworks/swirl/src/event"
)

// CandidateWitness is a witness whose fame is being voted on. ElectionIndex
// is the witness's position in its round's election, in arrival order.
type CandidateWitness struct {
	Witness       event.Descriptor
	Round         int
	ElectionIndex uint32

	decided bool
	famous  bool
}

// IsDecided returns true once the fame of the witness is known.
func (c *CandidateWitness) IsDecided() bool {
	return c.decided
}

// IsFamous returns the decided fame. It is false while undecided.
func (c *CandidateWitness) IsFamous() bool {
	return c.decided && c.famous
}

// decide records the fame of the witness. It reports whether the candidate
// changed from undecided to decided, and fails if the witness was already
// decided the other way.
func (c *CandidateWitness) decide(famous bool) (bool, error) {
	if c.decided {
		if c.famous != famous {
			return false, newInvariantError("fame of witness %s in round %d changed from %v to %v",
				c.Witness, c.Round, c.famous, famous)
		}
		return false, nil
	}
	c.decided = true
	c.famous = famous
	return true, nil
}

//------------------------------------------------------------------------------

// elections holds the candidates of every non-finalized round.
type elections struct {
	rounds map[int]map[string]*CandidateWitness
}

func newElections() *elections {
	return &elections{
		rounds: make(map[int]map[string]*CandidateWitness),
	}
}

func (e *elections) add(round int, witness event.Descriptor) *CandidateWitness {
	candidates, ok := e.rounds[round]
	if !ok {
		candidates = make(map[string]*CandidateWitness)
		e.rounds[round] = candidates
	}
	if c, ok := candidates[witness.Hash]; ok {
		return c
	}
	c := &CandidateWitness{
		Witness:       witness,
		Round:         round,
		ElectionIndex: uint32(len(candidates)),
	}
	candidates[witness.Hash] = c
	return c
}

func (e *elections) get(round int, hash string) (*CandidateWitness, bool) {
	c, ok := e.rounds[round][hash]
	return c, ok
}

// candidates returns the candidates of a round sorted by hash.
func (e *elections) candidates(round int) []*CandidateWitness {
	res := make([]*CandidateWitness, 0, len(e.rounds[round]))
	for _, c := range e.rounds[round] {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Witness.Hash < res[j].Witness.Hash
	})
	return res
}

func (e *elections) evict(round int) {
	delete(e.rounds, round)
}

func (e *elections) len() int {
	return len(e.rounds)
}
